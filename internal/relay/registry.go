package relay

import "sync"

// Registry maps room ids to the sessions receiving that room's fan-out.
// A session is in at most one room set at a time. State is process-local.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]map[*Session]struct{}
}

func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]map[*Session]struct{})}
}

// Subscribe moves s into roomID's set, leaving its previous room in the same
// critical section. Closed sessions are refused.
func (r *Registry) Subscribe(roomID string, s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s.Closed() {
		return ErrSessionClosed
	}

	previous := s.RoomID()
	if previous == roomID {
		if _, ok := r.rooms[roomID][s]; ok {
			return nil
		}
	}
	if previous != "" {
		r.removeLocked(previous, s)
	}

	members, ok := r.rooms[roomID]
	if !ok {
		members = make(map[*Session]struct{})
		r.rooms[roomID] = members
	}
	members[s] = struct{}{}
	s.setRoom(roomID)
	return nil
}

// Unsubscribe removes s from whichever room holds it and returns that room
// id, or "" when s was not subscribed.
func (r *Registry) Unsubscribe(s *Session) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	previous := s.RoomID()
	if previous == "" {
		return ""
	}
	r.removeLocked(previous, s)
	s.setRoom("")
	return previous
}

func (r *Registry) removeLocked(roomID string, s *Session) {
	members, ok := r.rooms[roomID]
	if !ok {
		return
	}
	delete(members, s)
	if len(members) == 0 {
		delete(r.rooms, roomID)
	}
}

// MembersOf returns a snapshot of roomID's subscribers. Sessions may leave
// before the caller is done with it.
func (r *Registry) MembersOf(roomID string) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := make([]*Session, 0, len(r.rooms[roomID]))
	for s := range r.rooms[roomID] {
		members = append(members, s)
	}
	return members
}

func (r *Registry) Count(roomID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[roomID])
}

// RoomCount reports how many rooms have at least one subscriber.
func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}
