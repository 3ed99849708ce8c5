package relay

import (
	"sync"

	"chat-relay/internal/models"

	"github.com/google/uuid"
)

// Session is the server-side state of one live connection. The transport
// drains Outbound and stops writing once Done is closed.
type Session struct {
	id         string
	verifiedID string
	out        chan models.Frame
	done       chan struct{}

	mu          sync.Mutex
	identity    models.Identity
	hasIdentity bool
	closed      bool
	// room is written only by the Registry while it holds its own lock.
	room       string
	joinTarget string
	held       []models.Frame
}

// NewSession creates a session with an outbound buffer of sendBuffer frames.
// A non-empty verifiedID restricts the identity the session may register.
func NewSession(sendBuffer int, verifiedID string) *Session {
	if sendBuffer <= 0 {
		sendBuffer = 1
	}
	return &Session{
		id:         uuid.NewString(),
		verifiedID: verifiedID,
		out:        make(chan models.Frame, sendBuffer),
		done:       make(chan struct{}),
	}
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Outbound() <-chan models.Frame {
	return s.out
}

func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) Identity() (models.Identity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity, s.hasIdentity
}

// CheckIdentity reports whether the session may register identity id,
// without attaching anything.
func (s *Session) CheckIdentity(id string) error {
	if id == "" {
		return ErrIdentityMissing
	}
	if s.verifiedID != "" && id != s.verifiedID {
		return ErrUnauthorized
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	if s.hasIdentity && s.identity.ID != id {
		return ErrIdentityConflict
	}
	return nil
}

// SetIdentity attaches identity to the session. Reconnect refreshes of the
// same id are allowed; switching to another id is not.
func (s *Session) SetIdentity(identity models.Identity) error {
	if !identity.Valid() {
		return ErrIdentityMissing
	}
	if s.verifiedID != "" && identity.ID != s.verifiedID {
		return ErrUnauthorized
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	if s.hasIdentity && s.identity.ID != identity.ID {
		return ErrIdentityConflict
	}
	s.identity = identity
	s.hasIdentity = true
	return nil
}

// RoomID returns the room the session is subscribed to, or "".
func (s *Session) RoomID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room
}

func (s *Session) setRoom(roomID string) {
	s.mu.Lock()
	s.room = roomID
	s.mu.Unlock()
}

func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Send queues a frame addressed to this session only (acks, errors).
func (s *Session) Send(frame models.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	return s.enqueueLocked(frame)
}

// Deliver queues a fan-out frame for roomID. Frames for a room the session
// no longer belongs to are dropped, which covers stale member snapshots.
// While a join into roomID is pending the frame is held until the join is
// acknowledged.
func (s *Session) Deliver(roomID string, frame models.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	if s.room != roomID {
		return nil
	}
	if s.joinTarget == roomID {
		s.held = append(s.held, frame)
		return nil
	}
	return s.enqueueLocked(frame)
}

func (s *Session) beginJoin(roomID string) {
	s.mu.Lock()
	s.joinTarget = roomID
	s.held = nil
	s.mu.Unlock()
}

// abortJoin ends a pending join without an acknowledgement. Held frames are
// released when the session is still subscribed to the join target (a failed
// re-join of its current room) and dropped otherwise.
func (s *Session) abortJoin() {
	s.mu.Lock()
	defer s.mu.Unlock()

	held := s.held
	target := s.joinTarget
	s.joinTarget = ""
	s.held = nil

	if s.closed || target == "" || s.room != target {
		return
	}
	for _, frame := range held {
		if s.enqueueLocked(frame) != nil {
			return
		}
	}
}

// completeJoin queues the acknowledgement and then every frame held since
// the subscription, preserving their order.
func (s *Session) completeJoin(ack models.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	held := s.held
	s.joinTarget = ""
	s.held = nil

	if s.closed {
		return ErrSessionClosed
	}
	if err := s.enqueueLocked(ack); err != nil {
		return err
	}
	for _, frame := range held {
		if err := s.enqueueLocked(frame); err != nil {
			return err
		}
	}
	return nil
}

// Close marks the session dead and releases held frames. Safe to call more
// than once.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
}

func (s *Session) closeLocked() {
	if s.closed {
		return
	}
	s.closed = true
	s.joinTarget = ""
	s.held = nil
	close(s.done)
}

// enqueueLocked never blocks. A full buffer means the client cannot keep up;
// the session is closed so the transport drops the connection and the
// client catches up on its next join.
func (s *Session) enqueueLocked(frame models.Frame) error {
	select {
	case s.out <- frame:
		return nil
	default:
		s.closeLocked()
		return ErrDeliveryFailed
	}
}
