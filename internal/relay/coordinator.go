package relay

import (
	"context"
	"errors"
	"fmt"

	"chat-relay/internal/database"
	"chat-relay/internal/models"
	"chat-relay/pkg/logger"
)

type JoinState int

const (
	JoinRequested JoinState = iota
	JoinIdentityResolved
	JoinRoomResolved
	JoinSubscribed
	JoinHistoryLoaded
	JoinAcknowledged
	JoinRejected
)

func (s JoinState) String() string {
	switch s {
	case JoinRequested:
		return "requested"
	case JoinIdentityResolved:
		return "identity_resolved"
	case JoinRoomResolved:
		return "room_resolved"
	case JoinSubscribed:
		return "subscribed"
	case JoinHistoryLoaded:
		return "history_loaded"
	case JoinAcknowledged:
		return "acknowledged"
	case JoinRejected:
		return "rejected"
	}
	return "unknown"
}

// Coordinator drives one session into one room. The session is subscribed
// before history is read, so a message appended concurrently is either in
// the snapshot, delivered live after the acknowledgement, or both.
// Clients de-duplicate by message id.
type Coordinator struct {
	store    database.HistoryGateway
	registry *Registry
}

func NewCoordinator(store database.HistoryGateway, registry *Registry) *Coordinator {
	return &Coordinator{store: store, registry: registry}
}

type joinAttempt struct {
	session *Session
	roomID  string
	state   JoinState
}

func (a *joinAttempt) advance(next JoinState) {
	logger.Debug("Join %s -> room %s: %s -> %s", a.session.ID(), a.roomID, a.state, next)
	a.state = next
}

func (a *joinAttempt) reject(err error) error {
	a.advance(JoinRejected)
	return err
}

// Join subscribes s to roomID and queues the room.join acknowledgement
// (tagged with requestID) carrying the snapshot. On ErrRoomNotFound and
// ErrIdentityMissing the registry is left untouched.
func (c *Coordinator) Join(ctx context.Context, s *Session, roomID, requestID string) (*models.RoomSnapshot, error) {
	attempt := &joinAttempt{session: s, roomID: roomID, state: JoinRequested}

	identity, ok := s.Identity()
	if !ok {
		return nil, attempt.reject(ErrIdentityMissing)
	}
	attempt.advance(JoinIdentityResolved)

	room, err := c.store.GetRoom(ctx, roomID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, attempt.reject(ErrRoomNotFound)
		}
		return nil, attempt.reject(fmt.Errorf("load room: %w", err))
	}
	attempt.advance(JoinRoomResolved)

	previous := s.RoomID()
	s.beginJoin(roomID)
	if err := c.registry.Subscribe(roomID, s); err != nil {
		s.abortJoin()
		return nil, attempt.reject(err)
	}
	attempt.advance(JoinSubscribed)

	messages, err := c.store.GetMessages(ctx, roomID)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		c.restore(s, previous)
		if errors.Is(err, database.ErrNotFound) {
			return nil, attempt.reject(ErrRoomNotFound)
		}
		return nil, attempt.reject(fmt.Errorf("load history: %w", err))
	}
	attempt.advance(JoinHistoryLoaded)

	if err := c.store.AddMember(ctx, roomID, identity); err != nil {
		logger.Warn("Failed to record %s as member of room %s: %v", identity.ID, roomID, err)
	}

	snapshot := &models.RoomSnapshot{Room: room, Messages: messages}
	if err := s.completeJoin(models.NewFrame(models.FrameRoomJoin, requestID, snapshot)); err != nil {
		c.registry.Unsubscribe(s)
		return nil, attempt.reject(err)
	}
	attempt.advance(JoinAcknowledged)

	logger.Info("User %s joined room %s (%d messages)", identity.Nickname, room.Name, len(messages))
	return snapshot, nil
}

// restore puts s back into the room it held before a failed join, or
// unsubscribes it when it had none or can no longer be subscribed.
// Messages published to that room while the join was in flight are not
// replayed; the client recovers them on its next join.
func (c *Coordinator) restore(s *Session, previous string) {
	if previous == "" || c.registry.Subscribe(previous, s) != nil {
		c.registry.Unsubscribe(s)
	}
	s.abortJoin()
}

// Leave unsubscribes s from its current room, if any.
func (c *Coordinator) Leave(s *Session) string {
	return c.registry.Unsubscribe(s)
}
