package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"chat-relay/internal/database"
	"chat-relay/internal/models"
	"chat-relay/pkg/logger"

	"github.com/google/uuid"
)

// Relay persists room events through the history gateway and fans them out
// to the room's current subscribers. Publish and Retract are serialized per
// room, so every subscriber observes a room's events in call order.
type Relay struct {
	store    database.HistoryGateway
	registry *Registry

	mu    sync.Mutex
	locks map[string]*roomLock
}

// roomLock serializes one room's events. It is dropped from Relay.locks once
// no caller holds or waits on it.
type roomLock struct {
	mu   sync.Mutex
	refs int
}

func New(store database.HistoryGateway, registry *Registry) *Relay {
	return &Relay{
		store:    store,
		registry: registry,
		locks:    make(map[string]*roomLock),
	}
}

func (r *Relay) Registry() *Registry {
	return r.registry
}

// lockRoom blocks until the caller owns roomID and returns the release func.
func (r *Relay) lockRoom(roomID string) func() {
	r.mu.Lock()
	lock, ok := r.locks[roomID]
	if !ok {
		lock = &roomLock{}
		r.locks[roomID] = lock
	}
	lock.refs++
	r.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()

		r.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(r.locks, roomID)
		}
		r.mu.Unlock()
	}
}

// ComposeMessage builds a message authored by author with a fresh id. A zero
// date is replaced with the current time in milliseconds.
func ComposeMessage(author models.Identity, in models.SendMessagePayload) *models.Message {
	date := in.Date
	if date == 0 {
		date = time.Now().UnixMilli()
	}
	return &models.Message{
		ID:        uuid.NewString(),
		RoomID:    in.RoomID,
		Author:    author,
		Type:      in.Type,
		Payload:   in.Payload,
		Timestamp: date,
	}
}

// Publish appends msg to roomID's history and, only once that succeeded,
// delivers it to every current subscriber.
func (r *Relay) Publish(ctx context.Context, roomID string, msg *models.Message) error {
	if msg == nil || msg.ID == "" || !msg.Type.Valid() {
		return ErrInvalidMessage
	}
	msg.RoomID = roomID

	unlock := r.lockRoom(roomID)
	defer unlock()

	if err := r.store.AppendMessage(ctx, roomID, msg); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return ErrRoomNotFound
		}
		return fmt.Errorf("append message: %w", err)
	}

	r.fanOut(roomID, models.NewFrame(models.FrameRoomMessage, "", msg))
	return nil
}

// Retract deletes messageID when requesterID authored it and notifies every
// current subscriber, the requester included.
func (r *Relay) Retract(ctx context.Context, roomID, messageID, requesterID string) error {
	unlock := r.lockRoom(roomID)
	defer unlock()

	msg, err := r.store.GetMessage(ctx, roomID, messageID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return ErrMessageNotFound
		}
		return fmt.Errorf("load message: %w", err)
	}
	if requesterID == "" || msg.Author.ID != requesterID {
		return ErrUnauthorized
	}

	if err := r.store.DeleteMessage(ctx, roomID, messageID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return ErrMessageNotFound
		}
		return fmt.Errorf("delete message: %w", err)
	}

	r.fanOut(roomID, models.NewFrame(models.FrameRoomMessageDeleted, "", models.MessageDeleted{
		RoomID:    roomID,
		MessageID: messageID,
	}))
	return nil
}

// fanOut is fire-and-forget per subscriber: a failed session is dropped from
// the registry and never retried.
func (r *Relay) fanOut(roomID string, frame models.Frame) {
	members := r.registry.MembersOf(roomID)
	delivered := 0
	for _, s := range members {
		if err := s.Deliver(roomID, frame); err != nil {
			logger.Debug("Delivery of %s to session %s failed: %v", frame.Type, s.ID(), err)
			r.registry.Unsubscribe(s)
			continue
		}
		delivered++
	}
	logger.Debug("Fanned out %s to %d/%d sessions in room %s", frame.Type, delivered, len(members), roomID)
}

// Disconnect tears down a session whose connection closed. It runs whether
// or not the session ever joined a room.
func (r *Relay) Disconnect(s *Session) {
	s.Close()
	if roomID := r.registry.Unsubscribe(s); roomID != "" {
		logger.Info("Session %s left room %s", s.ID(), roomID)
	}
}
