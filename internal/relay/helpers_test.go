package relay

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"chat-relay/internal/database"
	"chat-relay/internal/models"
)

// testStore wraps the in-memory store with failure injection and an
// optional pause inside GetMessages.
type testStore struct {
	*database.MemoryDB
	appendErr      error
	getRoomErr     error
	getMessagesErr error

	fetchStarted chan struct{}
	releaseFetch chan struct{}
}

func newTestStore() *testStore {
	return &testStore{MemoryDB: database.NewMemoryDB()}
}

func (s *testStore) GetRoom(ctx context.Context, roomID string) (*models.Room, error) {
	if s.getRoomErr != nil {
		return nil, s.getRoomErr
	}
	return s.MemoryDB.GetRoom(ctx, roomID)
}

func (s *testStore) GetMessages(ctx context.Context, roomID string) ([]*models.Message, error) {
	if started := s.fetchStarted; started != nil {
		s.fetchStarted = nil
		close(started)
		<-s.releaseFetch
	}
	if s.getMessagesErr != nil {
		return nil, s.getMessagesErr
	}
	return s.MemoryDB.GetMessages(ctx, roomID)
}

func (s *testStore) AppendMessage(ctx context.Context, roomID string, msg *models.Message) error {
	if s.appendErr != nil {
		return s.appendErr
	}
	return s.MemoryDB.AppendMessage(ctx, roomID, msg)
}

// pauseFetch makes the next GetMessages call block until the returned
// release func is called.
func (s *testStore) pauseFetch() (started <-chan struct{}, release func()) {
	s.fetchStarted = make(chan struct{})
	s.releaseFetch = make(chan struct{})
	return s.fetchStarted, func() { close(s.releaseFetch) }
}

type fixture struct {
	store       *testStore
	registry    *Registry
	relay       *Relay
	coordinator *Coordinator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := newTestStore()
	registry := NewRegistry()
	return &fixture{
		store:       store,
		registry:    registry,
		relay:       New(store, registry),
		coordinator: NewCoordinator(store, registry),
	}
}

func (f *fixture) createRoom(t *testing.T, name string) *models.Room {
	t.Helper()
	room, err := f.store.CreateRoom(context.Background(), &models.CreateRoomRequest{Name: name, EncryptionKey: "key-" + name})
	if err != nil {
		t.Fatalf("CreateRoom(%q): %v", name, err)
	}
	return room
}

func newIdentifiedSession(t *testing.T, id string) *Session {
	t.Helper()
	s := NewSession(64, "")
	if err := s.SetIdentity(models.Identity{ID: id, Username: id + "@example.com", Nickname: id}); err != nil {
		t.Fatalf("SetIdentity: %v", err)
	}
	return s
}

// join runs a join and consumes the acknowledgement frame.
func (f *fixture) join(t *testing.T, s *Session, roomID string) *models.RoomSnapshot {
	t.Helper()
	snapshot, err := f.coordinator.Join(context.Background(), s, roomID, "join-"+roomID)
	if err != nil {
		t.Fatalf("Join(%s): %v", roomID, err)
	}
	ack := nextFrame(t, s)
	if ack.Type != models.FrameRoomJoin || ack.RequestID != "join-"+roomID {
		t.Fatalf("expected join ack, got %s (%s)", ack.Type, ack.RequestID)
	}
	return snapshot
}

func (f *fixture) publish(t *testing.T, author *Session, roomID, payload string) *models.Message {
	t.Helper()
	identity, _ := author.Identity()
	msg := ComposeMessage(identity, models.SendMessagePayload{RoomID: roomID, Type: models.MessageTypeText, Payload: payload})
	if err := f.relay.Publish(context.Background(), roomID, msg); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	return msg
}

func nextFrame(t *testing.T, s *Session) models.Frame {
	t.Helper()
	select {
	case frame := <-s.Outbound():
		return frame
	case <-time.After(time.Second):
		t.Fatalf("session %s: no frame received", s.ID())
		return models.Frame{}
	}
}

func expectNoFrame(t *testing.T, s *Session) {
	t.Helper()
	select {
	case frame := <-s.Outbound():
		t.Fatalf("session %s: unexpected frame %s %s", s.ID(), frame.Type, frame.Payload)
	default:
	}
}

func decodeMessage(t *testing.T, frame models.Frame) models.Message {
	t.Helper()
	if frame.Type != models.FrameRoomMessage {
		t.Fatalf("expected %s frame, got %s", models.FrameRoomMessage, frame.Type)
	}
	var msg models.Message
	if err := json.Unmarshal(frame.Payload, &msg); err != nil {
		t.Fatalf("decode message: %v", err)
	}
	return msg
}

func decodeDeletion(t *testing.T, frame models.Frame) models.MessageDeleted {
	t.Helper()
	if frame.Type != models.FrameRoomMessageDeleted {
		t.Fatalf("expected %s frame, got %s", models.FrameRoomMessageDeleted, frame.Type)
	}
	var deleted models.MessageDeleted
	if err := json.Unmarshal(frame.Payload, &deleted); err != nil {
		t.Fatalf("decode deletion: %v", err)
	}
	return deleted
}
