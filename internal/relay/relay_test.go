package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"chat-relay/internal/models"
)

func TestPublishPersistsThenFansOut(t *testing.T) {
	f := newFixture(t)
	room := f.createRoom(t, "lobby")
	a, b := newIdentifiedSession(t, "a"), newIdentifiedSession(t, "b")
	f.join(t, a, room.ID)
	f.join(t, b, room.ID)

	msg := f.publish(t, a, room.ID, "U2FsdGVkX1/opaque+cipher==")

	history, err := f.store.GetMessages(context.Background(), room.ID)
	if err != nil || len(history) != 1 || history[0].ID != msg.ID {
		t.Fatalf("history = %+v, %v", history, err)
	}
	for _, s := range []*Session{a, b} {
		got := decodeMessage(t, nextFrame(t, s))
		if got.ID != msg.ID {
			t.Errorf("session got %s, want %s", got.ID, msg.ID)
		}
		if got.Payload != "U2FsdGVkX1/opaque+cipher==" {
			t.Errorf("payload altered: %q", got.Payload)
		}
		if got.Author.ID != "a" || got.RoomID != room.ID {
			t.Errorf("unexpected envelope %+v", got)
		}
		expectNoFrame(t, s)
	}
}

func TestPublishPassesEveryTypeThrough(t *testing.T) {
	f := newFixture(t)
	room := f.createRoom(t, "types")
	s := newIdentifiedSession(t, "a")
	f.join(t, s, room.ID)
	identity, _ := s.Identity()

	payloads := map[models.MessageType]string{
		models.MessageTypeText:       "cipher",
		models.MessageTypeImage:      "https://cdn.example/img.png?a=1&b=<2>",
		models.MessageTypeAttachment: `{"name":"report.pdf"}`,
		models.MessageTypeDefault:    "",
	}
	for _, mt := range []models.MessageType{models.MessageTypeText, models.MessageTypeImage, models.MessageTypeAttachment, models.MessageTypeDefault} {
		msg := ComposeMessage(identity, models.SendMessagePayload{RoomID: room.ID, Type: mt, Payload: payloads[mt]})
		if err := f.relay.Publish(context.Background(), room.ID, msg); err != nil {
			t.Fatalf("Publish(%s): %v", mt, err)
		}
		got := decodeMessage(t, nextFrame(t, s))
		if got.Type != mt || got.Payload != payloads[mt] {
			t.Errorf("%s: got type %q payload %q", mt, got.Type, got.Payload)
		}
	}
}

func TestPublishRejectsInvalidMessage(t *testing.T) {
	f := newFixture(t)
	room := f.createRoom(t, "lobby")
	s := newIdentifiedSession(t, "a")
	f.join(t, s, room.ID)

	identity, _ := s.Identity()
	msg := ComposeMessage(identity, models.SendMessagePayload{RoomID: room.ID, Type: "video", Payload: "x"})
	if err := f.relay.Publish(context.Background(), room.ID, msg); !errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("expected ErrInvalidMessage, got %v", err)
	}
	if err := f.relay.Publish(context.Background(), room.ID, nil); !errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("nil message: expected ErrInvalidMessage, got %v", err)
	}
	expectNoFrame(t, s)
}

func TestPublishGatewayFailureDoesNotFanOut(t *testing.T) {
	f := newFixture(t)
	room := f.createRoom(t, "lobby")
	s := newIdentifiedSession(t, "a")
	f.join(t, s, room.ID)

	f.store.appendErr = errors.New("connection reset")
	identity, _ := s.Identity()
	msg := ComposeMessage(identity, models.SendMessagePayload{RoomID: room.ID, Type: models.MessageTypeText, Payload: "x"})

	err := f.relay.Publish(context.Background(), room.ID, msg)
	if err == nil || errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("expected gateway failure, got %v", err)
	}
	expectNoFrame(t, s)
}

func TestPublishUnknownRoom(t *testing.T) {
	f := newFixture(t)
	s := newIdentifiedSession(t, "a")
	identity, _ := s.Identity()
	msg := ComposeMessage(identity, models.SendMessagePayload{RoomID: "missing", Type: models.MessageTypeText})
	if err := f.relay.Publish(context.Background(), "missing", msg); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("expected ErrRoomNotFound, got %v", err)
	}
}

func TestRetractByAuthorNotifiesEverySubscriberOnce(t *testing.T) {
	f := newFixture(t)
	room := f.createRoom(t, "lobby")
	a, b := newIdentifiedSession(t, "a"), newIdentifiedSession(t, "b")
	f.join(t, a, room.ID)
	f.join(t, b, room.ID)

	m1 := f.publish(t, a, room.ID, "m1")
	nextFrame(t, a)
	nextFrame(t, b)

	if err := f.relay.Retract(context.Background(), room.ID, m1.ID, "a"); err != nil {
		t.Fatalf("Retract: %v", err)
	}
	for _, s := range []*Session{a, b} {
		deleted := decodeDeletion(t, nextFrame(t, s))
		if deleted.MessageID != m1.ID || deleted.RoomID != room.ID {
			t.Errorf("unexpected deletion notice %+v", deleted)
		}
		expectNoFrame(t, s)
	}

	history, _ := f.store.GetMessages(context.Background(), room.ID)
	if len(history) != 0 {
		t.Errorf("message still persisted: %+v", history)
	}

	// b retrying after the message is gone: no fan-out, no panic
	if err := f.relay.Retract(context.Background(), room.ID, m1.ID, "b"); !errors.Is(err, ErrMessageNotFound) {
		t.Errorf("expected ErrMessageNotFound, got %v", err)
	}
	expectNoFrame(t, a)
	expectNoFrame(t, b)
}

func TestRetractByNonAuthorIsRejected(t *testing.T) {
	f := newFixture(t)
	room := f.createRoom(t, "lobby")
	a, b := newIdentifiedSession(t, "a"), newIdentifiedSession(t, "b")
	f.join(t, a, room.ID)
	f.join(t, b, room.ID)
	m1 := f.publish(t, a, room.ID, "m1")
	nextFrame(t, a)
	nextFrame(t, b)

	for _, requester := range []string{"b", ""} {
		if err := f.relay.Retract(context.Background(), room.ID, m1.ID, requester); !errors.Is(err, ErrUnauthorized) {
			t.Errorf("requester %q: expected ErrUnauthorized, got %v", requester, err)
		}
	}
	expectNoFrame(t, a)
	expectNoFrame(t, b)

	if _, err := f.store.GetMessage(context.Background(), room.ID, m1.ID); err != nil {
		t.Errorf("message removed by non-author: %v", err)
	}
}

func TestDisconnectStopsDelivery(t *testing.T) {
	f := newFixture(t)
	room := f.createRoom(t, "lobby")
	a, b := newIdentifiedSession(t, "a"), newIdentifiedSession(t, "b")
	f.join(t, a, room.ID)
	f.join(t, b, room.ID)

	f.relay.Disconnect(b)
	f.relay.Disconnect(b)

	if contains(f.registry.MembersOf(room.ID), b) {
		t.Fatal("disconnected session still subscribed")
	}
	f.publish(t, a, room.ID, "after")
	nextFrame(t, a)
	expectNoFrame(t, b)
}

func TestDisconnectWithoutJoin(t *testing.T) {
	f := newFixture(t)
	s := NewSession(4, "")
	f.relay.Disconnect(s)
	if !s.Closed() {
		t.Error("session not closed")
	}
}

func TestSlowSubscriberDoesNotAffectOthers(t *testing.T) {
	f := newFixture(t)
	room := f.createRoom(t, "lobby")
	fast := newIdentifiedSession(t, "fast")
	slow := NewSession(1, "")
	if err := slow.SetIdentity(models.Identity{ID: "slow"}); err != nil {
		t.Fatal(err)
	}
	f.join(t, fast, room.ID)
	f.join(t, slow, room.ID)

	for i := 0; i < 3; i++ {
		f.publish(t, fast, room.ID, fmt.Sprintf("m%d", i))
	}
	for i := 0; i < 3; i++ {
		if got := decodeMessage(t, nextFrame(t, fast)); got.Payload != fmt.Sprintf("m%d", i) {
			t.Errorf("fast subscriber got %q", got.Payload)
		}
	}
	if !slow.Closed() {
		t.Error("overflowing subscriber should be closed")
	}
	if contains(f.registry.MembersOf(room.ID), slow) {
		t.Error("overflowing subscriber still registered")
	}
}

func TestPublishOrderIsFIFOPerRoom(t *testing.T) {
	f := newFixture(t)
	room := f.createRoom(t, "lobby")
	readers := []*Session{NewSession(512, ""), NewSession(512, ""), NewSession(512, "")}
	for i, s := range readers {
		if err := s.SetIdentity(models.Identity{ID: fmt.Sprintf("r%d", i)}); err != nil {
			t.Fatal(err)
		}
		f.join(t, s, room.ID)
	}

	const writers, perWriter = 4, 25
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			author := models.Identity{ID: fmt.Sprintf("w%d", w)}
			for i := 0; i < perWriter; i++ {
				msg := ComposeMessage(author, models.SendMessagePayload{RoomID: room.ID, Type: models.MessageTypeText, Payload: fmt.Sprintf("w%d-%d", w, i)})
				if err := f.relay.Publish(context.Background(), room.ID, msg); err != nil {
					t.Errorf("Publish: %v", err)
				}
			}
		}(w)
	}
	wg.Wait()

	history, err := f.store.GetMessages(context.Background(), room.ID)
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	if len(history) != writers*perWriter {
		t.Fatalf("history length %d", len(history))
	}
	for _, s := range readers {
		for i, want := range history {
			got := decodeMessage(t, nextFrame(t, s))
			if got.ID != want.ID {
				t.Fatalf("reader %s position %d: got %s want %s", s.ID(), i, got.Payload, want.Payload)
			}
		}
	}
}

func (r *Relay) lockCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.locks)
}

func TestRoomLocksAreReleased(t *testing.T) {
	f := newFixture(t)
	author := newIdentifiedSession(t, "a")
	identity, _ := author.Identity()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		room := f.createRoom(t, fmt.Sprintf("room-%d", i))
		wg.Add(1)
		go func(roomID string) {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				msg := ComposeMessage(identity, models.SendMessagePayload{Type: models.MessageTypeText, Payload: "x"})
				if err := f.relay.Publish(context.Background(), roomID, msg); err != nil {
					t.Errorf("Publish: %v", err)
					return
				}
				if err := f.relay.Retract(context.Background(), roomID, msg.ID, identity.ID); err != nil {
					t.Errorf("Retract: %v", err)
					return
				}
			}
		}(room.ID)
	}
	wg.Wait()

	if got := f.relay.lockCount(); got != 0 {
		t.Errorf("%d room locks retained after all events finished", got)
	}
}
