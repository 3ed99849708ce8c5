package websocket

import (
	"context"
	"encoding/json"
	"errors"

	"chat-relay/internal/database"
	"chat-relay/internal/models"
	"chat-relay/internal/relay"
	"chat-relay/internal/services"
	"chat-relay/pkg/logger"
)

const (
	codeRoomNotFound    = "room_not_found"
	codeIdentityMissing = "identity_missing"
	codeUnauthorized    = "unauthorized"
	codeMessageNotFound = "message_not_found"
	codeInvalidRequest  = "invalid_request"
	codeNotJoined       = "not_joined"
	codeRoomExists      = "room_exists"
	codeInternal        = "internal"
)

// Dispatcher routes inbound frames of one connection to the relay core.
// Frames of a connection are handled one at a time, in arrival order.
type Dispatcher struct {
	rooms       *services.RoomService
	coordinator *relay.Coordinator
	relay       *relay.Relay
}

func NewDispatcher(rooms *services.RoomService, coordinator *relay.Coordinator, r *relay.Relay) *Dispatcher {
	return &Dispatcher{
		rooms:       rooms,
		coordinator: coordinator,
		relay:       r,
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, s *relay.Session, frame models.Frame) {
	switch frame.Type {
	case models.FrameIdentityRegister:
		d.handleRegister(ctx, s, frame)
	case models.FrameRoomJoin:
		d.handleJoin(ctx, s, frame)
	case models.FrameRoomLeave:
		d.handleLeave(s, frame)
	case models.FrameRoomCreate:
		d.handleCreate(ctx, s, frame)
	case models.FrameMessageSend:
		d.handleSend(ctx, s, frame)
	case models.FrameMessageDelete:
		d.handleDelete(ctx, s, frame)
	default:
		d.reply(s, frame.RequestID, codeInvalidRequest, "unknown frame type")
	}
}

// Disconnect releases everything tied to s. Called once the transport
// detects the connection closed.
func (d *Dispatcher) Disconnect(s *relay.Session) {
	d.relay.Disconnect(s)
}

func (d *Dispatcher) handleRegister(ctx context.Context, s *relay.Session, frame models.Frame) {
	var identity models.Identity
	if !decode(frame, &identity) {
		d.reply(s, frame.RequestID, codeInvalidRequest, "invalid identity")
		return
	}
	if err := s.CheckIdentity(identity.ID); err != nil {
		d.replyErr(s, frame.RequestID, err)
		return
	}

	stored, err := d.rooms.RegisterIdentity(ctx, identity)
	if err != nil {
		d.replyErr(s, frame.RequestID, err)
		return
	}
	if err := s.SetIdentity(*stored); err != nil {
		d.replyErr(s, frame.RequestID, err)
		return
	}
	d.send(s, models.NewFrame(models.FrameIdentityRegister, frame.RequestID, stored))
}

func (d *Dispatcher) handleJoin(ctx context.Context, s *relay.Session, frame models.Frame) {
	var ref models.RoomRef
	if !decode(frame, &ref) || ref.RoomID == "" {
		d.reply(s, frame.RequestID, codeInvalidRequest, "roomId is required")
		return
	}
	// the coordinator queues the acknowledgement itself
	if _, err := d.coordinator.Join(ctx, s, ref.RoomID, frame.RequestID); err != nil {
		d.replyErr(s, frame.RequestID, err)
	}
}

func (d *Dispatcher) handleLeave(s *relay.Session, frame models.Frame) {
	roomID := d.coordinator.Leave(s)
	d.send(s, models.NewFrame(models.FrameRoomLeave, frame.RequestID, models.RoomRef{RoomID: roomID}))
}

func (d *Dispatcher) handleCreate(ctx context.Context, s *relay.Session, frame models.Frame) {
	var req models.CreateRoomPayload
	if !decode(frame, &req) {
		d.reply(s, frame.RequestID, codeInvalidRequest, "invalid room")
		return
	}
	room, err := d.rooms.CreateRoom(ctx, &models.CreateRoomRequest{Name: req.Name, AvatarLink: req.AvatarLink})
	if err != nil {
		d.replyErr(s, frame.RequestID, err)
		return
	}
	logger.Info("Room %s created (%s)", room.Name, room.ID)
	d.send(s, models.NewFrame(models.FrameRoomCreate, frame.RequestID, room))
}

// handleSend has no success reply; the sender sees its message through
// the room fan-out.
func (d *Dispatcher) handleSend(ctx context.Context, s *relay.Session, frame models.Frame) {
	var in models.SendMessagePayload
	if !decode(frame, &in) {
		d.reply(s, frame.RequestID, codeInvalidRequest, "invalid message")
		return
	}
	identity, ok := s.Identity()
	if !ok {
		d.replyErr(s, frame.RequestID, relay.ErrIdentityMissing)
		return
	}
	roomID, ok := joinedRoom(s, in.RoomID)
	if !ok {
		d.reply(s, frame.RequestID, codeNotJoined, "join the room before sending")
		return
	}
	in.RoomID = roomID

	if err := d.relay.Publish(ctx, roomID, relay.ComposeMessage(identity, in)); err != nil {
		d.replyErr(s, frame.RequestID, err)
	}
}

func (d *Dispatcher) handleDelete(ctx context.Context, s *relay.Session, frame models.Frame) {
	var in models.DeleteMessagePayload
	if !decode(frame, &in) || in.MessageID == "" {
		d.reply(s, frame.RequestID, codeInvalidRequest, "messageId is required")
		return
	}
	identity, ok := s.Identity()
	if !ok {
		d.replyErr(s, frame.RequestID, relay.ErrIdentityMissing)
		return
	}
	roomID, ok := joinedRoom(s, in.RoomID)
	if !ok {
		d.reply(s, frame.RequestID, codeNotJoined, "join the room before deleting")
		return
	}

	if err := d.relay.Retract(ctx, roomID, in.MessageID, identity.ID); err != nil {
		d.replyErr(s, frame.RequestID, err)
	}
}

// joinedRoom resolves the target room of a message frame. An empty roomID
// means the session's current room.
func joinedRoom(s *relay.Session, roomID string) (string, bool) {
	current := s.RoomID()
	if current == "" {
		return "", false
	}
	if roomID != "" && roomID != current {
		return "", false
	}
	return current, true
}

func decode(frame models.Frame, v interface{}) bool {
	if len(frame.Payload) == 0 {
		return false
	}
	return json.Unmarshal(frame.Payload, v) == nil
}

func (d *Dispatcher) replyErr(s *relay.Session, requestID string, err error) {
	code, message := errorCode(err)
	if code == codeInternal {
		logger.Error("Request %s on session %s failed: %v", requestID, s.ID(), err)
	}
	d.reply(s, requestID, code, message)
}

func (d *Dispatcher) reply(s *relay.Session, requestID, code, message string) {
	d.send(s, models.NewFrame(models.FrameError, requestID, models.ErrorPayload{Code: code, Message: message}))
}

// send queues a frame for s alone. A failed send is only logged; the
// transport notices the closed session on its own.
func (d *Dispatcher) send(s *relay.Session, frame models.Frame) {
	if err := s.Send(frame); err != nil {
		logger.Debug("Dropped %s frame for session %s: %v", frame.Type, s.ID(), err)
	}
}

func errorCode(err error) (string, string) {
	switch {
	case errors.Is(err, relay.ErrRoomNotFound), errors.Is(err, database.ErrNotFound):
		return codeRoomNotFound, "room does not exist"
	case errors.Is(err, relay.ErrIdentityMissing):
		return codeIdentityMissing, "register an identity first"
	case errors.Is(err, relay.ErrUnauthorized), errors.Is(err, relay.ErrIdentityConflict):
		return codeUnauthorized, err.Error()
	case errors.Is(err, relay.ErrMessageNotFound):
		return codeMessageNotFound, "message does not exist"
	case errors.Is(err, relay.ErrInvalidMessage),
		errors.Is(err, services.ErrInvalidRoomName),
		errors.Is(err, services.ErrInvalidIdentity):
		return codeInvalidRequest, err.Error()
	case errors.Is(err, database.ErrRoomExists):
		return codeRoomExists, "room name already taken"
	case errors.Is(err, relay.ErrSessionClosed):
		return codeInternal, "connection closing"
	default:
		return codeInternal, "internal error"
	}
}
