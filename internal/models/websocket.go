package models

import "encoding/json"

type FrameType string

const (
	FrameIdentityRegister FrameType = "identity.register"
	FrameRoomJoin         FrameType = "room.join"
	FrameRoomLeave        FrameType = "room.leave"
	FrameRoomCreate       FrameType = "room.create"
	FrameMessageSend      FrameType = "message.send"
	FrameMessageDelete    FrameType = "message.delete"

	FrameRoomMessage        FrameType = "room.message"
	FrameRoomMessageDeleted FrameType = "room.messageDeleted"
	FrameError              FrameType = "error"
)

// Frame is the envelope for every websocket message in either direction.
type Frame struct {
	Type      FrameType       `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type RoomRef struct {
	RoomID string `json:"roomId"`
}

type SendMessagePayload struct {
	RoomID  string      `json:"roomId"`
	Type    MessageType `json:"type"`
	Payload string      `json:"payload"`
	Date    int64       `json:"date,omitempty"`
}

type DeleteMessagePayload struct {
	RoomID    string `json:"roomId"`
	MessageID string `json:"messageId"`
}

type CreateRoomPayload struct {
	Name       string `json:"name"`
	AvatarLink string `json:"avatarLink,omitempty"`
}

// RoomSnapshot is the join acknowledgement: metadata plus the full history.
type RoomSnapshot struct {
	Room     *Room      `json:"room"`
	Messages []*Message `json:"messages"`
}

type MessageDeleted struct {
	RoomID    string `json:"roomId"`
	MessageID string `json:"messageId"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

var encodeFailure = json.RawMessage(`{"code":"internal","message":"failed to encode payload"}`)

// NewFrame marshals payload into a frame. A payload that cannot be encoded
// yields an error frame instead.
func NewFrame(t FrameType, requestID string, payload interface{}) Frame {
	data, err := json.Marshal(payload)
	if err != nil {
		return Frame{Type: FrameError, RequestID: requestID, Payload: encodeFailure}
	}
	return Frame{Type: t, RequestID: requestID, Payload: data}
}
