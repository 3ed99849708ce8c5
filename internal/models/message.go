package models

type MessageType string

const (
	MessageTypeText       MessageType = "text"
	MessageTypeImage      MessageType = "image"
	MessageTypeAttachment MessageType = "attachment"
	MessageTypeDefault    MessageType = "default"
)

func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeText, MessageTypeImage, MessageTypeAttachment, MessageTypeDefault:
		return true
	}
	return false
}

// Message is one persisted chat entry. Payload is carried byte-for-byte; for
// text messages it is ciphertext.
type Message struct {
	ID        string      `json:"id"`
	RoomID    string      `json:"roomId"`
	Author    Identity    `json:"user"`
	Type      MessageType `json:"type"`
	Payload   string      `json:"payload"`
	Timestamp int64       `json:"date"`
}
