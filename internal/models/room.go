package models

import "time"

// Identity is the read-only view of a chat user attached to a session.
type Identity struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	Nickname   string `json:"nickname"`
	AvatarLink string `json:"avatarLink,omitempty"`
}

// Valid reports whether the identity can author messages.
func (i Identity) Valid() bool {
	return i.ID != ""
}

type Room struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	AvatarLink    string     `json:"avatarLink,omitempty"`
	EncryptionKey string     `json:"key"`
	Members       []Identity `json:"users"`
	CreatedAt     time.Time  `json:"created_at"`
}

type CreateRoomRequest struct {
	Name       string `json:"name"`
	AvatarLink string `json:"avatarLink,omitempty"`
	// EncryptionKey is generated by the room service when empty.
	EncryptionKey string `json:"-"`
}
