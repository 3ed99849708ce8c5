package database

import (
	"context"
	"errors"

	"chat-relay/internal/models"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrRoomExists = errors.New("room name already taken")
)

type IdentityRepository interface {
	UpsertIdentity(ctx context.Context, identity models.Identity) (*models.Identity, error)
}

type RoomRepository interface {
	CreateRoom(ctx context.Context, req *models.CreateRoomRequest) (*models.Room, error)
	GetRoom(ctx context.Context, roomID string) (*models.Room, error)
	GetRoomByName(ctx context.Context, name string) (*models.Room, error)
	AddMember(ctx context.Context, roomID string, identity models.Identity) error
}

type MessageRepository interface {
	// GetMessages returns the room history oldest first.
	GetMessages(ctx context.Context, roomID string) ([]*models.Message, error)
	GetMessage(ctx context.Context, roomID, messageID string) (*models.Message, error)
	AppendMessage(ctx context.Context, roomID string, msg *models.Message) error
	DeleteMessage(ctx context.Context, roomID, messageID string) error
}

// HistoryGateway is the persistence boundary used by the relay core.
type HistoryGateway interface {
	RoomRepository
	MessageRepository
}

type Database interface {
	IdentityRepository
	HistoryGateway
	Close() error
}
