package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"chat-relay/internal/database"
	"chat-relay/internal/models"
)

var (
	ErrInvalidRoomName = errors.New("room name is required")
	ErrInvalidIdentity = errors.New("identity id is required")
)

const maxRoomNameLength = 64

type RoomService struct {
	db database.Database
}

func NewRoomService(db database.Database) *RoomService {
	return &RoomService{db: db}
}

// CreateRoom stores a room under a unique name and generates its
// encryption key. The returned room is immediately joinable.
func (s *RoomService) CreateRoom(ctx context.Context, req *models.CreateRoomRequest) (*models.Room, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || len(req.Name) > maxRoomNameLength {
		return nil, ErrInvalidRoomName
	}

	if req.EncryptionKey == "" {
		key, err := generateKey()
		if err != nil {
			return nil, fmt.Errorf("failed to generate room key: %w", err)
		}
		req.EncryptionKey = key
	}

	return s.db.CreateRoom(ctx, req)
}

func (s *RoomService) GetRoom(ctx context.Context, roomID string) (*models.Room, error) {
	return s.db.GetRoom(ctx, roomID)
}

func (s *RoomService) GetRoomByName(ctx context.Context, name string) (*models.Room, error) {
	return s.db.GetRoomByName(ctx, strings.TrimSpace(name))
}

func (s *RoomService) GetMessages(ctx context.Context, roomID string) ([]*models.Message, error) {
	return s.db.GetMessages(ctx, roomID)
}

// RegisterIdentity upserts identity keyed by its id. Only the nickname and
// avatar of an existing identity are refreshed.
func (s *RoomService) RegisterIdentity(ctx context.Context, identity models.Identity) (*models.Identity, error) {
	identity.ID = strings.TrimSpace(identity.ID)
	if identity.ID == "" {
		return nil, ErrInvalidIdentity
	}
	if identity.Nickname == "" {
		identity.Nickname = nicknameFromUsername(identity.Username)
	}
	return s.db.UpsertIdentity(ctx, identity)
}

// nicknameFromUsername strips the mail domain, e.g. "ada@example.com" -> "ada".
func nicknameFromUsername(username string) string {
	if at := strings.LastIndex(username, "@"); at > 0 {
		return username[:at]
	}
	return username
}

func generateKey() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
