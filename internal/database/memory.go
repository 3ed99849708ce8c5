package database

import (
	"context"
	"fmt"
	"sync"
	"time"

	"chat-relay/internal/models"

	"github.com/google/uuid"
)

// MemoryDB keeps rooms, messages and identities in process memory. It backs
// the server when no DATABASE_URL is configured.
type MemoryDB struct {
	mu         sync.RWMutex
	identities map[string]models.Identity
	rooms      map[string]*models.Room
	roomNames  map[string]string
	messages   map[string][]*models.Message
}

func NewMemoryDB() *MemoryDB {
	return &MemoryDB{
		identities: make(map[string]models.Identity),
		rooms:      make(map[string]*models.Room),
		roomNames:  make(map[string]string),
		messages:   make(map[string][]*models.Message),
	}
}

func (db *MemoryDB) Close() error {
	return nil
}

func (db *MemoryDB) UpsertIdentity(ctx context.Context, identity models.Identity) (*models.Identity, error) {
	if identity.ID == "" {
		return nil, fmt.Errorf("identity id is required")
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	if existing, ok := db.identities[identity.ID]; ok {
		// only the display fields may change after creation
		existing.Nickname = identity.Nickname
		existing.AvatarLink = identity.AvatarLink
		identity = existing
	}
	db.identities[identity.ID] = identity
	return &identity, nil
}

func (db *MemoryDB) CreateRoom(ctx context.Context, req *models.CreateRoomRequest) (*models.Room, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, taken := db.roomNames[req.Name]; taken {
		return nil, ErrRoomExists
	}

	room := &models.Room{
		ID:            uuid.NewString(),
		Name:          req.Name,
		AvatarLink:    req.AvatarLink,
		EncryptionKey: req.EncryptionKey,
		CreatedAt:     time.Now().UTC(),
	}
	db.rooms[room.ID] = room
	db.roomNames[room.Name] = room.ID
	return cloneRoom(room), nil
}

func (db *MemoryDB) GetRoom(ctx context.Context, roomID string) (*models.Room, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	room, ok := db.rooms[roomID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRoom(room), nil
}

func (db *MemoryDB) GetRoomByName(ctx context.Context, name string) (*models.Room, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	id, ok := db.roomNames[name]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRoom(db.rooms[id]), nil
}

func (db *MemoryDB) AddMember(ctx context.Context, roomID string, identity models.Identity) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	room, ok := db.rooms[roomID]
	if !ok {
		return ErrNotFound
	}
	for i, member := range room.Members {
		if member.ID == identity.ID {
			room.Members[i] = identity
			return nil
		}
	}
	room.Members = append(room.Members, identity)
	return nil
}

func (db *MemoryDB) GetMessages(ctx context.Context, roomID string) ([]*models.Message, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if _, ok := db.rooms[roomID]; !ok {
		return nil, ErrNotFound
	}
	history := db.messages[roomID]
	messages := make([]*models.Message, 0, len(history))
	for _, msg := range history {
		copied := *msg
		messages = append(messages, &copied)
	}
	return messages, nil
}

func (db *MemoryDB) GetMessage(ctx context.Context, roomID, messageID string) (*models.Message, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	for _, msg := range db.messages[roomID] {
		if msg.ID == messageID {
			copied := *msg
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

func (db *MemoryDB) AppendMessage(ctx context.Context, roomID string, msg *models.Message) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.rooms[roomID]; !ok {
		return ErrNotFound
	}
	copied := *msg
	copied.RoomID = roomID
	db.messages[roomID] = append(db.messages[roomID], &copied)
	return nil
}

func (db *MemoryDB) DeleteMessage(ctx context.Context, roomID, messageID string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	history := db.messages[roomID]
	for i, msg := range history {
		if msg.ID == messageID {
			db.messages[roomID] = append(history[:i:i], history[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func cloneRoom(room *models.Room) *models.Room {
	copied := *room
	copied.Members = append([]models.Identity(nil), room.Members...)
	return &copied
}
