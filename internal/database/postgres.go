package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chat-relay/internal/models"
	"chat-relay/pkg/logger"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

const schema = `
CREATE TABLE IF NOT EXISTS identities (
	id          TEXT PRIMARY KEY,
	username    TEXT NOT NULL DEFAULT '',
	nickname    TEXT NOT NULL DEFAULT '',
	avatar_link TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS rooms (
	id             TEXT PRIMARY KEY,
	name           TEXT NOT NULL UNIQUE,
	avatar_link    TEXT NOT NULL DEFAULT '',
	encryption_key TEXT NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS room_members (
	room_id     TEXT NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
	identity_id TEXT NOT NULL REFERENCES identities(id),
	joined_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (room_id, identity_id)
);

CREATE TABLE IF NOT EXISTS messages (
	seq             BIGSERIAL PRIMARY KEY,
	id              TEXT NOT NULL UNIQUE,
	room_id         TEXT NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
	author_id       TEXT NOT NULL,
	author_username TEXT NOT NULL DEFAULT '',
	author_nickname TEXT NOT NULL DEFAULT '',
	author_avatar   TEXT NOT NULL DEFAULT '',
	type            TEXT NOT NULL,
	payload         TEXT NOT NULL,
	sent_at         BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS messages_room_seq_idx ON messages (room_id, seq);`

type PostgresDB struct {
	pool *pgxpool.Pool
}

func NewPostgresDB(databaseURL string) (*PostgresDB, error) {
	pool, err := pgxpool.New(context.Background(), databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test connection
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Connected to database successfully")
	return &PostgresDB{pool: pool}, nil
}

// EnsureSchema creates the relay tables if they do not exist yet.
func (db *PostgresDB) EnsureSchema(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func (db *PostgresDB) Close() error {
	db.pool.Close()
	return nil
}

// Identity Repository Implementation
func (db *PostgresDB) UpsertIdentity(ctx context.Context, identity models.Identity) (*models.Identity, error) {
	if identity.ID == "" {
		return nil, fmt.Errorf("identity id is required")
	}

	query := `
		INSERT INTO identities (id, username, nickname, avatar_link)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET nickname = EXCLUDED.nickname, avatar_link = EXCLUDED.avatar_link
		RETURNING id, username, nickname, avatar_link`

	stored := &models.Identity{}
	err := db.pool.QueryRow(ctx, query, identity.ID, identity.Username, identity.Nickname, identity.AvatarLink).Scan(
		&stored.ID, &stored.Username, &stored.Nickname, &stored.AvatarLink,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert identity: %w", err)
	}
	return stored, nil
}

// Room Repository Implementation
func (db *PostgresDB) CreateRoom(ctx context.Context, req *models.CreateRoomRequest) (*models.Room, error) {
	query := `
		INSERT INTO rooms (id, name, avatar_link, encryption_key, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING id, name, avatar_link, encryption_key, created_at`

	room := &models.Room{}
	err := db.pool.QueryRow(ctx, query, uuid.NewString(), req.Name, req.AvatarLink, req.EncryptionKey).Scan(
		&room.ID, &room.Name, &room.AvatarLink, &room.EncryptionKey, &room.CreatedAt,
	)
	if err != nil {
		if isPgError(err, pgUniqueViolation) {
			return nil, ErrRoomExists
		}
		return nil, fmt.Errorf("failed to create room: %w", err)
	}
	return room, nil
}

func (db *PostgresDB) GetRoom(ctx context.Context, roomID string) (*models.Room, error) {
	return db.getRoomWhere(ctx, "id", roomID)
}

func (db *PostgresDB) GetRoomByName(ctx context.Context, name string) (*models.Room, error) {
	return db.getRoomWhere(ctx, "name", name)
}

// column is always a literal chosen by the callers above.
func (db *PostgresDB) getRoomWhere(ctx context.Context, column, value string) (*models.Room, error) {
	query := `SELECT id, name, avatar_link, encryption_key, created_at FROM rooms WHERE ` + column + ` = $1`

	room := &models.Room{}
	err := db.pool.QueryRow(ctx, query, value).Scan(
		&room.ID, &room.Name, &room.AvatarLink, &room.EncryptionKey, &room.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load room: %w", err)
	}

	members, err := db.roomMembers(ctx, room.ID)
	if err != nil {
		return nil, err
	}
	room.Members = members
	return room, nil
}

func (db *PostgresDB) roomMembers(ctx context.Context, roomID string) ([]models.Identity, error) {
	query := `
		SELECT i.id, i.username, i.nickname, i.avatar_link
		FROM room_members m
		JOIN identities i ON m.identity_id = i.id
		WHERE m.room_id = $1
		ORDER BY m.joined_at`

	rows, err := db.pool.Query(ctx, query, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to load room members: %w", err)
	}
	defer rows.Close()

	var members []models.Identity
	for rows.Next() {
		var member models.Identity
		if err := rows.Scan(&member.ID, &member.Username, &member.Nickname, &member.AvatarLink); err != nil {
			return nil, err
		}
		members = append(members, member)
	}
	return members, rows.Err()
}

func (db *PostgresDB) AddMember(ctx context.Context, roomID string, identity models.Identity) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO identities (id, username, nickname, avatar_link)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING`,
		identity.ID, identity.Username, identity.Nickname, identity.AvatarLink,
	); err != nil {
		return fmt.Errorf("failed to store identity: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO room_members (room_id, identity_id) VALUES ($1, $2)
		ON CONFLICT (room_id, identity_id) DO NOTHING`,
		roomID, identity.ID,
	); err != nil {
		if isPgError(err, pgForeignKeyViolation) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to add member: %w", err)
	}

	return tx.Commit(ctx)
}

// Message Repository Implementation
func (db *PostgresDB) GetMessages(ctx context.Context, roomID string) ([]*models.Message, error) {
	var exists bool
	if err := db.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM rooms WHERE id = $1)`, roomID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check room: %w", err)
	}
	if !exists {
		return nil, ErrNotFound
	}

	query := `
		SELECT id, room_id, author_id, author_username, author_nickname, author_avatar, type, payload, sent_at
		FROM messages
		WHERE room_id = $1
		ORDER BY seq`

	rows, err := db.pool.Query(ctx, query, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	defer rows.Close()

	messages := []*models.Message{}
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func (db *PostgresDB) GetMessage(ctx context.Context, roomID, messageID string) (*models.Message, error) {
	query := `
		SELECT id, room_id, author_id, author_username, author_nickname, author_avatar, type, payload, sent_at
		FROM messages
		WHERE room_id = $1 AND id = $2`

	msg, err := scanMessage(db.pool.QueryRow(ctx, query, roomID, messageID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load message: %w", err)
	}
	return msg, nil
}

func (db *PostgresDB) AppendMessage(ctx context.Context, roomID string, msg *models.Message) error {
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().UnixMilli()
	}

	query := `
		INSERT INTO messages (id, room_id, author_id, author_username, author_nickname, author_avatar, type, payload, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := db.pool.Exec(ctx, query,
		msg.ID, roomID, msg.Author.ID, msg.Author.Username, msg.Author.Nickname, msg.Author.AvatarLink,
		string(msg.Type), msg.Payload, msg.Timestamp,
	)
	if err != nil {
		if isPgError(err, pgForeignKeyViolation) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

func (db *PostgresDB) DeleteMessage(ctx context.Context, roomID, messageID string) error {
	tag, err := db.pool.Exec(ctx, `DELETE FROM messages WHERE room_id = $1 AND id = $2`, roomID, messageID)
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanMessage(row pgx.Row) (*models.Message, error) {
	msg := &models.Message{}
	var msgType string
	err := row.Scan(
		&msg.ID, &msg.RoomID,
		&msg.Author.ID, &msg.Author.Username, &msg.Author.Nickname, &msg.Author.AvatarLink,
		&msgType, &msg.Payload, &msg.Timestamp,
	)
	if err != nil {
		return nil, err
	}
	msg.Type = models.MessageType(msgType)
	return msg, nil
}

func isPgError(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
