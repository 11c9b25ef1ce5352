// Package contentstore persists SDK-uploaded content items in the control
// store. These are client-side captures addressed by id and hash,
// complementing the per-event warm/cold tiers in pkg/eventstore.
package contentstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a content item does not exist.
var ErrNotFound = errors.New("content item not found")

// Item is one stored content item.
type Item struct {
	TeamID      string    `json:"team_id"`
	ContentID   string    `json:"content_id"`
	ContentHash string    `json:"content_hash"`
	Content     string    `json:"content"`
	ByteSize    int       `json:"byte_size"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Store provides content item persistence.
type Store struct {
	db *sql.DB
}

// NewStore creates a content store over the control database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Put upserts one item by (team, content_id).
func (s *Store) Put(ctx context.Context, item Item) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO content_items (team_id, content_id, content_hash, content, byte_size)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (team_id, content_id) DO UPDATE SET
			content_hash = EXCLUDED.content_hash,
			content = EXCLUDED.content,
			byte_size = EXCLUDED.byte_size,
			updated_at = now()`,
		item.TeamID, item.ContentID, item.ContentHash, item.Content, item.ByteSize)
	if err != nil {
		return fmt.Errorf("storing content item %s: %w", item.ContentID, err)
	}
	return nil
}

// GetByID reads one item by its content id.
func (s *Store) GetByID(ctx context.Context, teamID, contentID string) (*Item, error) {
	return s.get(ctx, `WHERE team_id = $1 AND content_id = $2`, teamID, contentID)
}

// GetByHash reads the newest item with the given hash.
func (s *Store) GetByHash(ctx context.Context, teamID, hash string) (*Item, error) {
	return s.get(ctx, `WHERE team_id = $1 AND content_hash = $2 ORDER BY updated_at DESC LIMIT 1`, teamID, hash)
}

func (s *Store) get(ctx context.Context, where string, args ...any) (*Item, error) {
	var item Item
	err := s.db.QueryRowContext(ctx, `
		SELECT team_id, content_id, content_hash, content, byte_size, created_at, updated_at
		  FROM content_items `+where, args...).Scan(
		&item.TeamID, &item.ContentID, &item.ContentHash, &item.Content,
		&item.ByteSize, &item.CreatedAt, &item.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading content item: %w", err)
	}
	return &item, nil
}
