package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Object is a stored blob.
type Object struct {
	Key         string
	Body        []byte
	ContentType string
	Size        int64
	UpdatedAt   string
}

// GetObject retrieves the object stored under key.
// Returns sql.ErrNoRows (wrapped) if the key does not exist.
func (s *Store) GetObject(ctx context.Context, key string) (*Object, error) {
	o := &Object{}
	err := s.reader.QueryRowContext(ctx, `
		SELECT key, body, content_type, size, updated_at
		FROM objects WHERE key = ?`, key,
	).Scan(&o.Key, &o.Body, &o.ContentType, &o.Size, &o.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("store: get object %s: %w", key, err)
	}
	return o, nil
}

// PutObject inserts or replaces the object stored under key.
func (s *Store) PutObject(ctx context.Context, key string, body []byte, contentType string) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := s.writer.ExecContext(ctx, `
		INSERT OR REPLACE INTO objects (key, body, content_type, size, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		key, body, contentType, len(body), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("store: put object %s: %w", key, err)
	}
	return nil
}

// ObjectExists reports whether an object is stored under key.
func (s *Store) ObjectExists(ctx context.Context, key string) (bool, error) {
	var one int
	err := s.reader.QueryRowContext(ctx, "SELECT 1 FROM objects WHERE key = ?", key).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: object exists %s: %w", key, err)
	}
	return true, nil
}
