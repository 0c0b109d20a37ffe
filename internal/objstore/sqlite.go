package objstore

import (
	"context"
	"database/sql"
	"errors"

	"github.com/allaspectsdev/icarus/internal/store"
)

// SQLiteBucket stores objects in the local SQLite database. It serves
// single-host deployments and development without cloud credentials.
type SQLiteBucket struct {
	st *store.Store
}

// NewSQLiteBucket wraps an open Store.
func NewSQLiteBucket(st *store.Store) *SQLiteBucket {
	return &SQLiteBucket{st: st}
}

// Name returns the sqlite:// URL of the database file.
func (b *SQLiteBucket) Name() string {
	return "sqlite://" + b.st.Path()
}

// Get returns the stored body for key.
func (b *SQLiteBucket) Get(ctx context.Context, key string) ([]byte, error) {
	o, err := b.st.GetObject(ctx, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return o.Body, nil
}

// Put stores data under key.
func (b *SQLiteBucket) Put(ctx context.Context, key string, data []byte, contentType string) error {
	return b.st.PutObject(ctx, key, data, contentType)
}

// Exists reports whether key is stored.
func (b *SQLiteBucket) Exists(ctx context.Context, key string) (bool, error) {
	return b.st.ObjectExists(ctx, key)
}
