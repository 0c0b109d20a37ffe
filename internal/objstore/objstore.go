// Package objstore is the durable-store adapter: a minimal bucket interface
// with Google Cloud Storage and local SQLite backends, plus a Resolver that
// lazily opens the configured bucket once per process.
package objstore

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a key has no stored object.
	ErrNotFound = errors.New("objstore: object not found")

	// ErrUnavailable is returned when no durable store is configured or the
	// configured container does not exist.
	ErrUnavailable = errors.New("objstore: store unavailable")
)

// Bucket is a flat key/blob container.
type Bucket interface {
	// Name identifies the bucket in logs and status reports.
	Name() string
	// Get returns the object body, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Put creates or overwrites the object at key.
	Put(ctx context.Context, key string, data []byte, contentType string) error
	// Exists reports whether an object is stored at key.
	Exists(ctx context.Context, key string) (bool, error)
}
