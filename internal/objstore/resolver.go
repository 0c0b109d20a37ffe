package objstore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"

	"github.com/allaspectsdev/icarus/internal/store"
)

// Opener opens the configured bucket. It returns an error wrapping
// ErrUnavailable when no store is configured.
type Opener func(ctx context.Context) (Bucket, error)

// Resolver memoizes the process-wide bucket handle. The first call to
// Bucket runs the opener; its outcome, including a failure, is kept for the
// life of the process and never retried.
type Resolver struct {
	open   Opener
	once   sync.Once
	bucket Bucket
}

// NewResolver returns a Resolver that resolves through open. A nil open
// resolves to no bucket.
func NewResolver(open Opener) *Resolver {
	return &Resolver{open: open}
}

// Bucket returns the resolved bucket, or nil when no durable store is
// available. Callers must treat nil as "no durable cache", never as fatal.
func (r *Resolver) Bucket(ctx context.Context) Bucket {
	r.once.Do(func() {
		if r.open == nil {
			return
		}
		// The outcome is kept for every later caller, so it must not
		// depend on whether this caller is still waiting.
		b, err := r.open(context.WithoutCancel(ctx))
		if err != nil {
			if errors.Is(err, ErrUnavailable) {
				log.Info().Err(err).Msg("durable store unavailable; serving from source only")
			} else {
				log.Warn().Err(err).Msg("durable store probe failed; serving from source only")
			}
			return
		}
		log.Info().Str("bucket", b.Name()).Msg("durable store resolved")
		r.bucket = b
	})
	return r.bucket
}

// Backend names accepted by Open.
const (
	BackendNone   = "none"
	BackendGCS    = "gcs"
	BackendSQLite = "sqlite"
)

// Config selects and parameterises a backend.
type Config struct {
	Backend string
	Bucket  string
	// Store is required for the sqlite backend.
	Store *store.Store
	// ClientOptions are passed to the GCS client.
	ClientOptions []option.ClientOption
}

// Open returns an Opener for cfg.
func Open(cfg Config) Opener {
	return func(ctx context.Context) (Bucket, error) {
		switch cfg.Backend {
		case "", BackendNone:
			return nil, fmt.Errorf("objstore: backend %q: %w", cfg.Backend, ErrUnavailable)
		case BackendGCS:
			if cfg.Bucket == "" {
				return nil, fmt.Errorf("objstore: no gcs bucket configured: %w", ErrUnavailable)
			}
			return OpenGCS(ctx, cfg.Bucket, cfg.ClientOptions...)
		case BackendSQLite:
			if cfg.Store == nil {
				return nil, fmt.Errorf("objstore: sqlite backend without store: %w", ErrUnavailable)
			}
			return NewSQLiteBucket(cfg.Store), nil
		default:
			return nil, fmt.Errorf("objstore: unknown backend %q", cfg.Backend)
		}
	}
}
