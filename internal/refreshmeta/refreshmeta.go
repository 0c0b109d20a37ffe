// Package refreshmeta persists the last-extract and last-promote timestamps
// as small RFC 3339 text objects next to the snapshots.
package refreshmeta

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/allaspectsdev/icarus/internal/cache"
	"github.com/allaspectsdev/icarus/internal/objstore"
)

const contentType = "text/plain; charset=utf-8"

// Get reads the timestamp stored at key. It returns false when b is nil, the
// object is missing or its body does not parse.
func Get(ctx context.Context, b objstore.Bucket, key string) (time.Time, bool) {
	if b == nil {
		return time.Time{}, false
	}
	data, err := b.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, objstore.ErrNotFound) {
			log.Warn().Err(err).Str("key", key).Msg("refresh timestamp read failed")
		}
		return time.Time{}, false
	}
	ts, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(string(data)))
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("refresh timestamp unparseable")
		return time.Time{}, false
	}
	return ts.UTC(), true
}

// Set writes ts to key in UTC and reports success.
func Set(ctx context.Context, b objstore.Bucket, key string, ts time.Time) bool {
	if b == nil {
		return false
	}
	body := []byte(ts.UTC().Format(time.RFC3339Nano))
	if err := b.Put(ctx, key, body, contentType); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("refresh timestamp write failed")
		return false
	}
	return true
}

// BucketFunc yields the durable bucket, or nil when none is available.
type BucketFunc func(ctx context.Context) objstore.Bucket

// Tracker reads and writes the two refresh timestamps through a short-lived
// cache. Only present timestamps are cached; an absent one is re-read on
// every call.
type Tracker struct {
	bucket     BucketFunc
	clock      clockwork.Clock
	extractKey string
	promoteKey string
	extract    *cache.Slot[time.Time]
	promote    *cache.Slot[time.Time]
}

// NewTracker returns a Tracker for the given keys. ttl bounds how long a read
// timestamp is reused.
func NewTracker(bucket BucketFunc, clock clockwork.Clock, ttl time.Duration, extractKey, promoteKey string) *Tracker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Tracker{
		bucket:     bucket,
		clock:      clock,
		extractKey: extractKey,
		promoteKey: promoteKey,
		extract:    cache.NewSlot[time.Time](clock, ttl),
		promote:    cache.NewSlot[time.Time](clock, ttl),
	}
}

// LastExtract returns when data was last extracted to staging.
func (t *Tracker) LastExtract(ctx context.Context) (time.Time, bool) {
	return t.read(ctx, t.extract, t.extractKey)
}

// LastPromote returns when staging was last promoted to active.
func (t *Tracker) LastPromote(ctx context.Context) (time.Time, bool) {
	return t.read(ctx, t.promote, t.promoteKey)
}

// MarkExtracted records an extraction at the current time.
func (t *Tracker) MarkExtracted(ctx context.Context) bool {
	return t.write(ctx, t.extract, t.extractKey)
}

// MarkPromoted records a promotion at the current time.
func (t *Tracker) MarkPromoted(ctx context.Context) bool {
	return t.write(ctx, t.promote, t.promoteKey)
}

// StagingReady reports whether an extraction exists that has not been
// promoted yet.
func (t *Tracker) StagingReady(ctx context.Context) bool {
	extracted, ok := t.LastExtract(ctx)
	if !ok {
		return false
	}
	promoted, ok := t.LastPromote(ctx)
	if !ok {
		return true
	}
	return extracted.After(promoted)
}

// Invalidate drops both cached timestamps.
func (t *Tracker) Invalidate() {
	t.extract.Invalidate()
	t.promote.Invalidate()
}

// Stats returns the combined counters of both timestamp caches.
func (t *Tracker) Stats() cache.Stats {
	e, p := t.extract.Stats(), t.promote.Stats()
	return cache.Stats{
		Hits:    e.Hits + p.Hits,
		Misses:  e.Misses + p.Misses,
		Entries: e.Entries + p.Entries,
	}
}

func (t *Tracker) read(ctx context.Context, slot *cache.Slot[time.Time], key string) (time.Time, bool) {
	if ts, ok := slot.Get(); ok {
		return ts, true
	}
	gen := slot.Generation()
	ts, ok := Get(ctx, t.bucketFor(ctx), key)
	if ok {
		slot.SetIfGeneration(ts, gen)
	}
	return ts, ok
}

func (t *Tracker) write(ctx context.Context, slot *cache.Slot[time.Time], key string) bool {
	ts := t.clock.Now().UTC()
	if !Set(ctx, t.bucketFor(ctx), key, ts) {
		return false
	}
	slot.Invalidate()
	slot.Set(ts)
	return true
}

func (t *Tracker) bucketFor(ctx context.Context) objstore.Bucket {
	if t.bucket == nil {
		return nil
	}
	return t.bucket(ctx)
}

// Format renders ts for status displays, or "--" when absent.
func Format(ts time.Time, ok bool) string {
	if !ok || ts.IsZero() {
		return "--"
	}
	return ts.Format("02 Jan, 15:04")
}
