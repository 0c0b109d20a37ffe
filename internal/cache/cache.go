// Package cache provides the TTL-bounded in-process caches used by every
// tier: a single-value Slot and a size-capped, keyed LRU. Both carry a
// generation counter so a load that raced with an invalidation can be
// discarded instead of installed.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Entry is a cached payload and the time it was loaded. The zero Entry is
// empty and never valid.
type Entry[T any] struct {
	Value    T
	LoadedAt time.Time
	present  bool
}

// Valid reports whether the entry holds a payload younger than ttl.
func (e Entry[T]) Valid(now time.Time, ttl time.Duration) bool {
	return e.present && !e.LoadedAt.IsZero() && now.Sub(e.LoadedAt) < ttl
}

// Stats is a point-in-time view of a cache's counters.
type Stats struct {
	Hits     uint64    `json:"hits"`
	Misses   uint64    `json:"misses"`
	Entries  int       `json:"entries"`
	LoadedAt time.Time `json:"loaded_at,omitempty"`
}

// Slot caches one value with a TTL.
type Slot[T any] struct {
	mu     sync.Mutex
	clock  clockwork.Clock
	ttl    time.Duration
	entry  Entry[T]
	gen    uint64
	hits   uint64
	misses uint64
}

// NewSlot returns an empty slot. A nil clock uses the real clock.
func NewSlot[T any](clock clockwork.Clock, ttl time.Duration) *Slot[T] {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Slot[T]{clock: clock, ttl: ttl}
}

// Get returns the cached value if it is still valid.
func (s *Slot[T]) Get() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entry.Valid(s.clock.Now(), s.ttl) {
		s.hits++
		return s.entry.Value, true
	}
	s.misses++
	var zero T
	return zero, false
}

// Peek returns the cached value if valid without touching the counters.
func (s *Slot[T]) Peek() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entry.Valid(s.clock.Now(), s.ttl) {
		return s.entry.Value, true
	}
	var zero T
	return zero, false
}

// Set stores v with a load time of now.
func (s *Slot[T]) Set(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entry = Entry[T]{Value: v, LoadedAt: s.clock.Now(), present: true}
}

// SetIfGeneration stores v only if no invalidation happened since gen was
// read. It reports whether v was stored.
func (s *Slot[T]) SetIfGeneration(v T, gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return false
	}
	s.entry = Entry[T]{Value: v, LoadedAt: s.clock.Now(), present: true}
	return true
}

// Generation returns the current invalidation generation.
func (s *Slot[T]) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

// Invalidate empties the slot and advances the generation.
func (s *Slot[T]) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entry = Entry[T]{}
	s.gen++
}

// Stats returns the slot's counters.
func (s *Slot[T]) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Stats{Hits: s.hits, Misses: s.misses}
	if s.entry.Valid(s.clock.Now(), s.ttl) {
		st.Entries = 1
		st.LoadedAt = s.entry.LoadedAt
	}
	return st
}

// Keyed is a TTL cache over a size-capped LRU. Expired entries are evicted
// lazily on Get and in bulk by PurgeExpired.
type Keyed[K comparable, V any] struct {
	mu     sync.Mutex
	clock  clockwork.Clock
	ttl    time.Duration
	memory *lru.Cache[K, Entry[V]]
	gen    uint64
	hits   uint64
	misses uint64
}

// NewKeyed creates a keyed cache holding at most maxEntries values.
func NewKeyed[K comparable, V any](clock clockwork.Clock, ttl time.Duration, maxEntries int) (*Keyed[K, V], error) {
	if maxEntries <= 0 {
		maxEntries = 1024
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	memory, err := lru.New[K, Entry[V]](maxEntries)
	if err != nil {
		return nil, fmt.Errorf("cache: creating LRU: %w", err)
	}
	return &Keyed[K, V]{clock: clock, ttl: ttl, memory: memory}, nil
}

// Get returns the value for key if present and unexpired.
func (c *Keyed[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.memory.Get(key); ok {
		if e.Valid(c.clock.Now(), c.ttl) {
			c.hits++
			return e.Value, true
		}
		c.memory.Remove(key)
	}
	c.misses++
	var zero V
	return zero, false
}

// SetIfGeneration stores v only if no invalidation happened since gen was
// read.
func (c *Keyed[K, V]) SetIfGeneration(key K, v V, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return false
	}
	c.memory.Add(key, Entry[V]{Value: v, LoadedAt: c.clock.Now(), present: true})
	return true
}

// Generation returns the current invalidation generation.
func (c *Keyed[K, V]) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// Invalidate drops every entry and advances the generation.
func (c *Keyed[K, V]) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.memory.Purge()
	c.gen++
}

// Len returns the number of stored entries, expired or not.
func (c *Keyed[K, V]) Len() int {
	return c.memory.Len()
}

// Stats returns the cache's counters.
func (c *Keyed[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Hits: c.hits, Misses: c.misses, Entries: c.memory.Len()}
}

// PurgeExpired evicts every expired entry and returns how many were removed.
func (c *Keyed[K, V]) PurgeExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock.Now()
	removed := 0
	for _, key := range c.memory.Keys() {
		if e, ok := c.memory.Peek(key); ok && !e.Valid(now, c.ttl) {
			c.memory.Remove(key)
			removed++
		}
	}
	return removed
}

// StartPurger runs PurgeExpired every interval until ctx is cancelled. The
// returned channel is closed when the goroutine exits.
func (c *Keyed[K, V]) StartPurger(ctx context.Context, name string, interval time.Duration) <-chan struct{} {
	done := make(chan struct{})
	ticker := c.clock.NewTicker(interval)
	go func() {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				func() {
					defer func() {
						if r := recover(); r != nil {
							log.Error().Interface("panic", r).Str("cache", name).Msg("cache purger: recovered from panic")
						}
					}()
					if n := c.PurgeExpired(); n > 0 {
						log.Debug().Str("cache", name).Int("removed", n).Msg("purged expired cache entries")
					}
				}()
			}
		}
	}()
	return done
}
