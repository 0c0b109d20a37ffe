package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/allaspectsdev/icarus/internal/objstore"
)

// ErrInjected is returned by MemBucket operations while Fail is set.
var ErrInjected = errors.New("testutil: injected bucket failure")

// MemBucket is an in-memory objstore.Bucket that counts calls.
type MemBucket struct {
	mu      sync.Mutex
	objects map[string][]byte

	// Fail makes every operation return ErrInjected.
	Fail bool

	Gets int
	Puts int
}

// NewMemBucket returns an empty bucket.
func NewMemBucket() *MemBucket {
	return &MemBucket{objects: make(map[string][]byte)}
}

func (b *MemBucket) Name() string { return "mem://test" }

func (b *MemBucket) Get(_ context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Gets++
	if b.Fail {
		return nil, ErrInjected
	}
	data, ok := b.objects[key]
	if !ok {
		return nil, objstore.ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

func (b *MemBucket) Put(_ context.Context, key string, data []byte, _ string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Puts++
	if b.Fail {
		return ErrInjected
	}
	b.objects[key] = append([]byte(nil), data...)
	return nil
}

func (b *MemBucket) Exists(_ context.Context, key string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Fail {
		return false, ErrInjected
	}
	_, ok := b.objects[key]
	return ok, nil
}

// Has reports whether key is stored, bypassing Fail and the counters.
func (b *MemBucket) Has(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.objects[key]
	return ok
}

// Raw returns the stored bytes for key, bypassing Fail and the counters.
func (b *MemBucket) Raw(key string) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.objects[key]
}

// SetRaw stores data under key, bypassing Fail and the counters.
func (b *MemBucket) SetRaw(key string, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = append([]byte(nil), data...)
}
