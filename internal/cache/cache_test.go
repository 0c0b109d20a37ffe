package cache

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

const eps = time.Millisecond

// ---------------------------------------------------------------------------
// Slot tests
// ---------------------------------------------------------------------------

func TestSlot_EmptyIsMiss(t *testing.T) {
	s := NewSlot[int](clockwork.NewFakeClock(), time.Minute)
	if _, ok := s.Get(); ok {
		t.Error("expected miss on empty slot")
	}
}

func TestSlot_TTLBoundary(t *testing.T) {
	clock := clockwork.NewFakeClock()
	ttl := 10 * time.Minute
	s := NewSlot[string](clock, ttl)
	s.Set("v")

	clock.Advance(ttl - eps)
	if v, ok := s.Get(); !ok || v != "v" {
		t.Errorf("just before TTL: got %q, %v", v, ok)
	}

	clock.Advance(2 * eps)
	if _, ok := s.Get(); ok {
		t.Error("just after TTL: expected miss")
	}
}

func TestSlot_InvalidateAdvancesGeneration(t *testing.T) {
	s := NewSlot[int](clockwork.NewFakeClock(), time.Minute)
	gen := s.Generation()
	s.Set(1)
	s.Invalidate()

	if _, ok := s.Get(); ok {
		t.Error("expected miss after Invalidate")
	}
	if s.SetIfGeneration(2, gen) {
		t.Error("stale generation must not install")
	}
	if _, ok := s.Get(); ok {
		t.Error("stale install leaked into slot")
	}
	if !s.SetIfGeneration(3, s.Generation()) {
		t.Error("current generation must install")
	}
	if v, ok := s.Get(); !ok || v != 3 {
		t.Errorf("got %d, %v", v, ok)
	}
}

func TestSlot_Stats(t *testing.T) {
	s := NewSlot[int](clockwork.NewFakeClock(), time.Minute)
	s.Get()
	s.Set(1)
	s.Get()
	s.Get()

	st := s.Stats()
	if st.Hits != 2 || st.Misses != 1 || st.Entries != 1 {
		t.Errorf("Stats: got %+v", st)
	}
}

// ---------------------------------------------------------------------------
// Keyed tests
// ---------------------------------------------------------------------------

func newKeyed(t *testing.T, clock clockwork.Clock, ttl time.Duration, max int) *Keyed[string, int] {
	t.Helper()
	c, err := NewKeyed[string, int](clock, ttl, max)
	if err != nil {
		t.Fatalf("NewKeyed: %v", err)
	}
	return c
}

func TestKeyed_TTLBoundary(t *testing.T) {
	clock := clockwork.NewFakeClock()
	ttl := 30 * time.Minute
	c := newKeyed(t, clock, ttl, 10)
	c.SetIfGeneration("a", 1, c.Generation())

	clock.Advance(ttl - eps)
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Errorf("just before TTL: got %d, %v", v, ok)
	}
	clock.Advance(2 * eps)
	if _, ok := c.Get("a"); ok {
		t.Error("just after TTL: expected miss")
	}
	if c.Len() != 0 {
		t.Errorf("expired entry not evicted on Get, Len = %d", c.Len())
	}
}

func TestKeyed_EvictsLeastRecentlyUsed(t *testing.T) {
	c := newKeyed(t, clockwork.NewFakeClock(), time.Hour, 2)
	c.SetIfGeneration("a", 1, c.Generation())
	c.SetIfGeneration("b", 2, c.Generation())
	c.Get("a")
	c.SetIfGeneration("c", 3, c.Generation())

	if _, ok := c.Get("b"); ok {
		t.Error("expected b to be evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Error("expected a to survive")
	}
}

func TestKeyed_InvalidateAndGeneration(t *testing.T) {
	c := newKeyed(t, clockwork.NewFakeClock(), time.Hour, 10)
	gen := c.Generation()
	c.SetIfGeneration("a", 1, c.Generation())
	c.Invalidate()

	if c.Len() != 0 {
		t.Errorf("Len after Invalidate: %d", c.Len())
	}
	if c.SetIfGeneration("a", 2, gen) {
		t.Error("stale generation must not install")
	}
	if !c.SetIfGeneration("a", 3, c.Generation()) {
		t.Error("current generation must install")
	}
}

func TestKeyed_PurgeExpired(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := newKeyed(t, clock, time.Minute, 10)
	c.SetIfGeneration("old", 1, c.Generation())
	clock.Advance(2 * time.Minute)
	c.SetIfGeneration("new", 2, c.Generation())

	if n := c.PurgeExpired(); n != 1 {
		t.Errorf("PurgeExpired: got %d, want 1", n)
	}
	if _, ok := c.Get("new"); !ok {
		t.Error("fresh entry purged")
	}
}

func TestKeyed_StartPurgerStopsOnCancel(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := newKeyed(t, clock, time.Minute, 10)
	ctx, cancel := context.WithCancel(context.Background())
	done := c.StartPurger(ctx, "test", time.Minute)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("purger did not stop")
	}
}

func TestHashKey(t *testing.T) {
	if HashKey("a", "bc") == HashKey("ab", "c") {
		t.Error("separator must disambiguate parts")
	}
	if HashKey("x") != HashKey("x") {
		t.Error("HashKey must be deterministic")
	}
	if len(HashKey()) != 64 {
		t.Error("expected hex sha256")
	}
}
