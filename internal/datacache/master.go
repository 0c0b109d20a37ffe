package datacache

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/allaspectsdev/icarus/internal/dataset"
	"github.com/allaspectsdev/icarus/internal/objstore"
	"github.com/allaspectsdev/icarus/internal/snapshot"
	"github.com/allaspectsdev/icarus/internal/tracing"
)

// Tier names the cache level that supplied a master table.
type Tier string

const (
	TierMemory   Tier = "memory"
	TierSnapshot Tier = "snapshot"
	TierSource   Tier = "source"
	TierNone     Tier = "none"
)

type masterEntry struct {
	table *dataset.Table
	tier  Tier
}

// MasterData returns the full master dataset. Tiers are tried in order and
// exactly one of them supplies the result:
//
//  1. the in-process copy, if younger than the master TTL
//  2. the active snapshot in the durable store
//  3. a fresh source extraction, which is also written to the active and
//     staging snapshots with both refresh timestamps stamped
//
// Concurrent misses share one load. A load that overlaps an invalidation is
// returned to its callers but not cached.
func (s *Service) MasterData(ctx context.Context) (*dataset.Table, error) {
	if e, ok := s.master.Get(); ok {
		s.rec.CacheLookup("master", string(TierMemory), true)
		log.Debug().Str("tier", string(TierMemory)).Int("rows", e.table.Len()).Msg("master data served")
		return e.table, nil
	}
	s.rec.CacheLookup("master", string(TierMemory), false)

	v, err, _ := s.flight.Do("master", func() (any, error) {
		// The shared load must not be cut short by the first caller leaving.
		return s.loadMaster(context.WithoutCancel(ctx))
	})
	if err != nil {
		return nil, err
	}
	return v.(*masterEntry).table, nil
}

func (s *Service) loadMaster(ctx context.Context) (*masterEntry, error) {
	gen := s.master.Generation()
	promoted := s.promotions.Load()
	b := s.durable(ctx)

	if b != nil {
		if t := s.readSnapshot(ctx, b, s.keys.Active); t != nil {
			s.rec.CacheLookup("master", string(TierSnapshot), true)
			e := &masterEntry{table: t, tier: TierSnapshot}
			s.master.SetIfGeneration(e, gen)
			log.Debug().Str("tier", string(TierSnapshot)).Int("rows", t.Len()).Msg("master data served")
			return e, nil
		}
		s.rec.CacheLookup("master", string(TierSnapshot), false)
	}

	t, err := s.extract(ctx)
	if err != nil {
		log.Error().Err(err).Msg("master data unavailable from every tier")
		return nil, err
	}
	e := &masterEntry{table: t, tier: TierSource}
	s.master.SetIfGeneration(e, gen)
	log.Debug().Str("tier", string(TierSource)).Int("rows", t.Len()).Msg("master data served")

	if b != nil {
		s.persistSourceLoad(ctx, b, t, promoted)
	}
	return e, nil
}

// persistSourceLoad seeds both snapshots and both timestamps from a source
// load. It is skipped when a promote finished after the load started, since
// the active snapshot is then newer than t.
func (s *Service) persistSourceLoad(ctx context.Context, b objstore.Bucket, t *dataset.Table, promoted uint64) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	if s.promotions.Load() != promoted {
		log.Info().Int("rows", t.Len()).Msg("promote finished during source load; snapshots left as promoted")
		return
	}
	s.writeSnapshot(ctx, b, s.keys.Active, t)
	s.writeSnapshot(ctx, b, s.keys.Staging, t)
	s.meta.MarkExtracted(ctx)
	s.meta.MarkPromoted(ctx)
}

// extract runs one source extraction with timing and span bookkeeping.
func (s *Service) extract(ctx context.Context) (*dataset.Table, error) {
	if s.src == nil {
		return nil, ErrNoSource
	}
	start := s.clock.Now()
	t, err := s.src.Extract(ctx)
	rows := 0
	if err == nil {
		rows = t.Len()
	}
	s.rec.SourceExtract(s.clock.Since(start), rows, err)
	return t, err
}

func (s *Service) readSnapshot(ctx context.Context, b objstore.Bucket, key string) *dataset.Table {
	ctx, span := tracing.StartTierSpan(ctx, "master", string(TierSnapshot))
	defer span.End()

	start := s.clock.Now()
	t := snapshot.Read(ctx, b, key)
	s.rec.SnapshotIO("read", s.clock.Since(start))
	tracing.SetCacheHit(ctx, t != nil)
	return t
}

func (s *Service) writeSnapshot(ctx context.Context, b objstore.Bucket, key string, t *dataset.Table) bool {
	start := s.clock.Now()
	ok := snapshot.Write(ctx, b, key, t)
	s.rec.SnapshotIO("write", s.clock.Since(start))
	return ok
}
