// Package datacache is the analytics cache core. It serves the master dataset
// through three tiers (process memory, durable snapshot, BigQuery), derives
// date bounds and plan groupings from it, caches fingerprinted filter queries,
// and runs the extract/promote refresh protocol that invalidates all of them.
//
// Cached values are shared between callers and must be treated as read-only.
package datacache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/allaspectsdev/icarus/internal/cache"
	"github.com/allaspectsdev/icarus/internal/dataset"
	"github.com/allaspectsdev/icarus/internal/objstore"
	"github.com/allaspectsdev/icarus/internal/refreshmeta"
	"github.com/allaspectsdev/icarus/internal/source"
	"github.com/allaspectsdev/icarus/internal/store"
)

// Default TTLs and limits.
const (
	DefaultMasterTTL       = 10 * time.Minute
	DefaultDerivedTTL      = time.Hour
	DefaultQueryTTL        = 30 * time.Minute
	DefaultMetadataTTL     = time.Minute
	DefaultQueryMaxEntries = 1024
)

// ErrNoSource is returned when every tier misses and no extractor is wired.
var ErrNoSource = errors.New("datacache: no source configured")

// Keys names the four durable objects.
type Keys struct {
	Active      string
	Staging     string
	ExtractMeta string
	PromoteMeta string
}

// DefaultKeys returns the standard object layout.
func DefaultKeys() Keys {
	return Keys{
		Active:      "cache/active.parquet",
		Staging:     "cache/staging.parquet",
		ExtractMeta: "metadata/last_extract.txt",
		PromoteMeta: "metadata/last_promote.txt",
	}
}

// Recorder receives cache and refresh events. metrics.Collector implements it.
type Recorder interface {
	CacheLookup(cacheName, tier string, hit bool)
	SourceExtract(d time.Duration, rows int, err error)
	SnapshotIO(op string, d time.Duration)
	QueryServed(kind string, d time.Duration, cached bool)
	RefreshRun(stage string, ok bool, d time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) CacheLookup(string, string, bool) {}
func (nopRecorder) SourceExtract(time.Duration, int, error) {}
func (nopRecorder) SnapshotIO(string, time.Duration) {}
func (nopRecorder) QueryServed(string, time.Duration, bool) {}
func (nopRecorder) RefreshRun(string, bool, time.Duration) {}

// BucketFunc yields the durable bucket, or nil when none is available.
// objstore.Resolver.Bucket satisfies it.
type BucketFunc func(ctx context.Context) objstore.Bucket

// Options configures a Service. Zero values select the defaults.
type Options struct {
	Source source.Extractor
	Bucket BucketFunc
	// Store receives the refresh_runs audit trail. Optional.
	Store    *store.Store
	Recorder Recorder
	Clock    clockwork.Clock
	Keys     Keys

	MasterTTL       time.Duration
	DerivedTTL      time.Duration
	QueryTTL        time.Duration
	MetadataTTL     time.Duration
	QueryMaxEntries int
}

// Service owns every in-process cache tier.
type Service struct {
	src    source.Extractor
	bucket BucketFunc
	store  *store.Store
	rec    Recorder
	clock  clockwork.Clock
	keys   Keys

	master *cache.Slot[*masterEntry]
	flight singleflight.Group

	bounds *cache.Slot[DateBounds]
	plans  *cache.Keyed[dataset.ActiveState, []PlanGroup]

	queries *cache.Keyed[Fingerprint, any]

	meta *refreshmeta.Tracker

	// refreshMu serialises refresh stages and source-load persistence.
	refreshMu sync.Mutex
	// promotions counts successful promotes.
	promotions atomic.Uint64
}

// New builds a Service from opts.
func New(opts Options) (*Service, error) {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}
	if opts.Keys == (Keys{}) {
		opts.Keys = DefaultKeys()
	}
	if opts.MasterTTL <= 0 {
		opts.MasterTTL = DefaultMasterTTL
	}
	if opts.DerivedTTL <= 0 {
		opts.DerivedTTL = DefaultDerivedTTL
	}
	if opts.QueryTTL <= 0 {
		opts.QueryTTL = DefaultQueryTTL
	}
	if opts.MetadataTTL <= 0 {
		opts.MetadataTTL = DefaultMetadataTTL
	}
	if opts.QueryMaxEntries <= 0 {
		opts.QueryMaxEntries = DefaultQueryMaxEntries
	}

	plans, err := cache.NewKeyed[dataset.ActiveState, []PlanGroup](opts.Clock, opts.DerivedTTL, 8)
	if err != nil {
		return nil, err
	}
	queries, err := cache.NewKeyed[Fingerprint, any](opts.Clock, opts.QueryTTL, opts.QueryMaxEntries)
	if err != nil {
		return nil, err
	}

	s := &Service{
		src:     opts.Source,
		bucket:  opts.Bucket,
		store:   opts.Store,
		rec:     opts.Recorder,
		clock:   opts.Clock,
		keys:    opts.Keys,
		master:  cache.NewSlot[*masterEntry](opts.Clock, opts.MasterTTL),
		bounds:  cache.NewSlot[DateBounds](opts.Clock, opts.DerivedTTL),
		plans:   plans,
		queries: queries,
	}
	s.meta = refreshmeta.NewTracker(refreshmeta.BucketFunc(s.durable), opts.Clock, opts.MetadataTTL, opts.Keys.ExtractMeta, opts.Keys.PromoteMeta)
	return s, nil
}

// durable returns the resolved bucket or nil.
func (s *Service) durable(ctx context.Context) objstore.Bucket {
	if s.bucket == nil {
		return nil
	}
	return s.bucket(ctx)
}

// invalidateData drops the master, derived and query tiers.
func (s *Service) invalidateData() {
	s.master.Invalidate()
	s.bounds.Invalidate()
	s.plans.Invalidate()
	s.queries.Invalidate()
}

// ClearAll drops every in-process cache, including the refresh timestamps.
// The resolved store handle is kept.
func (s *Service) ClearAll() {
	s.invalidateData()
	s.meta.Invalidate()
}

// StartQueryPurger evicts expired query results every interval until ctx
// is cancelled.
func (s *Service) StartQueryPurger(ctx context.Context, interval time.Duration) <-chan struct{} {
	return s.queries.StartPurger(ctx, "query", interval)
}
