package metrics

import (
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// durationBuckets are the histogram bounds, in seconds, for source
// extraction, snapshot I/O and query latency.
var durationBuckets = []float64{0.005, 0.025, 0.1, 0.5, 1, 5, 15, 60, 300}

// Collector tracks cache and refresh activity. Counters are safe for
// concurrent use.
type Collector struct {
	cacheHits   int64
	cacheMisses int64

	sourceExtractions int64
	masterRows        int64

	lookups   *counterVec   // cache, tier, outcome
	queries   *counterVec   // kind, cached
	refreshes *counterVec   // stage, outcome
	latency   *histogramVec // op

	startTime time.Time
}

// Stats is a point-in-time snapshot of the collector's counters, suitable
// for JSON serialisation.
type Stats struct {
	Uptime            string  `json:"uptime"`
	CacheHits         int64   `json:"cache_hits"`
	CacheMisses       int64   `json:"cache_misses"`
	CacheHitRate      float64 `json:"cache_hit_rate"`
	SourceExtractions int64   `json:"source_extractions"`
	MasterRows        int64   `json:"master_rows"`
}

// NewCollector creates a Collector with all counters at zero.
func NewCollector() *Collector {
	return &Collector{
		lookups:   newCounterVec("cache", "tier", "outcome"),
		queries:   newCounterVec("kind", "cached"),
		refreshes: newCounterVec("stage", "outcome"),
		latency:   newHistogramVec(durationBuckets, "op"),
		startTime: time.Now(),
	}
}

// CacheLookup records one lookup against a cache tier.
func (c *Collector) CacheLookup(cacheName, tier string, hit bool) {
	if hit {
		atomic.AddInt64(&c.cacheHits, 1)
		c.lookups.inc(cacheName, tier, "hit")
		return
	}
	atomic.AddInt64(&c.cacheMisses, 1)
	c.lookups.inc(cacheName, tier, "miss")
}

// SourceExtract records one source-system extraction.
func (c *Collector) SourceExtract(d time.Duration, rows int, err error) {
	atomic.AddInt64(&c.sourceExtractions, 1)
	c.latency.observe(d.Seconds(), "source_extract")
	if err == nil {
		atomic.StoreInt64(&c.masterRows, int64(rows))
	}
}

// SnapshotIO records the duration of a snapshot read or write.
func (c *Collector) SnapshotIO(op string, d time.Duration) {
	c.latency.observe(d.Seconds(), "snapshot_"+op)
}

// QueryServed records a fingerprinted query result.
func (c *Collector) QueryServed(kind string, d time.Duration, cached bool) {
	outcome := "false"
	if cached {
		outcome = "true"
	}
	c.queries.inc(kind, outcome)
	c.latency.observe(d.Seconds(), "query_"+kind)
}

// RefreshRun records the outcome of a refresh stage.
func (c *Collector) RefreshRun(stage string, ok bool, d time.Duration) {
	outcome := "ok"
	if !ok {
		outcome = "failed"
	}
	c.refreshes.inc(stage, outcome)
	c.latency.observe(d.Seconds(), "refresh_"+stage)
}

// Stats returns a point-in-time snapshot of the scalar counters.
func (c *Collector) Stats() *Stats {
	hits := atomic.LoadInt64(&c.cacheHits)
	misses := atomic.LoadInt64(&c.cacheMisses)

	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	return &Stats{
		Uptime:            formatDuration(time.Since(c.startTime)),
		CacheHits:         hits,
		CacheMisses:       misses,
		CacheHitRate:      hitRate,
		SourceExtractions: atomic.LoadInt64(&c.sourceExtractions),
		MasterRows:        atomic.LoadInt64(&c.masterRows),
	}
}

// formatDuration produces a compact duration string like "2d 5h 32m".
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return d.Round(time.Second).String()
	}

	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60

	var parts []string
	if days > 0 {
		parts = append(parts, strconv.Itoa(days)+"d")
	}
	if hours > 0 {
		parts = append(parts, strconv.Itoa(hours)+"h")
	}
	if minutes > 0 {
		parts = append(parts, strconv.Itoa(minutes)+"m")
	}
	if len(parts) == 0 {
		return "0m"
	}
	return strings.Join(parts, " ")
}
