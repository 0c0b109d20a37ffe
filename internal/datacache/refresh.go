package datacache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"

	"github.com/allaspectsdev/icarus/internal/objstore"
	"github.com/allaspectsdev/icarus/internal/snapshot"
	"github.com/allaspectsdev/icarus/internal/store"
	"github.com/allaspectsdev/icarus/internal/tracing"
)

// Refresh stage names, as recorded in the audit trail.
const (
	StageExtract = "extract"
	StagePromote = "promote"
)

// RefreshResult reports the outcome of one refresh stage. Message is
// suitable for showing to the operator who triggered it.
type RefreshResult struct {
	OK       bool          `json:"ok"`
	Message  string        `json:"message"`
	RunID    string        `json:"run_id"`
	Rows     int           `json:"rows"`
	Duration time.Duration `json:"duration_ns"`
}

// ExtractToStaging re-runs the source extraction, bypassing every cache,
// writes the result to the staging snapshot and stamps the extract time.
// The active snapshot and the in-process caches are left untouched.
func (s *Service) ExtractToStaging(ctx context.Context) RefreshResult {
	// A started stage runs to completion even if the caller goes away.
	ctx = context.WithoutCancel(ctx)

	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	run := s.beginRun(ctx, StageExtract)
	defer run.end()
	ctx = run.ctx

	b := s.durable(ctx)
	if b == nil {
		return run.fail(nil, "No durable store configured; staging requires persistence.")
	}

	t, err := s.extract(ctx)
	if err != nil {
		return run.fail(err, fmt.Sprintf("Source extraction failed: %v", err))
	}
	run.rows = t.Len()

	start := s.clock.Now()
	err = snapshot.Save(ctx, b, s.keys.Staging, t)
	s.rec.SnapshotIO("write", s.clock.Since(start))
	if err != nil {
		return run.fail(err, fmt.Sprintf("Failed to write staging snapshot: %v", err))
	}
	if !s.meta.MarkExtracted(ctx) {
		log.Warn().Str("run_id", run.id).Msg("staging written but extract time not recorded")
	}

	return run.succeed(fmt.Sprintf("Extracted %d rows to staging.", t.Len()))
}

// PromoteStagingToActive copies the staging snapshot over the active one,
// stamps the promote time and drops every in-process data cache so the next
// read goes to the newly promoted snapshot.
func (s *Service) PromoteStagingToActive(ctx context.Context) RefreshResult {
	// A started stage runs to completion even if the caller goes away.
	ctx = context.WithoutCancel(ctx)

	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	run := s.beginRun(ctx, StagePromote)
	defer run.end()
	ctx = run.ctx

	b := s.durable(ctx)
	if b == nil {
		return run.fail(nil, "No durable store configured.")
	}

	exists, err := b.Exists(ctx, s.keys.Staging)
	if err != nil {
		return run.fail(err, fmt.Sprintf("Failed to check staging snapshot: %v", err))
	}
	if !exists {
		return run.fail(nil, "No staging data. Run an extract first.")
	}

	start := s.clock.Now()
	t, err := snapshot.Load(ctx, b, s.keys.Staging)
	s.rec.SnapshotIO("read", s.clock.Since(start))
	if err != nil {
		if errors.Is(err, objstore.ErrNotFound) {
			return run.fail(err, "No staging data. Run an extract first.")
		}
		return run.fail(err, "Failed to load staging data.")
	}
	run.rows = t.Len()

	start = s.clock.Now()
	err = snapshot.Save(ctx, b, s.keys.Active, t)
	s.rec.SnapshotIO("write", s.clock.Since(start))
	if err != nil {
		return run.fail(err, fmt.Sprintf("Failed to write active snapshot: %v", err))
	}
	if !s.meta.MarkPromoted(ctx) {
		log.Warn().Str("run_id", run.id).Msg("active written but promote time not recorded")
	}

	s.promotions.Add(1)
	s.invalidateData()
	return run.succeed(fmt.Sprintf("Promoted %d rows to active.", t.Len()))
}

// IsStagingReady reports whether extracted data is waiting to be promoted:
// an extract time exists and is later than the promote time, if any.
func (s *Service) IsStagingReady(ctx context.Context) bool {
	return s.meta.StagingReady(ctx)
}

// LastExtract returns the last extract time from the short-lived metadata
// cache.
func (s *Service) LastExtract(ctx context.Context) (time.Time, bool) {
	return s.meta.LastExtract(ctx)
}

// LastPromote returns the last promote time from the short-lived metadata
// cache.
func (s *Service) LastPromote(ctx context.Context) (time.Time, bool) {
	return s.meta.LastPromote(ctx)
}

// RefreshHistory returns the most recent refresh runs, newest first. It
// returns nil when no audit store is configured.
func (s *Service) RefreshHistory(limit int) ([]*store.RefreshRun, error) {
	if s.store == nil {
		return nil, nil
	}
	return s.store.ListRefreshRuns(limit)
}

// refreshRun tracks one stage execution for logging, tracing, metrics and
// the audit trail.
type refreshRun struct {
	s       *Service
	ctx     context.Context
	span    trace.Span
	id      string
	stage   string
	started time.Time
	rows    int
	result  RefreshResult
}

func (s *Service) beginRun(ctx context.Context, stage string) *refreshRun {
	id := uuid.New().String()
	ctx, span := tracing.StartRefreshSpan(ctx, stage, id)
	log.Info().Str("run_id", id).Str("stage", stage).Msg("refresh stage started")
	return &refreshRun{
		s:       s,
		ctx:     ctx,
		span:    span,
		id:      id,
		stage:   stage,
		started: s.clock.Now(),
	}
}

func (r *refreshRun) fail(err error, msg string) RefreshResult {
	tracing.RecordError(r.ctx, err)
	r.result = RefreshResult{OK: false, Message: msg, RunID: r.id, Rows: r.rows, Duration: r.s.clock.Since(r.started)}
	return r.result
}

func (r *refreshRun) succeed(msg string) RefreshResult {
	r.result = RefreshResult{OK: true, Message: msg, RunID: r.id, Rows: r.rows, Duration: r.s.clock.Since(r.started)}
	return r.result
}

// end records the settled result.
func (r *refreshRun) end() {
	defer r.span.End()
	elapsed := r.result.Duration
	r.s.rec.RefreshRun(r.stage, r.result.OK, elapsed)

	ev := log.Info()
	if !r.result.OK {
		ev = log.Warn()
	}
	ev.Str("run_id", r.id).
		Str("stage", r.stage).
		Bool("ok", r.result.OK).
		Int("rows", r.rows).
		Dur("duration", elapsed).
		Msg(r.result.Message)

	if r.s.store == nil {
		return
	}
	err := r.s.store.InsertRefreshRun(&store.RefreshRun{
		ID:         r.id,
		Stage:      r.stage,
		StartedAt:  r.started.UTC().Format(time.RFC3339),
		DurationMs: elapsed.Milliseconds(),
		OK:         r.result.OK,
		Rows:       int64(r.rows),
		Message:    r.result.Message,
	})
	if err != nil {
		log.Warn().Err(err).Str("run_id", r.id).Msg("failed to record refresh run")
	}
}
