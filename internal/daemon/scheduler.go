package daemon

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/allaspectsdev/icarus/internal/datacache"
)

// Refresher runs the two refresh stages.
type Refresher interface {
	ExtractToStaging(ctx context.Context) datacache.RefreshResult
	PromoteStagingToActive(ctx context.Context) datacache.RefreshResult
}

// nextRun returns the first hour:minute wall-clock time in now's location
// that is strictly after now.
func nextRun(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// runScheduler runs a full refresh once a day at hour:minute until ctx is
// cancelled.
func runScheduler(ctx context.Context, clock clockwork.Clock, hour, minute int, r Refresher) {
	for {
		now := clock.Now()
		at := nextRun(now, hour, minute)
		log.Info().Time("next_run", at).Msg("auto-refresh scheduled")

		timer := clock.NewTimer(at.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.Chan():
		}

		func() {
			defer func() {
				if rec := recover(); rec != nil {
					log.Error().Interface("panic", rec).Msg("auto-refresh: recovered from panic")
				}
			}()
			runDailyRefresh(ctx, r)
		}()
	}
}

// runDailyRefresh extracts to staging and, if that succeeded, promotes.
// It reports whether the promotion happened.
func runDailyRefresh(ctx context.Context, r Refresher) bool {
	res := r.ExtractToStaging(ctx)
	if !res.OK {
		log.Warn().Str("run_id", res.RunID).Str("message", res.Message).Msg("auto-refresh: extract failed, active data left in place")
		return false
	}
	res = r.PromoteStagingToActive(ctx)
	if !res.OK {
		log.Warn().Str("run_id", res.RunID).Str("message", res.Message).Msg("auto-refresh: promote failed")
		return false
	}
	log.Info().Int("rows", res.Rows).Msg("auto-refresh complete")
	return true
}
