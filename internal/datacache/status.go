package datacache

import (
	"context"

	"github.com/allaspectsdev/icarus/internal/cache"
	"github.com/allaspectsdev/icarus/internal/refreshmeta"
)

// Status is the cache report shown to operators.
type Status struct {
	Loaded          bool                   `json:"loaded"`
	Source          Tier                   `json:"source"`
	Rows            int                    `json:"rows"`
	LastExtract     string                 `json:"last_extract"`
	LastPromote     string                 `json:"last_promote"`
	StagingReady    bool                   `json:"staging_ready"`
	StoreConfigured bool                   `json:"store_configured"`
	Bucket          string                 `json:"bucket"`
	Caches          map[string]cache.Stats `json:"caches"`
}

// Status reports what is currently cached and the refresh state. It never
// triggers a master load.
func (s *Service) Status(ctx context.Context) Status {
	st := Status{
		Source:      TierNone,
		Bucket:      "Not set",
		LastExtract: refreshmeta.Format(s.LastExtract(ctx)),
		LastPromote: refreshmeta.Format(s.LastPromote(ctx)),
		Caches: map[string]cache.Stats{
			"master":      s.master.Stats(),
			"date_bounds": s.bounds.Stats(),
			"plan_groups": s.plans.Stats(),
			"query":       s.queries.Stats(),
			"metadata":    s.meta.Stats(),
		},
	}
	st.StagingReady = s.IsStagingReady(ctx)

	if b := s.durable(ctx); b != nil {
		st.StoreConfigured = true
		st.Bucket = b.Name()
	}
	if e, ok := s.master.Peek(); ok {
		st.Loaded = true
		st.Source = e.tier
		st.Rows = e.table.Len()
	}
	return st
}
