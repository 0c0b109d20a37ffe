package datacache

import (
	"context"
	"sort"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog/log"

	"github.com/allaspectsdev/icarus/internal/dataset"
	"github.com/allaspectsdev/icarus/internal/tracing"
)

// PivotResult holds the filtered rows as parallel arrays. Metrics maps each
// requested dataset metric to its column; a nil element is a null value.
type PivotResult struct {
	AppName       []string                      `json:"App_Name"`
	PlanName      []string                      `json:"Plan_Name"`
	ReportingDate []civil.Date                  `json:"Reporting_Date"`
	Metrics       map[dataset.Metric][]*float64 `json:"metrics"`
}

// Series is one metric summed per (plan, date), sorted by plan then date.
type Series struct {
	PlanName      []string     `json:"Plan_Name"`
	ReportingDate []civil.Date `json:"Reporting_Date"`
	Value         []float64    `json:"metric_value"`
}

// Len returns the number of points.
func (s *Series) Len() int { return len(s.Value) }

func emptySeries() *Series {
	return &Series{PlanName: []string{}, ReportingDate: []civil.Date{}, Value: []float64{}}
}

// Pivot returns every row matching f, projected to app, plan, date and the
// requested metrics. Metrics that are not dataset columns are skipped.
func (s *Service) Pivot(ctx context.Context, f dataset.Filter, metrics []dataset.Metric) (*PivotResult, error) {
	fp := NewFingerprint(KindPivot, f, metrics)
	v, err := s.cachedQuery(ctx, fp, func(t *dataset.Table) (any, int) {
		r := pivot(t, t.Match(f), normalizeMetrics(metrics))
		return r, len(r.AppName)
	})
	if err != nil {
		return nil, err
	}
	return v.(*PivotResult), nil
}

// ChartSeries sums metric per (plan, date) over rows matching f. Null
// values contribute nothing; a group of only nulls sums to zero. An unknown
// metric yields an empty series.
func (s *Service) ChartSeries(ctx context.Context, f dataset.Filter, metric dataset.Metric) (*Series, error) {
	fp := NewFingerprint(KindChart, f, []dataset.Metric{metric})
	v, err := s.cachedQuery(ctx, fp, func(t *dataset.Table) (any, int) {
		r := aggregate(t, t.Match(f), metric)
		return r, r.Len()
	})
	if err != nil {
		return nil, err
	}
	return v.(*Series), nil
}

// BatchedChartSeries computes ChartSeries for every metric from a single
// filter pass. Each entry equals what ChartSeries returns for that metric.
func (s *Service) BatchedChartSeries(ctx context.Context, f dataset.Filter, metrics []dataset.Metric) (map[dataset.Metric]*Series, error) {
	fp := NewFingerprint(KindBatch, f, metrics)
	v, err := s.cachedQuery(ctx, fp, func(t *dataset.Table) (any, int) {
		idx := t.Match(f)
		out := make(map[dataset.Metric]*Series, len(metrics))
		for _, m := range normalizeMetrics(metrics) {
			out[m] = aggregate(t, idx, m)
		}
		return out, len(idx)
	})
	if err != nil {
		return nil, err
	}
	return v.(map[dataset.Metric]*Series), nil
}

// cachedQuery serves fp from the query cache or computes it from the master
// dataset. compute returns the result and a row count for tracing.
func (s *Service) cachedQuery(ctx context.Context, fp Fingerprint, compute func(*dataset.Table) (any, int)) (any, error) {
	hash := fp.Hash()
	ctx, span := tracing.StartQuerySpan(ctx, string(fp.Kind), hash)
	defer span.End()
	start := s.clock.Now()

	if v, ok := s.queries.Get(fp); ok {
		s.rec.CacheLookup("query", string(TierMemory), true)
		s.rec.QueryServed(string(fp.Kind), s.clock.Since(start), true)
		tracing.SetCacheHit(ctx, true)
		return v, nil
	}
	s.rec.CacheLookup("query", string(TierMemory), false)
	tracing.SetCacheHit(ctx, false)

	gen := s.queries.Generation()
	t, err := s.MasterData(ctx)
	if err != nil {
		tracing.RecordError(ctx, err)
		return nil, err
	}

	v, rows := compute(t)
	s.queries.SetIfGeneration(fp, v, gen)
	tracing.SetRows(ctx, rows)

	elapsed := s.clock.Since(start)
	s.rec.QueryServed(string(fp.Kind), elapsed, false)
	log.Debug().
		Str("kind", string(fp.Kind)).
		Str("fingerprint", hash[:16]).
		Int("rows", rows).
		Dur("elapsed", elapsed).
		Msg("query computed")
	return v, nil
}

func pivot(t *dataset.Table, idx []int, metrics []dataset.Metric) *PivotResult {
	r := &PivotResult{
		AppName:       make([]string, len(idx)),
		PlanName:      make([]string, len(idx)),
		ReportingDate: make([]civil.Date, len(idx)),
		Metrics:       make(map[dataset.Metric][]*float64, len(metrics)),
	}
	for j, i := range idx {
		r.AppName[j] = t.AppName[i]
		r.PlanName[j] = t.PlanName[i]
		r.ReportingDate[j] = t.ReportingDate[i]
	}
	for _, m := range metrics {
		col := t.Metric(m)
		if col == nil {
			continue
		}
		vals := make([]*float64, len(idx))
		for j, i := range idx {
			vals[j] = col.Ptr(i)
		}
		r.Metrics[m] = vals
	}
	return r
}

type groupKey struct {
	plan string
	date civil.Date
}

// aggregate sums metric m over the rows in idx, grouped by (plan, date).
// Rows are visited in table order so every caller sums in the same order.
func aggregate(t *dataset.Table, idx []int, m dataset.Metric) *Series {
	out := emptySeries()
	col := t.Metric(m)
	if col == nil || len(idx) == 0 {
		return out
	}

	sums := make(map[groupKey]float64)
	for _, i := range idx {
		k := groupKey{plan: t.PlanName[i], date: t.ReportingDate[i]}
		v, ok := col.At(i)
		if !ok {
			v = 0
		}
		sums[k] += v
	}

	keys := make([]groupKey, 0, len(sums))
	for k := range sums {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(a, b int) bool {
		if keys[a].plan != keys[b].plan {
			return keys[a].plan < keys[b].plan
		}
		return keys[a].date.Before(keys[b].date)
	})

	for _, k := range keys {
		out.PlanName = append(out.PlanName, k.plan)
		out.ReportingDate = append(out.ReportingDate, k.date)
		out.Value = append(out.Value, sums[k])
	}
	return out
}
