package datacache

import (
	"sort"
	"strconv"
	"strings"

	"cloud.google.com/go/civil"

	"github.com/allaspectsdev/icarus/internal/cache"
	"github.com/allaspectsdev/icarus/internal/dataset"
)

// Kind distinguishes the query operations sharing the result cache.
type Kind string

const (
	KindPivot Kind = "pivot"
	KindChart Kind = "chart_series"
	KindBatch Kind = "batched_chart_series"
)

// listSep joins normalized plan and metric lists inside a Fingerprint. It
// cannot appear in a plan or metric name.
const listSep = "\x1f"

// Fingerprint is the structural query-cache key. Plan and metric lists are
// sorted and de-duplicated so that argument order never changes the key.
type Fingerprint struct {
	Kind         Kind
	Start        civil.Date
	End          civil.Date
	BillingCycle int64
	Cohort       string
	ActiveState  dataset.ActiveState
	TableType    dataset.TableType
	Plans        string
	Metrics      string
}

// NewFingerprint builds the key for a query of kind over f and metrics.
func NewFingerprint(kind Kind, f dataset.Filter, metrics []dataset.Metric) Fingerprint {
	ms := make([]string, len(metrics))
	for i, m := range metrics {
		ms[i] = string(m)
	}
	return Fingerprint{
		Kind:         kind,
		Start:        f.Start,
		End:          f.End,
		BillingCycle: f.BillingCycle,
		Cohort:       f.Cohort,
		ActiveState:  f.ActiveState,
		TableType:    f.TableType,
		Plans:        joinList(normalize(f.Plans)),
		Metrics:      joinList(normalize(ms)),
	}
}

// Hash returns a stable hex digest of the fingerprint for logs and spans.
func (fp Fingerprint) Hash() string {
	return cache.HashKey(
		string(fp.Kind),
		fp.Start.String(),
		fp.End.String(),
		strconv.FormatInt(fp.BillingCycle, 10),
		fp.Cohort,
		string(fp.ActiveState),
		string(fp.TableType),
		fp.Plans,
		fp.Metrics,
	)
}

// joinList prefixes the element count so an empty list and a list holding
// one empty string differ.
func joinList(xs []string) string {
	return strconv.Itoa(len(xs)) + listSep + strings.Join(xs, listSep)
}

// normalize returns a sorted copy of in without duplicates.
func normalize(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	n := 0
	for i, v := range out {
		if i > 0 && v == out[n-1] {
			continue
		}
		out[n] = v
		n++
	}
	return out[:n]
}

// normalizeMetrics is normalize for metric lists.
func normalizeMetrics(in []dataset.Metric) []dataset.Metric {
	ss := make([]string, len(in))
	for i, m := range in {
		ss[i] = string(m)
	}
	ss = normalize(ss)
	out := make([]dataset.Metric, len(ss))
	for i, m := range ss {
		out[i] = dataset.Metric(m)
	}
	return out
}
