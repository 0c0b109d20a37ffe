package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"cloud.google.com/go/civil"

	"github.com/allaspectsdev/icarus/internal/dataset"
)

var (
	errNoPlans   = errors.New("select at least one plan")
	errNoMetrics = errors.New("select at least one metric")
)

// parseFilter reads the shared filter parameters:
//
//	start, end  YYYY-MM-DD, inclusive
//	bc          billing cycle
//	cohort      cohort label
//	state       Active (default) or Inactive
//	table       Regular (default) or Crystal Ball
//	plan        repeated, at least one
func parseFilter(r *http.Request) (dataset.Filter, error) {
	q := r.URL.Query()
	var f dataset.Filter

	start, err := parseDate(q.Get("start"), "start")
	if err != nil {
		return f, err
	}
	end, err := parseDate(q.Get("end"), "end")
	if err != nil {
		return f, err
	}
	if end.Before(start) {
		return f, fmt.Errorf("end %s is before start %s", end, start)
	}

	bcStr := strings.TrimSpace(q.Get("bc"))
	if bcStr == "" {
		return f, errors.New("bc is required")
	}
	bc, err := strconv.ParseInt(bcStr, 10, 64)
	if err != nil {
		return f, fmt.Errorf("invalid bc %q", bcStr)
	}

	cohort := strings.TrimSpace(q.Get("cohort"))
	if cohort == "" {
		return f, errors.New("cohort is required")
	}

	state := dataset.Active
	if s := q.Get("state"); s != "" {
		if state, err = dataset.ParseActiveState(s); err != nil {
			return f, err
		}
	}
	table := dataset.Regular
	if s := q.Get("table"); s != "" {
		if table, err = dataset.ParseTableType(s); err != nil {
			return f, err
		}
	}

	plans := nonEmpty(q["plan"])
	if len(plans) == 0 {
		return f, errNoPlans
	}

	return dataset.Filter{
		Start:        start,
		End:          end,
		BillingCycle: bc,
		Cohort:       cohort,
		ActiveState:  state,
		TableType:    table,
		Plans:        plans,
	}, nil
}

// parseMetrics validates every metric parameter. At least one is required.
func parseMetrics(r *http.Request) ([]dataset.Metric, error) {
	raw := nonEmpty(r.URL.Query()["metric"])
	if len(raw) == 0 {
		return nil, errNoMetrics
	}
	out := make([]dataset.Metric, 0, len(raw))
	for _, s := range raw {
		m, err := dataset.ParseMetric(s)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func parseDate(s, name string) (civil.Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return civil.Date{}, fmt.Errorf("%s is required", name)
	}
	d, err := civil.ParseDate(s)
	if err != nil {
		return civil.Date{}, fmt.Errorf("invalid %s %q (expected YYYY-MM-DD)", name, s)
	}
	return d, nil
}

// nonEmpty trims each value and drops blanks.
func nonEmpty(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// queryInt reads an integer query parameter with a default fallback.
func queryInt(r *http.Request, key string, defaultVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return n
}
