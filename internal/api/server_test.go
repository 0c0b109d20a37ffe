package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/jonboulle/clockwork"

	"github.com/allaspectsdev/icarus/internal/datacache"
	"github.com/allaspectsdev/icarus/internal/dataset"
	"github.com/allaspectsdev/icarus/internal/metrics"
	"github.com/allaspectsdev/icarus/internal/objstore"
	"github.com/allaspectsdev/icarus/internal/testutil"
)

type stubSource struct{ calls int }

func (s *stubSource) Extract(context.Context) (*dataset.Table, error) {
	s.calls++
	return testutil.SampleTable(), nil
}

func setupServer(t *testing.T, opts Options) (*Server, *datacache.Service) {
	t.Helper()
	bucket := testutil.NewMemBucket()
	collector := metrics.NewCollector()
	svc, err := datacache.New(datacache.Options{
		Source:   &stubSource{},
		Bucket:   func(context.Context) objstore.Bucket { return bucket },
		Store:    testutil.NewTestStore(t),
		Recorder: collector,
		Clock:    clockwork.NewFakeClock(),
	})
	if err != nil {
		t.Fatalf("datacache.New: %v", err)
	}
	return NewServer(svc, collector, opts), svc
}

func do(t *testing.T, s *Server, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("json.Unmarshal: %v (body %s)", err, w.Body.String())
	}
}

func filterQuery(extra url.Values) string {
	q := url.Values{
		"start":  {"2024-01-01"},
		"end":    {"2024-01-31"},
		"bc":     {"1"},
		"cohort": {"Monthly"},
		"state":  {"Active"},
		"table":  {"Regular"},
		"plan":   {"P1", "P2"},
	}
	for k, v := range extra {
		q[k] = v
	}
	return q.Encode()
}

func TestHealthEndpoint(t *testing.T) {
	s, _ := setupServer(t, Options{})
	w := do(t, s, "GET", "/api/health")
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var body map[string]string
	decode(t, w, &body)
	if body["status"] != "ok" {
		t.Errorf("status: got %q", body["status"])
	}
}

func TestDatesEndpoint(t *testing.T) {
	s, _ := setupServer(t, Options{})
	w := do(t, s, "GET", "/api/dates")
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var body map[string]interface{}
	decode(t, w, &body)
	if body["min_date"] != "2023-12-15" || body["max_date"] != "2024-01-31" {
		t.Errorf("dates: got %v", body)
	}
}

func TestPlansEndpoint(t *testing.T) {
	s, _ := setupServer(t, Options{})

	w := do(t, s, "GET", "/api/plans?state=Active")
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var plans []planView
	decode(t, w, &plans)
	if len(plans) != 3 || plans[0].Label != "AppX - P1" || plans[2].AppName != "AppY" {
		t.Errorf("plans: got %+v", plans)
	}

	if w := do(t, s, "GET", "/api/plans?state=maybe"); w.Code != http.StatusBadRequest {
		t.Errorf("bad state: got %d, want 400", w.Code)
	}
}

func TestPivotEndpoint(t *testing.T) {
	s, _ := setupServer(t, Options{})
	w := do(t, s, "GET", "/api/pivot?"+filterQuery(url.Values{"metric": {"Subscriptions", "Churn_Rate"}}))
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", w.Code, w.Body.String())
	}

	var body struct {
		AppName []string              `json:"App_Name"`
		Metrics map[string][]*float64 `json:"metrics"`
	}
	decode(t, w, &body)
	if len(body.AppName) != 5 {
		t.Errorf("rows: got %d, want 5", len(body.AppName))
	}
	if body.Metrics["Churn_Rate"][2] != nil {
		t.Errorf("expected null Churn_Rate, got %v", *body.Metrics["Churn_Rate"][2])
	}
}

func TestChartEndpoints(t *testing.T) {
	s, _ := setupServer(t, Options{})

	w := do(t, s, "GET", "/api/charts?"+filterQuery(url.Values{"metric": {"Subscriptions"}}))
	if w.Code != http.StatusOK {
		t.Fatalf("charts status: got %d, body %s", w.Code, w.Body.String())
	}
	var single datacache.Series
	decode(t, w, &single)

	w = do(t, s, "GET", "/api/charts/batch?"+filterQuery(url.Values{"metric": {"Subscriptions", "Rebills"}}))
	if w.Code != http.StatusOK {
		t.Fatalf("batch status: got %d, body %s", w.Code, w.Body.String())
	}
	var batch map[string]datacache.Series
	decode(t, w, &batch)

	got := batch["Subscriptions"]
	if len(got.Value) != 4 || len(single.Value) != 4 {
		t.Fatalf("series lengths: batch %d, single %d", len(got.Value), len(single.Value))
	}
	for i := range got.Value {
		if got.Value[i] != single.Value[i] || got.PlanName[i] != single.PlanName[i] {
			t.Errorf("point %d differs: batch %v/%s, single %v/%s", i, got.Value[i], got.PlanName[i], single.Value[i], single.PlanName[i])
		}
	}
}

func TestQueryEndpoints_BadRequests(t *testing.T) {
	s, _ := setupServer(t, Options{})

	tests := []struct {
		name    string
		target  string
		wantSub string
	}{
		{"no metric", "/api/pivot?" + filterQuery(nil), "at least one metric"},
		{"no plan", "/api/pivot?" + filterQuery(url.Values{"plan": {""}, "metric": {"Subscriptions"}}), "at least one plan"},
		{"unknown metric", "/api/pivot?" + filterQuery(url.Values{"metric": {"Churn"}}), "unknown metric"},
		{"bad date", "/api/pivot?" + filterQuery(url.Values{"start": {"01/01/2024"}, "metric": {"Subscriptions"}}), "start"},
		{"end before start", "/api/pivot?" + filterQuery(url.Values{"end": {"2023-01-01"}, "metric": {"Subscriptions"}}), "before"},
		{"bad bc", "/api/charts?" + filterQuery(url.Values{"bc": {"one"}, "metric": {"Subscriptions"}}), "bc"},
		{"missing cohort", "/api/charts?" + filterQuery(url.Values{"cohort": {""}, "metric": {"Subscriptions"}}), "cohort"},
		{"bad table", "/api/charts?" + filterQuery(url.Values{"table": {"Projected"}, "metric": {"Subscriptions"}}), "table type"},
		{"two chart metrics", "/api/charts?" + filterQuery(url.Values{"metric": {"Subscriptions", "Rebills"}}), "exactly one"},
		{"batch no metric", "/api/charts/batch?" + filterQuery(nil), "at least one metric"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, s, "GET", tt.target)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status: got %d, want 400 (body %s)", w.Code, w.Body.String())
			}
			var body map[string]string
			decode(t, w, &body)
			if !strings.Contains(body["error"], tt.wantSub) {
				t.Errorf("error %q should contain %q", body["error"], tt.wantSub)
			}
		})
	}
}

func TestRefreshEndpoints(t *testing.T) {
	s, svc := setupServer(t, Options{})

	w := do(t, s, "POST", "/api/refresh/promote")
	if w.Code != http.StatusConflict {
		t.Errorf("promote without staging: got %d, want 409", w.Code)
	}

	w = do(t, s, "POST", "/api/refresh/extract")
	if w.Code != http.StatusOK {
		t.Fatalf("extract: got %d, body %s", w.Code, w.Body.String())
	}
	var res datacache.RefreshResult
	decode(t, w, &res)
	if !res.OK || res.Rows != testutil.SampleTable().Len() {
		t.Errorf("extract result: %+v", res)
	}
	if !svc.IsStagingReady(context.Background()) {
		t.Error("staging should be ready")
	}

	w = do(t, s, "GET", "/api/refresh/history?limit=5")
	if w.Code != http.StatusOK {
		t.Fatalf("history: got %d", w.Code)
	}
	var runs []refreshRunView
	decode(t, w, &runs)
	if len(runs) != 2 {
		t.Errorf("history: got %d runs, want 2", len(runs))
	}
}

func TestRefreshEndpoints_RateLimited(t *testing.T) {
	s, _ := setupServer(t, Options{RefreshPerHour: 1})

	if w := do(t, s, "POST", "/api/refresh/extract"); w.Code != http.StatusOK {
		t.Fatalf("first trigger: got %d", w.Code)
	}
	w := do(t, s, "POST", "/api/refresh/promote")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second trigger: got %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}

	// Reads are never throttled.
	if w := do(t, s, "GET", "/api/cache/status"); w.Code != http.StatusOK {
		t.Errorf("status after throttle: got %d", w.Code)
	}
}

func TestCacheStatusAndClear(t *testing.T) {
	s, svc := setupServer(t, Options{})
	if _, err := svc.MasterData(context.Background()); err != nil {
		t.Fatalf("MasterData: %v", err)
	}

	w := do(t, s, "GET", "/api/cache/status")
	var st datacache.Status
	decode(t, w, &st)
	if !st.Loaded || st.Source != datacache.TierSource || st.Bucket != "mem://test" {
		t.Errorf("status: %+v", st)
	}

	if w := do(t, s, "POST", "/api/cache/clear"); w.Code != http.StatusOK {
		t.Fatalf("clear: got %d", w.Code)
	}
	decode(t, do(t, s, "GET", "/api/cache/status"), &st)
	if st.Loaded {
		t.Error("expected master cache cleared")
	}
}

func TestMetricsAndStatsEndpoints(t *testing.T) {
	s, _ := setupServer(t, Options{})
	do(t, s, "GET", "/api/dates")

	w := do(t, s, "GET", "/metrics")
	if w.Code != http.StatusOK {
		t.Fatalf("metrics: got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "icarus_") {
		t.Error("expected icarus_ metrics in exposition")
	}

	w = do(t, s, "GET", "/api/stats")
	var stats metrics.Stats
	decode(t, w, &stats)
	if stats.SourceExtractions != 1 {
		t.Errorf("source extractions: got %d, want 1", stats.SourceExtractions)
	}
}

func TestCORS(t *testing.T) {
	s, _ := setupServer(t, Options{AllowedOrigins: []string{"http://localhost:8501"}})

	req := httptest.NewRequest("OPTIONS", "/api/dates", nil)
	req.Header.Set("Origin", "http://localhost:8501")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Errorf("preflight: got %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:8501" {
		t.Errorf("allow origin: got %q", got)
	}

	req = httptest.NewRequest("GET", "/api/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("unlisted origin: got %q", got)
	}
}
