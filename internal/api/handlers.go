package api

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/allaspectsdev/icarus/internal/datacache"
	"github.com/allaspectsdev/icarus/internal/dataset"
)

// planView is a plan group as the plan picker shows it.
type planView struct {
	AppName  string `json:"App_Name"`
	PlanName string `json:"Plan_Name"`
	Label    string `json:"label"`
}

// refreshRunView is one refresh_runs row.
type refreshRunView struct {
	ID         string `json:"id"`
	Stage      string `json:"stage"`
	StartedAt  string `json:"started_at"`
	DurationMs int64  `json:"duration_ms"`
	OK         bool   `json:"ok"`
	Rows       int64  `json:"rows"`
	Message    string `json:"message"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.collector.Stats())
}

func (s *Server) handleDates(w http.ResponseWriter, r *http.Request) {
	b, err := s.cache.DateBounds(r.Context())
	if err != nil {
		internalError(w, "date bounds", err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// handlePlans returns the plan groups for ?state= (default Active).
func (s *Server) handlePlans(w http.ResponseWriter, r *http.Request) {
	state := dataset.Active
	if v := r.URL.Query().Get("state"); v != "" {
		var err error
		if state, err = dataset.ParseActiveState(v); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	groups, err := s.cache.PlanGroups(r.Context(), state)
	if err != nil {
		internalError(w, "plan groups", err)
		return
	}
	out := make([]planView, len(groups))
	for i, g := range groups {
		out[i] = planView{AppName: g.AppName, PlanName: g.PlanName, Label: g.Label()}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePivot(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ms, err := parseMetrics(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.cache.Pivot(r.Context(), f, ms)
	if err != nil {
		internalError(w, "pivot", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleChart serves one metric series; exactly one metric is accepted.
func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ms, err := parseMetrics(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(ms) != 1 {
		writeError(w, http.StatusBadRequest, "charts takes exactly one metric; use /api/charts/batch")
		return
	}

	res, err := s.cache.ChartSeries(r.Context(), f, ms[0])
	if err != nil {
		internalError(w, "chart series", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleChartBatch(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ms, err := parseMetrics(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.cache.BatchedChartSeries(r.Context(), f, ms)
	if err != nil {
		internalError(w, "batched chart series", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	writeRefresh(w, s.cache.ExtractToStaging(r.Context()))
}

func (s *Server) handlePromote(w http.ResponseWriter, r *http.Request) {
	writeRefresh(w, s.cache.PromoteStagingToActive(r.Context()))
}

// handleRefreshHistory returns recent refresh runs. Accepts ?limit= (default 20).
func (s *Server) handleRefreshHistory(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 20)
	if limit < 1 || limit > 500 {
		limit = 20
	}

	runs, err := s.cache.RefreshHistory(limit)
	if err != nil {
		internalError(w, "refresh history", err)
		return
	}
	out := make([]refreshRunView, 0, len(runs))
	for _, run := range runs {
		out = append(out, refreshRunView{
			ID:         run.ID,
			Stage:      run.Stage,
			StartedAt:  run.StartedAt,
			DurationMs: run.DurationMs,
			OK:         run.OK,
			Rows:       run.Rows,
			Message:    run.Message,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCacheStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cache.Status(r.Context()))
}

func (s *Server) handleCacheClear(w http.ResponseWriter, _ *http.Request) {
	s.cache.ClearAll()
	log.Info().Msg("all caches cleared")
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// writeRefresh maps a stage result to 200, or 409 when the stage failed.
func writeRefresh(w http.ResponseWriter, res datacache.RefreshResult) {
	status := http.StatusOK
	if !res.OK {
		status = http.StatusConflict
	}
	writeJSON(w, status, res)
}

func internalError(w http.ResponseWriter, op string, err error) {
	log.Error().Err(err).Str("op", op).Msg("request failed")
	writeError(w, http.StatusInternalServerError, err.Error())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to write JSON response")
	}
}
