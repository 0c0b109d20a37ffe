// Package api serves the analytics cache over a JSON HTTP API for the UI
// layer. Every read goes through the datacache Service; the refresh
// endpoints are throttled.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/allaspectsdev/icarus/internal/datacache"
	"github.com/allaspectsdev/icarus/internal/dataset"
	"github.com/allaspectsdev/icarus/internal/metrics"
	"github.com/allaspectsdev/icarus/internal/store"
	"github.com/allaspectsdev/icarus/internal/tracing"
)

// Cache is the part of datacache.Service the API serves.
type Cache interface {
	DateBounds(ctx context.Context) (datacache.DateBounds, error)
	PlanGroups(ctx context.Context, state dataset.ActiveState) ([]datacache.PlanGroup, error)
	Pivot(ctx context.Context, f dataset.Filter, metrics []dataset.Metric) (*datacache.PivotResult, error)
	ChartSeries(ctx context.Context, f dataset.Filter, metric dataset.Metric) (*datacache.Series, error)
	BatchedChartSeries(ctx context.Context, f dataset.Filter, metrics []dataset.Metric) (map[dataset.Metric]*datacache.Series, error)
	ExtractToStaging(ctx context.Context) datacache.RefreshResult
	PromoteStagingToActive(ctx context.Context) datacache.RefreshResult
	RefreshHistory(limit int) ([]*store.RefreshRun, error)
	Status(ctx context.Context) datacache.Status
	ClearAll()
}

// Options configures a Server.
type Options struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	// AllowedOrigins lists CORS origins; "*" allows any.
	AllowedOrigins []string
	// RefreshPerHour caps manually triggered refresh stages. Zero disables
	// the limit.
	RefreshPerHour int
}

// Server is the HTTP front of the cache.
type Server struct {
	router    chi.Router
	cache     Cache
	collector *metrics.Collector
	limiter   *rate.Limiter
	opts      Options
	server    *http.Server
}

// NewServer wires the routes for c. collector may be nil, in which case
// /metrics and /api/stats are not mounted.
func NewServer(c Cache, collector *metrics.Collector, opts Options) *Server {
	s := &Server{
		cache:     c,
		collector: collector,
		limiter:   newRefreshLimiter(opts.RefreshPerHour),
		opts:      opts,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(tracing.HTTPMiddleware)
	r.Use(corsMiddleware(opts.AllowedOrigins))

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/dates", s.handleDates)
	r.Get("/api/plans", s.handlePlans)
	r.Get("/api/pivot", s.handlePivot)
	r.Get("/api/charts", s.handleChart)
	r.Get("/api/charts/batch", s.handleChartBatch)
	r.Get("/api/cache/status", s.handleCacheStatus)
	r.Post("/api/cache/clear", s.handleCacheClear)
	r.Get("/api/refresh/history", s.handleRefreshHistory)
	r.Group(func(r chi.Router) {
		r.Use(s.throttleRefresh)
		r.Post("/api/refresh/extract", s.handleExtract)
		r.Post("/api/refresh/promote", s.handlePromote)
	})

	if collector != nil {
		r.Get("/api/stats", s.handleStats)
		r.Get("/metrics", metrics.PrometheusHandler(collector))
	}

	s.router = r
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins listening on the configured address. It blocks until the
// server is shut down or an error occurs.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.opts.Addr,
		Handler:      s.router,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  s.opts.IdleTimeout,
	}

	log.Info().Str("addr", s.opts.Addr).Msg("api server starting")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// newRefreshLimiter spreads perHour triggers evenly over the hour and lets
// all of them burst at once.
func newRefreshLimiter(perHour int) *rate.Limiter {
	if perHour <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Every(time.Hour/time.Duration(perHour)), perHour)
}

func (s *Server) throttleRefresh(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			log.Warn().Str("path", r.URL.Path).Msg("refresh trigger rate limited")
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "too many refresh requests, try again later")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware allows cross-origin reads from the configured origins.
func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			switch {
			case allowed["*"]:
				w.Header().Set("Access-Control-Allow-Origin", "*")
			case origin != "" && allowed[origin]:
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
