package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"

	"github.com/allaspectsdev/icarus/internal/api"
	"github.com/allaspectsdev/icarus/internal/config"
	"github.com/allaspectsdev/icarus/internal/datacache"
	"github.com/allaspectsdev/icarus/internal/metrics"
	"github.com/allaspectsdev/icarus/internal/store"
	"github.com/allaspectsdev/icarus/internal/tracing"
	"github.com/allaspectsdev/icarus/internal/version"
)

const (
	logFilename = "icarus.log"
	dbFilename  = "icarus.db"
)

// Run is the main daemon orchestrator. It initialises all subsystems,
// starts the API server, and blocks until a shutdown signal is received.
func Run(cfg *config.Config, foreground bool) error {
	// 1. Set up zerolog logger.
	dataDir := expandHome(cfg.Server.DataDir)
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("creating data directory %s: %w", dataDir, err)
	}
	logFile, err := setupLogging(dataDir, cfg.Server.LogLevel, foreground)
	if err != nil {
		return err
	}
	defer logFile.Close()

	log.Info().
		Str("version", version.Version).
		Str("data_dir", dataDir).
		Bool("foreground", foreground).
		Msg("icarus starting")

	// 2. Check if already running.
	if IsRunning(dataDir) {
		return fmt.Errorf("icarus is already running (PID file exists at %s)", filepath.Join(dataDir, pidFilename))
	}

	// 3. Open store.
	dbPath := filepath.Join(dataDir, dbFilename)
	st, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()
	log.Info().Str("db_path", dbPath).Msg("store opened")

	// 4. Tracing.
	if cfg.Tracing.Enabled {
		shutdown, err := tracing.Init(context.Background(), tracing.FromConfig(cfg.Tracing, version.Version))
		if err != nil {
			log.Warn().Err(err).Msg("tracing init failed; continuing without traces")
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(ctx); err != nil {
					log.Warn().Err(err).Msg("tracing shutdown")
				}
			}()
			log.Info().Str("exporter", cfg.Tracing.Exporter).Msg("tracing enabled")
		}
	}

	// 5. Cache core.
	collector := metrics.NewCollector()
	svc, cleanup, err := buildService(context.Background(), cfg, st, collector)
	if err != nil {
		return fmt.Errorf("building cache service: %w", err)
	}
	defer cleanup()

	// 6. Write PID file.
	if err := WritePID(dataDir); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer func() {
		if err := RemovePID(dataDir); err != nil {
			log.Error().Err(err).Msg("failed to remove PID file")
		}
	}()
	log.Info().Int("pid", os.Getpid()).Msg("PID file written")

	// 7. Start config watcher.
	configFile := config.ConfigFilePath()
	if configFile == "" {
		configFile = filepath.Join(dataDir, config.DefaultConfigFilename)
	}
	if _, statErr := os.Stat(configFile); statErr == nil {
		w, watchErr := config.Watch(configFile)
		if watchErr != nil {
			log.Warn().Err(watchErr).Msg("failed to start config watcher; continuing without hot-reload")
		} else {
			defer w.Close()
			w.OnChange(func(old, newCfg *config.Config) {
				zerolog.SetGlobalLevel(parseLogLevel(newCfg.Server.LogLevel))
			})
			log.Info().Str("file", configFile).Msg("config watcher started")
		}
	}

	// 8. Background work: refresh-run pruning, query purging, auto-refresh.
	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	prunerDone := make(chan struct{})
	go func() {
		defer close(prunerDone)
		runPruner(bgCtx, st, cfg.Refresh.HistoryDays)
	}()

	var purgerDone <-chan struct{}
	if iv := cfg.Cache.PurgeInterval(); iv > 0 {
		purgerDone = svc.StartQueryPurger(bgCtx, iv)
	} else {
		closed := make(chan struct{})
		close(closed)
		purgerDone = closed
	}

	schedDone := make(chan struct{})
	if cfg.Refresh.AutoEnabled {
		go func() {
			defer close(schedDone)
			runScheduler(bgCtx, clockwork.NewRealClock(), cfg.Refresh.Hour, cfg.Refresh.Minute, svc)
		}()
	} else {
		close(schedDone)
	}

	// 9. API server.
	addr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.Port)
	server := api.NewServer(svc, collector, api.Options{
		Addr:           addr,
		ReadTimeout:    time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:    time.Duration(cfg.Server.IdleTimeout) * time.Second,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RefreshPerHour: cfg.Refresh.MaxPerHour,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			errCh <- err
		}
	}()

	log.Info().
		Str("addr", addr).
		Str("source", cfg.Source.Table).
		Str("storage", cfg.Storage.Backend).
		Bool("auto_refresh", cfg.Refresh.AutoEnabled).
		Msg("icarus is ready")

	if foreground {
		fmt.Printf("\n  icarus is running!\n")
		fmt.Printf("  API: http://%s\n\n", addr)
	}

	// 10. Wait for shutdown signal or fatal error.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	case err := <-errCh:
		log.Error().Err(err).Msg("fatal server error")
		return err
	}

	// 11. Graceful shutdown with 30-second timeout.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	log.Info().Msg("shutting down server...")
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("api server shutdown error")
	}

	// 12. Wait for background goroutines before the store closes.
	bgCancel()
	<-purgerDone
	<-prunerDone
	<-schedDone

	log.Info().Msg("icarus stopped")
	return nil
}

// setupLogging points the global logger at dataDir/icarus.log and, in the
// foreground, at stdout as well: human-readable on a terminal, JSON
// otherwise.
func setupLogging(dataDir, level string, foreground bool) (io.Closer, error) {
	zerolog.SetGlobalLevel(parseLogLevel(level))

	logPath := filepath.Join(dataDir, logFilename)
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening log file %s: %w", logPath, err)
	}

	writers := []io.Writer{logFile}
	if foreground {
		if term.IsTerminal(int(os.Stdout.Fd())) {
			writers = append(writers, zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"})
		} else {
			writers = append(writers, os.Stdout)
		}
	}

	multi := zerolog.MultiLevelWriter(writers...)
	log.Logger = zerolog.New(multi).With().Timestamp().Str("service", "icarus").Logger()
	return logFile, nil
}

// Stop reads the PID file and sends SIGTERM to the running daemon.
func Stop() error {
	dataDir := expandHome(config.Get().Server.DataDir)

	pid, err := ReadPID(dataDir)
	if err != nil {
		return fmt.Errorf("icarus does not appear to be running: %w", err)
	}

	if !isProcessAlive(pid) {
		if rmErr := RemovePID(dataDir); rmErr != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to remove stale PID file: %v\n", rmErr)
		}
		return fmt.Errorf("icarus is not running (stale PID file removed)")
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("finding process %d: %w", pid, err)
	}
	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("sending SIGTERM to process %d: %w", pid, err)
	}

	fmt.Printf("Sent SIGTERM to icarus (PID %d)\n", pid)

	for i := 0; i < 30; i++ {
		time.Sleep(100 * time.Millisecond)
		if !isProcessAlive(pid) {
			return nil
		}
	}
	return nil
}

// Status checks if the daemon is running and prints a summary.
func Status() error {
	cfg := config.Get()
	dataDir := expandHome(cfg.Server.DataDir)

	if !IsRunning(dataDir) {
		fmt.Println("icarus is not running")
		return nil
	}

	pid, _ := ReadPID(dataDir)
	fmt.Printf("icarus is running (PID %d)\n", pid)

	var stats metrics.Stats
	if err := getJSON(cfg, "/api/stats", &stats); err != nil {
		fmt.Println("  (api unreachable)")
		return nil
	}

	fmt.Printf("\n  Uptime:             %s\n", stats.Uptime)
	fmt.Printf("  Cache Hit Rate:     %.1f%% (%d hits / %d misses)\n", stats.CacheHitRate, stats.CacheHits, stats.CacheMisses)
	fmt.Printf("  Source Extractions: %d\n", stats.SourceExtractions)
	fmt.Printf("  Master Rows:        %d\n", stats.MasterRows)
	return nil
}

// CacheStatus prints the cache report, from the running daemon if there is
// one, otherwise from a freshly wired in-process service.
func CacheStatus(cfg *config.Config) error {
	var st datacache.Status
	if IsRunning(expandHome(cfg.Server.DataDir)) {
		if err := getJSON(cfg, "/api/cache/status", &st); err != nil {
			return err
		}
	} else {
		err := withLocalService(cfg, func(ctx context.Context, svc *datacache.Service) error {
			st = svc.Status(ctx)
			return nil
		})
		if err != nil {
			return err
		}
	}

	fmt.Printf("  Data loaded:    %t (%s, %d rows)\n", st.Loaded, st.Source, st.Rows)
	fmt.Printf("  Store:          %s\n", st.Bucket)
	fmt.Printf("  Last extract:   %s\n", st.LastExtract)
	fmt.Printf("  Last promote:   %s\n", st.LastPromote)
	fmt.Printf("  Staging ready:  %t\n", st.StagingReady)
	return nil
}

// Refresh runs one refresh stage ("extract" or "promote"). A running daemon
// performs it so that its caches are invalidated; otherwise it runs
// in-process against the durable store.
func Refresh(cfg *config.Config, stage string) (datacache.RefreshResult, error) {
	if stage != datacache.StageExtract && stage != datacache.StagePromote {
		return datacache.RefreshResult{}, fmt.Errorf("unknown refresh stage %q", stage)
	}

	if IsRunning(expandHome(cfg.Server.DataDir)) {
		var res datacache.RefreshResult
		err := postJSON(cfg, "/api/refresh/"+stage, &res)
		return res, err
	}

	var res datacache.RefreshResult
	err := withLocalService(cfg, func(ctx context.Context, svc *datacache.Service) error {
		if stage == datacache.StageExtract {
			res = svc.ExtractToStaging(ctx)
		} else {
			res = svc.PromoteStagingToActive(ctx)
		}
		return nil
	})
	return res, err
}

// withLocalService opens the store and wires a Service for one-shot CLI use.
func withLocalService(cfg *config.Config, fn func(context.Context, *datacache.Service) error) error {
	dataDir := expandHome(cfg.Server.DataDir)
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("creating data directory %s: %w", dataDir, err)
	}
	st, err := store.Open(filepath.Join(dataDir, dbFilename))
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	ctx := context.Background()
	svc, cleanup, err := buildService(ctx, cfg, st, nil)
	if err != nil {
		return err
	}
	defer cleanup()
	return fn(ctx, svc)
}

func apiURL(cfg *config.Config, path string) string {
	host := cfg.Server.BindAddress
	if host == "" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("http://%s:%d%s", host, cfg.Server.Port, path)
}

func getJSON(cfg *config.Config, path string, v interface{}) error {
	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Get(apiURL(cfg, path))
	if err != nil {
		return fmt.Errorf("contacting icarus: %w", err)
	}
	defer resp.Body.Close()
	return decodeResponse(resp, v)
}

func postJSON(cfg *config.Config, path string, v interface{}) error {
	// A refresh stage may run a full source extraction.
	client := &http.Client{Timeout: time.Duration(cfg.Server.WriteTimeout) * time.Second}
	resp, err := client.Post(apiURL(cfg, path), "application/json", nil)
	if err != nil {
		return fmt.Errorf("contacting icarus: %w", err)
	}
	defer resp.Body.Close()
	return decodeResponse(resp, v)
}

// decodeResponse decodes v from resp. 409 carries a failed refresh result
// and is decoded like a success.
func decodeResponse(resp *http.Response, v interface{}) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusConflict {
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			return fmt.Errorf("icarus: %s", e.Error)
		}
		return fmt.Errorf("icarus: unexpected status %d", resp.StatusCode)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// runPruner periodically removes old refresh_runs rows.
func runPruner(ctx context.Context, st *store.Store, retentionDays int) {
	if retentionDays <= 0 {
		return
	}

	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			func() {
				defer func() {
					if r := recover(); r != nil {
						log.Error().Interface("panic", r).Msg("data pruner: recovered from panic")
					}
				}()
				n, err := st.Prune(retentionDays)
				if err != nil {
					log.Error().Err(err).Msg("refresh history pruning failed")
				} else if n > 0 {
					log.Info().Int64("rows", n).Int("retention_days", retentionDays).Msg("pruned refresh history")
				}
			}()
		}
	}
}

// parseLogLevel converts a string log level to a zerolog.Level.
func parseLogLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// expandHome replaces a leading ~ with the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
