package config

import (
	"fmt"
	"strings"
)

// validate checks the Config for invalid or out-of-range values.
// It returns a combined error if any checks fail.
func validate(cfg *Config) error {
	var errs []string

	// Server validation
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be between 1 and 65535, got %d", cfg.Server.Port))
	}
	if !isValidEnum(cfg.Server.LogLevel, ValidLogLevels) {
		errs = append(errs, fmt.Sprintf("server.log_level must be one of %v, got %q", ValidLogLevels, cfg.Server.LogLevel))
	}
	if cfg.Server.DataDir == "" {
		errs = append(errs, "server.data_dir must not be empty")
	}
	if cfg.Server.ReadTimeout < 0 {
		errs = append(errs, fmt.Sprintf("server.read_timeout must be non-negative, got %d", cfg.Server.ReadTimeout))
	}
	if cfg.Server.WriteTimeout < 0 {
		errs = append(errs, fmt.Sprintf("server.write_timeout must be non-negative, got %d", cfg.Server.WriteTimeout))
	}
	if cfg.Server.IdleTimeout < 0 {
		errs = append(errs, fmt.Sprintf("server.idle_timeout must be non-negative, got %d", cfg.Server.IdleTimeout))
	}

	// Source validation. An empty table is allowed: the service then runs
	// from the durable store only.
	if cfg.Source.Table != "" && strings.Count(cfg.Source.Table, ".") > 2 {
		errs = append(errs, fmt.Sprintf("source.table must be [project.]dataset.table, got %q", cfg.Source.Table))
	}

	// Storage validation
	if !isValidEnum(cfg.Storage.Backend, ValidBackends) {
		errs = append(errs, fmt.Sprintf("storage.backend must be one of %v, got %q", ValidBackends, cfg.Storage.Backend))
	}
	if strings.EqualFold(cfg.Storage.Backend, BackendGCS) && cfg.Storage.Bucket == "" {
		errs = append(errs, "storage.bucket must be set when storage.backend is gcs")
	}
	keys := map[string]string{
		"storage.active_key":       cfg.Storage.ActiveKey,
		"storage.staging_key":      cfg.Storage.StagingKey,
		"storage.extract_meta_key": cfg.Storage.ExtractMetaKey,
		"storage.promote_meta_key": cfg.Storage.PromoteMetaKey,
	}
	seen := make(map[string]string, len(keys))
	for _, name := range []string{"storage.active_key", "storage.staging_key", "storage.extract_meta_key", "storage.promote_meta_key"} {
		k := keys[name]
		if k == "" {
			errs = append(errs, fmt.Sprintf("%s must not be empty", name))
			continue
		}
		if other, dup := seen[k]; dup {
			errs = append(errs, fmt.Sprintf("%s and %s must differ, both are %q", other, name, k))
		}
		seen[k] = name
	}

	// Cache validation
	if cfg.Cache.MasterTTLSeconds < 1 {
		errs = append(errs, fmt.Sprintf("cache.master_ttl_seconds must be at least 1, got %d", cfg.Cache.MasterTTLSeconds))
	}
	if cfg.Cache.DerivedTTLSeconds < 1 {
		errs = append(errs, fmt.Sprintf("cache.derived_ttl_seconds must be at least 1, got %d", cfg.Cache.DerivedTTLSeconds))
	}
	if cfg.Cache.QueryTTLSeconds < 1 {
		errs = append(errs, fmt.Sprintf("cache.query_ttl_seconds must be at least 1, got %d", cfg.Cache.QueryTTLSeconds))
	}
	if cfg.Cache.MetadataTTLSeconds < 1 {
		errs = append(errs, fmt.Sprintf("cache.metadata_ttl_seconds must be at least 1, got %d", cfg.Cache.MetadataTTLSeconds))
	}
	if cfg.Cache.QueryMaxEntries < 1 {
		errs = append(errs, fmt.Sprintf("cache.query_max_entries must be at least 1, got %d", cfg.Cache.QueryMaxEntries))
	}
	if cfg.Cache.PurgeIntervalSeconds < 0 {
		errs = append(errs, fmt.Sprintf("cache.purge_interval_seconds must be non-negative, got %d", cfg.Cache.PurgeIntervalSeconds))
	}

	// Refresh validation
	if cfg.Refresh.Hour < 0 || cfg.Refresh.Hour > 23 {
		errs = append(errs, fmt.Sprintf("refresh.hour must be between 0 and 23, got %d", cfg.Refresh.Hour))
	}
	if cfg.Refresh.Minute < 0 || cfg.Refresh.Minute > 59 {
		errs = append(errs, fmt.Sprintf("refresh.minute must be between 0 and 59, got %d", cfg.Refresh.Minute))
	}
	if cfg.Refresh.MaxPerHour < 0 {
		errs = append(errs, fmt.Sprintf("refresh.max_per_hour must be non-negative, got %d", cfg.Refresh.MaxPerHour))
	}
	if cfg.Refresh.HistoryDays < 1 {
		errs = append(errs, fmt.Sprintf("refresh.history_days must be at least 1, got %d", cfg.Refresh.HistoryDays))
	}

	// Tracing validation
	if cfg.Tracing.Enabled {
		validExporters := []string{"stdout", "otlp-grpc", "otlp-http"}
		if !isValidEnum(cfg.Tracing.Exporter, validExporters) {
			errs = append(errs, fmt.Sprintf("tracing.exporter must be one of %v, got %q", validExporters, cfg.Tracing.Exporter))
		}
		if cfg.Tracing.ServiceName == "" {
			errs = append(errs, "tracing.service_name must not be empty when tracing is enabled")
		}
	}
	if cfg.Tracing.SampleRate < 0 || cfg.Tracing.SampleRate > 1 {
		errs = append(errs, fmt.Sprintf("tracing.sample_rate must be between 0 and 1, got %f", cfg.Tracing.SampleRate))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// isValidEnum returns true if val is in the allowed list (case-insensitive).
func isValidEnum(val string, allowed []string) bool {
	lower := strings.ToLower(val)
	for _, a := range allowed {
		if strings.ToLower(a) == lower {
			return true
		}
	}
	return false
}
