package config

import (
	"strings"
	"testing"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Server.DataDir = "/tmp/test"
	return cfg
}

func TestValidate_ValidConfig(t *testing.T) {
	if err := validate(validConfig()); err != nil {
		t.Fatalf("validate valid config: %v", err)
	}
}

func TestValidate_Fields(t *testing.T) {
	tests := []struct {
		name    string
		mod     func(c *Config)
		wantSub string
	}{
		{"port too high", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"port zero", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"bad log level", func(c *Config) { c.Server.LogLevel = "verbose" }, "log_level"},
		{"empty data dir", func(c *Config) { c.Server.DataDir = "" }, "data_dir"},
		{"negative read timeout", func(c *Config) { c.Server.ReadTimeout = -1 }, "read_timeout"},
		{"table with too many parts", func(c *Config) { c.Source.Table = "a.b.c.d" }, "source.table"},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "s3" }, "storage.backend"},
		{"gcs without bucket", func(c *Config) { c.Storage.Backend = BackendGCS }, "storage.bucket"},
		{"empty key", func(c *Config) { c.Storage.StagingKey = "" }, "storage.staging_key"},
		{"shared key", func(c *Config) { c.Storage.StagingKey = c.Storage.ActiveKey }, "must differ"},
		{"zero master ttl", func(c *Config) { c.Cache.MasterTTLSeconds = 0 }, "master_ttl_seconds"},
		{"zero query ttl", func(c *Config) { c.Cache.QueryTTLSeconds = 0 }, "query_ttl_seconds"},
		{"zero query entries", func(c *Config) { c.Cache.QueryMaxEntries = 0 }, "query_max_entries"},
		{"negative purge interval", func(c *Config) { c.Cache.PurgeIntervalSeconds = -5 }, "purge_interval_seconds"},
		{"hour out of range", func(c *Config) { c.Refresh.Hour = 24 }, "refresh.hour"},
		{"minute out of range", func(c *Config) { c.Refresh.Minute = 60 }, "refresh.minute"},
		{"negative max per hour", func(c *Config) { c.Refresh.MaxPerHour = -1 }, "max_per_hour"},
		{"zero history days", func(c *Config) { c.Refresh.HistoryDays = 0 }, "history_days"},
		{"bad exporter", func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.Exporter = "zipkin"
		}, "tracing.exporter"},
		{"bad sample rate", func(c *Config) { c.Tracing.SampleRate = 1.5 }, "sample_rate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mod(cfg)
			err := validate(cfg)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("error should mention %q: %v", tt.wantSub, err)
			}
		})
	}
}

func TestValidate_GCSWithBucket(t *testing.T) {
	cfg := validConfig()
	cfg.Storage.Backend = BackendGCS
	cfg.Storage.Bucket = "analytics-cache"
	if err := validate(cfg); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Port = 0
	cfg.Server.LogLevel = "bogus"
	cfg.Refresh.Minute = -1

	err := validate(cfg)
	if err == nil {
		t.Fatal("expected errors")
	}
	for _, want := range []string{"server.port", "log_level", "refresh.minute"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("combined error missing %q: %v", want, err)
		}
	}
}

func TestIsValidEnum(t *testing.T) {
	if !isValidEnum("INFO", ValidLogLevels) {
		t.Error("INFO should be valid (case-insensitive)")
	}
	if isValidEnum("verbose", ValidLogLevels) {
		t.Error("verbose should not be valid")
	}
}
