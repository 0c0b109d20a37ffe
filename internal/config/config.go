package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

// configPtr holds the current config for thread-safe access.
var configPtr atomic.Pointer[Config]

// loadedConfigFile stores the path of the config file used by the last successful Load.
var loadedConfigFile atomic.Value

// Get returns the current Config. It is safe for concurrent use.
// If no config has been loaded yet, it returns the default config.
func Get() *Config {
	if c := configPtr.Load(); c != nil {
		return c
	}
	d := DefaultConfig()
	configPtr.Store(d)
	return d
}

// set stores a new Config atomically.
func set(cfg *Config) {
	configPtr.Store(cfg)
}

// Config is the top-level configuration for icarus.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"  toml:"server"`
	Source  SourceConfig  `mapstructure:"source"  toml:"source"`
	Storage StorageConfig `mapstructure:"storage" toml:"storage"`
	Cache   CacheConfig   `mapstructure:"cache"   toml:"cache"`
	Refresh RefreshConfig `mapstructure:"refresh" toml:"refresh"`
	Tracing TracingConfig `mapstructure:"tracing" toml:"tracing"`
}

// ServerConfig holds the API server and process settings.
type ServerConfig struct {
	BindAddress    string   `mapstructure:"bind_address"    toml:"bind_address"`
	Port           int      `mapstructure:"port"            toml:"port"`
	LogLevel       string   `mapstructure:"log_level"       toml:"log_level"`
	DataDir        string   `mapstructure:"data_dir"        toml:"data_dir"`
	ReadTimeout    int      `mapstructure:"read_timeout"    toml:"read_timeout"`
	WriteTimeout   int      `mapstructure:"write_timeout"   toml:"write_timeout"`
	IdleTimeout    int      `mapstructure:"idle_timeout"    toml:"idle_timeout"`
	AllowedOrigins []string `mapstructure:"allowed_origins" toml:"allowed_origins"`
}

// SourceConfig describes the BigQuery table the master dataset is read from.
type SourceConfig struct {
	Table          string `mapstructure:"table"           toml:"table"`
	ProjectID      string `mapstructure:"project_id"      toml:"project_id"`
	Location       string `mapstructure:"location"        toml:"location"`
	CredentialsRef string `mapstructure:"credentials_ref" toml:"credentials_ref"`
	UseQueryCache  bool   `mapstructure:"use_query_cache" toml:"use_query_cache"`
}

// StorageConfig selects the durable snapshot store and its object keys.
type StorageConfig struct {
	Backend        string `mapstructure:"backend"          toml:"backend"` // "gcs", "sqlite", "none"
	Bucket         string `mapstructure:"bucket"           toml:"bucket"`
	CredentialsRef string `mapstructure:"credentials_ref"  toml:"credentials_ref"`
	ActiveKey      string `mapstructure:"active_key"       toml:"active_key"`
	StagingKey     string `mapstructure:"staging_key"      toml:"staging_key"`
	ExtractMetaKey string `mapstructure:"extract_meta_key" toml:"extract_meta_key"`
	PromoteMetaKey string `mapstructure:"promote_meta_key" toml:"promote_meta_key"`
}

// CacheConfig holds the in-process cache lifetimes.
type CacheConfig struct {
	MasterTTLSeconds     int `mapstructure:"master_ttl_seconds"     toml:"master_ttl_seconds"`
	DerivedTTLSeconds    int `mapstructure:"derived_ttl_seconds"    toml:"derived_ttl_seconds"`
	QueryTTLSeconds      int `mapstructure:"query_ttl_seconds"      toml:"query_ttl_seconds"`
	MetadataTTLSeconds   int `mapstructure:"metadata_ttl_seconds"   toml:"metadata_ttl_seconds"`
	QueryMaxEntries      int `mapstructure:"query_max_entries"      toml:"query_max_entries"`
	PurgeIntervalSeconds int `mapstructure:"purge_interval_seconds" toml:"purge_interval_seconds"`
}

// MasterTTL returns the master cache lifetime.
func (c CacheConfig) MasterTTL() time.Duration { return seconds(c.MasterTTLSeconds) }

// DerivedTTL returns the derived cache lifetime.
func (c CacheConfig) DerivedTTL() time.Duration { return seconds(c.DerivedTTLSeconds) }

// QueryTTL returns the query result cache lifetime.
func (c CacheConfig) QueryTTL() time.Duration { return seconds(c.QueryTTLSeconds) }

// MetadataTTL returns the refresh metadata cache lifetime.
func (c CacheConfig) MetadataTTL() time.Duration { return seconds(c.MetadataTTLSeconds) }

// PurgeInterval returns how often expired query results are swept.
func (c CacheConfig) PurgeInterval() time.Duration { return seconds(c.PurgeIntervalSeconds) }

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

// RefreshConfig controls the daily auto-refresh and manual trigger throttling.
type RefreshConfig struct {
	AutoEnabled bool `mapstructure:"auto_enabled" toml:"auto_enabled"`
	Hour        int  `mapstructure:"hour"         toml:"hour"`
	Minute      int  `mapstructure:"minute"       toml:"minute"`
	MaxPerHour  int  `mapstructure:"max_per_hour" toml:"max_per_hour"`
	HistoryDays int  `mapstructure:"history_days" toml:"history_days"`
}

// TracingConfig controls OpenTelemetry distributed tracing.
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"      toml:"enabled"`
	Exporter    string  `mapstructure:"exporter"     toml:"exporter"`     // "stdout", "otlp-grpc", "otlp-http"
	Endpoint    string  `mapstructure:"endpoint"     toml:"endpoint"`     // e.g. "localhost:4317"
	ServiceName string  `mapstructure:"service_name" toml:"service_name"` // defaults to "icarus"
	SampleRate  float64 `mapstructure:"sample_rate"  toml:"sample_rate"`  // 0.0 to 1.0
	Insecure    bool    `mapstructure:"insecure"     toml:"insecure"`     // skip TLS for dev
}

// Load reads configuration from disk with the following precedence:
//  1. Environment variables (ICARUS_ prefix, _ as separator; GCS_CACHE_BUCKET
//     is also honoured for storage.bucket)
//  2. The file at explicitPath if non-empty
//  3. ~/.icarus/icarus.toml
//  4. ./icarus.toml
//  5. Built-in defaults
//
// The loaded config is validated and stored in the global atomic pointer.
func Load(explicitPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("toml")

	// Set all defaults from the default config so viper knows every key.
	setViperDefaults(v)

	// Environment variable overlay: ICARUS_STORAGE_BUCKET etc.
	v.SetEnvPrefix("ICARUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("storage.bucket", "ICARUS_STORAGE_BUCKET", "GCS_CACHE_BUCKET"); err != nil {
		return nil, fmt.Errorf("binding env: %w", err)
	}

	if explicitPath != "" {
		v.SetConfigFile(explicitPath)
	} else {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(homeDir, ".icarus"))
		}
		v.AddConfigPath(".")
		v.SetConfigName("icarus")
	}

	if err := v.ReadInConfig(); err != nil {
		// No config file at all is fine: defaults + env.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	if cf := v.ConfigFileUsed(); cf != "" {
		loadedConfigFile.Store(cf)
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg, viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	)); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	cfg.Server.DataDir = expandHome(cfg.Server.DataDir)

	// A bucket name without an explicit backend means GCS.
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = BackendNone
		if cfg.Storage.Bucket != "" {
			cfg.Storage.Backend = BackendGCS
		}
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	set(cfg)
	return cfg, nil
}

// InitConfig writes the default configuration file to ~/.icarus/icarus.toml.
// If the file already exists it is not overwritten.
func InitConfig() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("determining home directory: %w", err)
	}

	dir := filepath.Join(homeDir, ".icarus")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	path := filepath.Join(dir, DefaultConfigFilename)
	if _, err := os.Stat(path); err == nil {
		fmt.Printf("Config already exists: %s\n", path)
		return nil
	}

	data, err := toml.Marshal(DefaultConfig())
	if err != nil {
		return fmt.Errorf("marshalling default config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	fmt.Printf("Config written to %s\n", path)
	return nil
}

// ExportConfig writes the current config to the given path in TOML format.
func ExportConfig(path string) error {
	data, err := toml.Marshal(Get())
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// ImportConfig reads a TOML config file and makes it the current config.
// It is also persisted to the active config file so changes survive
// restarts.
func ImportConfig(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}
	cfg := DefaultConfig()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config: %w", err)
	}
	if err := validate(cfg); err != nil {
		return err
	}
	set(cfg)

	if dest := ConfigFilePath(); dest != "" {
		out, err := toml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("marshalling config for persistence: %w", err)
		}
		if err := os.WriteFile(dest, out, 0o600); err != nil {
			return fmt.Errorf("persisting imported config: %w", err)
		}
	}
	return nil
}

// ConfigFilePath returns the path of the config file that was loaded, or
// empty if no file was found.
func ConfigFilePath() string {
	if v, ok := loadedConfigFile.Load().(string); ok {
		return v
	}
	return ""
}

// setViperDefaults registers every known key with viper so that env var binding
// works for all fields even when no config file is present.
func setViperDefaults(v *viper.Viper) {
	d := DefaultConfig()

	// Server
	v.SetDefault("server.bind_address", d.Server.BindAddress)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.log_level", d.Server.LogLevel)
	v.SetDefault("server.data_dir", d.Server.DataDir)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.idle_timeout", d.Server.IdleTimeout)
	v.SetDefault("server.allowed_origins", d.Server.AllowedOrigins)

	// Source
	v.SetDefault("source.table", d.Source.Table)
	v.SetDefault("source.project_id", d.Source.ProjectID)
	v.SetDefault("source.location", d.Source.Location)
	v.SetDefault("source.credentials_ref", d.Source.CredentialsRef)
	v.SetDefault("source.use_query_cache", d.Source.UseQueryCache)

	// Storage. backend stays unset so Load can infer it from bucket.
	v.SetDefault("storage.backend", "")
	v.SetDefault("storage.bucket", d.Storage.Bucket)
	v.SetDefault("storage.credentials_ref", d.Storage.CredentialsRef)
	v.SetDefault("storage.active_key", d.Storage.ActiveKey)
	v.SetDefault("storage.staging_key", d.Storage.StagingKey)
	v.SetDefault("storage.extract_meta_key", d.Storage.ExtractMetaKey)
	v.SetDefault("storage.promote_meta_key", d.Storage.PromoteMetaKey)

	// Cache
	v.SetDefault("cache.master_ttl_seconds", d.Cache.MasterTTLSeconds)
	v.SetDefault("cache.derived_ttl_seconds", d.Cache.DerivedTTLSeconds)
	v.SetDefault("cache.query_ttl_seconds", d.Cache.QueryTTLSeconds)
	v.SetDefault("cache.metadata_ttl_seconds", d.Cache.MetadataTTLSeconds)
	v.SetDefault("cache.query_max_entries", d.Cache.QueryMaxEntries)
	v.SetDefault("cache.purge_interval_seconds", d.Cache.PurgeIntervalSeconds)

	// Refresh
	v.SetDefault("refresh.auto_enabled", d.Refresh.AutoEnabled)
	v.SetDefault("refresh.hour", d.Refresh.Hour)
	v.SetDefault("refresh.minute", d.Refresh.Minute)
	v.SetDefault("refresh.max_per_hour", d.Refresh.MaxPerHour)
	v.SetDefault("refresh.history_days", d.Refresh.HistoryDays)

	// Tracing
	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.endpoint", d.Tracing.Endpoint)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
	v.SetDefault("tracing.insecure", d.Tracing.Insecure)
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
