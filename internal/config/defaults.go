package config

// DefaultBindAddress is the default bind address (localhost only for security).
const DefaultBindAddress = "127.0.0.1"

// DefaultPort is the default port for the API server.
const DefaultPort = 7690

// DefaultLogLevel is the default log level.
const DefaultLogLevel = "info"

// DefaultDataDir is the default data directory (before tilde expansion).
const DefaultDataDir = "~/.icarus"

// DefaultConfigFilename is the name of the config file.
const DefaultConfigFilename = "icarus.toml"

// DefaultReadTimeout is the default HTTP server read timeout in seconds.
const DefaultReadTimeout = 10

// DefaultWriteTimeout is the default HTTP server write timeout in seconds.
// A cold master load goes all the way to BigQuery inside the request.
const DefaultWriteTimeout = 300

// DefaultIdleTimeout is the default HTTP server idle timeout in seconds.
const DefaultIdleTimeout = 120

// Storage backends.
const (
	BackendGCS    = "gcs"
	BackendSQLite = "sqlite"
	BackendNone   = "none"
)

// Default object keys inside the durable store.
const (
	DefaultActiveKey      = "cache/active.parquet"
	DefaultStagingKey     = "cache/staging.parquet"
	DefaultExtractMetaKey = "metadata/last_extract.txt"
	DefaultPromoteMetaKey = "metadata/last_promote.txt"
)

// Default cache lifetimes in seconds.
const (
	DefaultMasterTTL     = 600
	DefaultDerivedTTL    = 3600
	DefaultQueryTTL      = 1800
	DefaultMetadataTTL   = 60
	DefaultPurgeInterval = 300
)

// DefaultQueryMaxEntries bounds the query result cache.
const DefaultQueryMaxEntries = 1024

// DefaultRefreshHour and DefaultRefreshMinute are the local time of the
// daily auto-refresh.
const (
	DefaultRefreshHour   = 6
	DefaultRefreshMinute = 0
)

// DefaultRefreshMaxPerHour throttles manually triggered refresh stages.
const DefaultRefreshMaxPerHour = 6

// DefaultRefreshHistoryDays is how long refresh_runs rows are kept.
const DefaultRefreshHistoryDays = 90

// DefaultTracingExporter is the default tracing exporter type.
const DefaultTracingExporter = "otlp-grpc"

// DefaultTracingEndpoint is the default OTLP collector endpoint.
const DefaultTracingEndpoint = "localhost:4317"

// DefaultTracingServiceName is the default service name for traces.
const DefaultTracingServiceName = "icarus"

// DefaultTracingSampleRate is the default sampling rate (1.0 = 100%).
const DefaultTracingSampleRate = 1.0

// ValidLogLevels lists the allowed log level values.
var ValidLogLevels = []string{"trace", "debug", "info", "warn", "error", "fatal"}

// ValidBackends lists the allowed storage.backend values.
var ValidBackends = []string{BackendGCS, BackendSQLite, BackendNone}

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			BindAddress:    DefaultBindAddress,
			Port:           DefaultPort,
			LogLevel:       DefaultLogLevel,
			DataDir:        DefaultDataDir,
			ReadTimeout:    DefaultReadTimeout,
			WriteTimeout:   DefaultWriteTimeout,
			IdleTimeout:    DefaultIdleTimeout,
			AllowedOrigins: []string{"http://localhost:8501", "http://localhost:7690"},
		},
		Source: SourceConfig{
			Table:         "",
			UseQueryCache: true,
		},
		Storage: StorageConfig{
			Backend:        BackendNone,
			ActiveKey:      DefaultActiveKey,
			StagingKey:     DefaultStagingKey,
			ExtractMetaKey: DefaultExtractMetaKey,
			PromoteMetaKey: DefaultPromoteMetaKey,
		},
		Cache: CacheConfig{
			MasterTTLSeconds:     DefaultMasterTTL,
			DerivedTTLSeconds:    DefaultDerivedTTL,
			QueryTTLSeconds:      DefaultQueryTTL,
			MetadataTTLSeconds:   DefaultMetadataTTL,
			QueryMaxEntries:      DefaultQueryMaxEntries,
			PurgeIntervalSeconds: DefaultPurgeInterval,
		},
		Refresh: RefreshConfig{
			AutoEnabled: false,
			Hour:        DefaultRefreshHour,
			Minute:      DefaultRefreshMinute,
			MaxPerHour:  DefaultRefreshMaxPerHour,
			HistoryDays: DefaultRefreshHistoryDays,
		},
		Tracing: TracingConfig{
			Enabled:     false,
			Exporter:    DefaultTracingExporter,
			Endpoint:    DefaultTracingEndpoint,
			ServiceName: DefaultTracingServiceName,
			SampleRate:  DefaultTracingSampleRate,
			Insecure:    false,
		},
	}
}
