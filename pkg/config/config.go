package config

import "time"

// Config is the root configuration structure for the PE Scanner quota service.
// It contains all configuration sections for the HTTP server, the shared
// store, the quota engine, the upstream throttle, the admin interface and
// telemetry.
type Config struct {
	// Server contains HTTP server configuration including listen address,
	// timeouts and proxy header trust.
	Server ServerConfig `yaml:"server"`

	// Store selects and configures the shared state store used by the quota
	// engine and the upstream throttle.
	Store StoreConfig `yaml:"store"`

	// Quota contains the tier table and quota engine behaviour.
	Quota QuotaConfig `yaml:"quota"`

	// Throttle contains the upstream token bucket parameters.
	Throttle ThrottleConfig `yaml:"throttle"`

	// Upstream contains the market-data provider client settings.
	Upstream UpstreamConfig `yaml:"upstream"`

	// Identity controls how callers are mapped to an identity and a tier.
	Identity IdentityConfig `yaml:"identity"`

	// Admin contains the operational endpoint settings.
	Admin AdminConfig `yaml:"admin"`

	// Telemetry contains configuration for observability including logging,
	// metrics, tracing and health checks.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig contains configuration for the HTTP server.
type ServerConfig struct {
	// ListenAddress is the address and port to listen on.
	// Format: "host:port" (e.g., "127.0.0.1:8080", "0.0.0.0:8080").
	// Default: "127.0.0.1:8080"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading the entire request.
	// Default: 15s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the
	// response. It must exceed the throttle's default timeout so a request
	// waiting for an upstream permit can still answer.
	// Default: 60s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the maximum amount of time to wait for the next request
	// when keep-alives are enabled.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxHeaderBytes limits the size of request headers.
	// Default: 1048576 (1MB)
	MaxHeaderBytes int `yaml:"max_header_bytes"`

	// TrustProxyHeaders enables X-Forwarded-For and X-Real-IP when deriving
	// the client address. Enable only behind a proxy that sets them.
	// Default: false
	TrustProxyHeaders bool `yaml:"trust_proxy_headers"`

	// CORSAllowedOrigins lists the browser origins allowed to call the API.
	// "*" allows any origin. Empty disables CORS handling.
	// Default: []
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`

	// TLS configures HTTPS termination.
	TLS TLSConfig `yaml:"tls"`
}

// TLSConfig configures HTTPS termination on the listener.
type TLSConfig struct {
	// Enabled serves HTTPS instead of HTTP.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// CertFile is the PEM-encoded certificate chain.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the PEM-encoded private key.
	KeyFile string `yaml:"key_file"`

	// MinVersion is "1.2" or "1.3".
	// Default: "1.3"
	MinVersion string `yaml:"min_version"`

	// ReloadInterval is how often the certificate files are checked for
	// changes. Renewed certificates are picked up without a restart.
	// Default: 5m
	ReloadInterval time.Duration `yaml:"reload_interval"`
}

// StoreConfig selects the shared state backend.
type StoreConfig struct {
	// Backend is one of "redis", "sqlite" or "memory".
	// Default: "redis"
	Backend string `yaml:"backend"`

	// OpTimeout bounds every individual store call made on the request path
	// so a store outage cannot exhaust request goroutines.
	// Default: 500ms
	OpTimeout time.Duration `yaml:"op_timeout"`

	// Redis configures the Redis backend.
	Redis RedisConfig `yaml:"redis"`

	// SQLite configures the SQLite backend.
	SQLite SQLiteConfig `yaml:"sqlite"`

	// CleanupSchedule is a cron expression for sweeping expired entries
	// from backends without native expiry. Empty disables the sweep.
	// Default: "*/15 * * * *"
	CleanupSchedule string `yaml:"cleanup_schedule"`
}

// RedisConfig contains Redis connection settings.
type RedisConfig struct {
	// URL is a redis:// or rediss:// connection URL.
	// Default: "redis://localhost:6379/0"
	URL string `yaml:"url"`

	// KeyPrefix is prepended to every key, for sharing one Redis between
	// deployments.
	// Default: ""
	KeyPrefix string `yaml:"key_prefix"`

	// DialTimeout is the connection timeout.
	// Default: 2s
	DialTimeout time.Duration `yaml:"dial_timeout"`

	// ReadTimeout is the socket read timeout.
	// Default: 1s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the socket write timeout.
	// Default: 1s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// PoolSize is the maximum number of connections.
	// Default: 0 (go-redis default of 10 per CPU)
	PoolSize int `yaml:"pool_size"`
}

// SQLiteConfig contains SQLite backend settings.
type SQLiteConfig struct {
	// Path is the database file.
	// Default: "data/limits.db"
	Path string `yaml:"path"`

	// BusyTimeout is how long to wait on locks held by other processes.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// QuotaConfig contains the quota engine configuration.
type QuotaConfig struct {
	// Tiers maps tier names to their daily quota.
	// Default: anonymous 3, free 10, pro unlimited, premium unlimited
	Tiers map[string]TierConfig `yaml:"tiers"`

	// Mode is "two_step" (check, then record after success) or "reserve"
	// (atomic increment-then-compare on admission, released on failure).
	// Default: "two_step"
	Mode string `yaml:"mode"`

	// KeyPrefix is the first segment of quota counter keys.
	// Default: "ratelimit"
	KeyPrefix string `yaml:"key_prefix"`

	// ExpiryBuffer is added to 24h when setting counter expiry.
	// Default: 1h
	ExpiryBuffer time.Duration `yaml:"expiry_buffer"`

	// UpgradeURL is returned in rejection bodies.
	// Default: "/pricing"
	UpgradeURL string `yaml:"upgrade_url"`

	// SignupURL is returned in anonymous rejection bodies.
	// Default: "/signup"
	SignupURL string `yaml:"signup_url"`
}

// TierConfig is one row of the tier table.
type TierConfig struct {
	// DailyLimit is the number of requests per UTC day. -1 means unlimited.
	DailyLimit int64 `yaml:"daily_limit"`

	// Message overrides the denial message. {limit} and {next_limit} are
	// substituted.
	Message string `yaml:"message"`

	// UpgradeTo names the tier suggested on denial.
	UpgradeTo string `yaml:"upgrade_to"`
}

// ThrottleConfig contains the upstream token bucket configuration.
type ThrottleConfig struct {
	// Enabled turns the throttle on. When disabled every acquire is granted.
	// Default: true
	Enabled *bool `yaml:"enabled"`

	// Name identifies the bucket in the shared store.
	// Default: "market-data"
	Name string `yaml:"name"`

	// Capacity is the burst size in tokens.
	// Default: 5
	Capacity float64 `yaml:"capacity"`

	// RefillRate is the sustained rate in tokens per second.
	// Default: 2
	RefillRate float64 `yaml:"refill_rate"`

	// DefaultTimeout is how long an acquire waits when the caller gives no
	// deadline.
	// Default: 30s
	DefaultTimeout time.Duration `yaml:"default_timeout"`

	// MaxPollInterval caps a single sleep between retries.
	// Default: 1s
	MaxPollInterval time.Duration `yaml:"max_poll_interval"`

	// StoreRetryInterval is how long the throttle stays on its local bucket
	// after a store failure before trying the store again.
	// Default: 5s
	StoreRetryInterval time.Duration `yaml:"store_retry_interval"`

	// KeyPrefix is the first segment of throttle keys.
	// Default: "throttle"
	KeyPrefix string `yaml:"key_prefix"`
}

// IsEnabled reports whether the throttle is on.
func (c ThrottleConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// UpstreamConfig configures the market-data client.
type UpstreamConfig struct {
	// BaseURL is the provider endpoint.
	// Default: "https://query1.finance.yahoo.com"
	BaseURL string `yaml:"base_url"`

	// Timeout bounds a single upstream call, excluding the permit wait.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`

	// UserAgent is sent with every request.
	// Default: "pescanner/1.0"
	UserAgent string `yaml:"user_agent"`
}

// IdentityConfig controls tier resolution.
type IdentityConfig struct {
	// Resolver is "ip" (everyone anonymous) or "header" (trust headers set
	// by the authentication gateway).
	// Default: "header"
	Resolver string `yaml:"resolver"`

	// UserHeader carries the account identifier.
	// Default: "X-User-ID"
	UserHeader string `yaml:"user_header"`

	// TierHeader carries the subscription tier.
	// Default: "X-User-Tier"
	TierHeader string `yaml:"tier_header"`
}

// AdminConfig configures the operational endpoints.
type AdminConfig struct {
	// Enabled mounts the /admin routes.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Token is the bearer token required by the admin routes.
	Token string `yaml:"token"`

	// RequestsPerSecond limits admin traffic process-wide.
	// Default: 5
	RequestsPerSecond float64 `yaml:"requests_per_second"`

	// Burst is the admin limiter burst.
	// Default: 10
	Burst int `yaml:"burst"`
}

// TelemetryConfig contains observability configuration.
type TelemetryConfig struct {
	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics configures the Prometheus endpoint.
	Metrics MetricsConfig `yaml:"metrics"`

	// Tracing configures OpenTelemetry tracing.
	Tracing TracingConfig `yaml:"tracing"`

	// Health configures the health endpoints.
	Health HealthConfig `yaml:"health"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Level is one of "debug", "info", "warn", "error".
	// Default: "info"
	Level string `yaml:"level"`

	// Format is "json" or "text".
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line in log records.
	// Default: false
	AddSource bool `yaml:"add_source"`

	// RedactPII masks IP and email addresses in log attributes.
	// Default: true
	RedactPII *bool `yaml:"redact_pii"`
}

// ShouldRedact reports whether PII redaction is on.
func (c LoggingConfig) ShouldRedact() bool {
	return c.RedactPII == nil || *c.RedactPII
}

// MetricsConfig contains Prometheus settings.
type MetricsConfig struct {
	// Enabled exposes the metrics endpoint.
	// Default: true
	Enabled *bool `yaml:"enabled"`

	// Path is the metrics endpoint path.
	// Default: "/metrics"
	Path string `yaml:"path"`
}

// IsEnabled reports whether metrics are exposed.
func (c MetricsConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// TracingConfig contains OpenTelemetry settings.
type TracingConfig struct {
	// Enabled turns on span export.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Endpoint is the OTLP gRPC collector address.
	// Default: "localhost:4317"
	Endpoint string `yaml:"endpoint"`

	// ServiceName is reported on every span.
	// Default: "pescanner"
	ServiceName string `yaml:"service_name"`

	// SampleRatio is the fraction of traces sampled (0.0-1.0).
	// Default: 1.0
	SampleRatio float64 `yaml:"sample_ratio"`

	// Insecure disables TLS to the collector.
	// Default: false
	Insecure bool `yaml:"insecure"`
}

// HealthConfig contains health check settings.
type HealthConfig struct {
	// CheckTimeout bounds each readiness check.
	// Default: 2s
	CheckTimeout time.Duration `yaml:"check_timeout"`

	// RequestsPerSecond rate limits the health endpoints process-wide.
	// A negative value disables the limit.
	// Default: 20
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}
