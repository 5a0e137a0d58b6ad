package config

import "time"

// Default values for configuration fields.
const (
	// Server defaults
	DefaultListenAddress     = "127.0.0.1:8080"
	DefaultReadTimeout       = 15 * time.Second
	DefaultWriteTimeout      = 60 * time.Second
	DefaultIdleTimeout       = 120 * time.Second
	DefaultShutdownTimeout   = 30 * time.Second
	DefaultMaxHeaderBytes    = 1048576 // 1MB
	DefaultTLSMinVersion     = "1.3"
	DefaultTLSReloadInterval = 5 * time.Minute

	// Store defaults
	DefaultStoreBackend         = "redis"
	DefaultStoreOpTimeout       = 500 * time.Millisecond
	DefaultStoreCleanupSchedule = "*/15 * * * *"
	DefaultRedisURL             = "redis://localhost:6379/0"
	DefaultRedisDialTimeout     = 2 * time.Second
	DefaultRedisReadTimeout     = time.Second
	DefaultRedisWriteTimeout    = time.Second
	DefaultSQLitePath           = "data/limits.db"
	DefaultSQLiteBusyTimeout    = 5 * time.Second

	// Quota defaults
	DefaultQuotaMode         = QuotaModeTwoStep
	DefaultQuotaKeyPrefix    = "ratelimit"
	DefaultQuotaExpiryBuffer = time.Hour
	DefaultUpgradeURL        = "/pricing"
	DefaultSignupURL         = "/signup"
	DefaultAnonymousLimit    = int64(3)
	DefaultFreeLimit         = int64(10)

	// Throttle defaults
	DefaultThrottleName               = "market-data"
	DefaultThrottleCapacity           = 5.0
	DefaultThrottleRefillRate         = 2.0
	DefaultThrottleTimeout            = 30 * time.Second
	DefaultThrottleMaxPollInterval    = time.Second
	DefaultThrottleStoreRetryInterval = 5 * time.Second
	DefaultThrottleKeyPrefix          = "throttle"

	// Upstream defaults
	DefaultUpstreamBaseURL   = "https://query1.finance.yahoo.com"
	DefaultUpstreamTimeout   = 10 * time.Second
	DefaultUpstreamUserAgent = "pescanner/1.0"

	// Identity defaults
	DefaultIdentityResolver   = IdentityResolverHeader
	DefaultIdentityUserHeader = "X-User-ID"
	DefaultIdentityTierHeader = "X-User-Tier"

	// Admin defaults
	DefaultAdminRequestsPerSecond = 5.0
	DefaultAdminBurst             = 10

	// Telemetry defaults
	DefaultLogLevel                = "info"
	DefaultLogFormat               = "json"
	DefaultMetricsPath             = "/metrics"
	DefaultTracingEndpoint         = "localhost:4317"
	DefaultTracingServiceName      = "pescanner"
	DefaultTracingSampleRatio      = 1.0
	DefaultHealthCheckTimeout      = 2 * time.Second
	DefaultHealthRequestsPerSecond = 20.0
)

// Enumerated configuration values.
const (
	StoreBackendRedis  = "redis"
	StoreBackendSQLite = "sqlite"
	StoreBackendMemory = "memory"

	QuotaModeTwoStep = "two_step"
	QuotaModeReserve = "reserve"

	IdentityResolverIP     = "ip"
	IdentityResolverHeader = "header"
)

// DefaultTiers returns the default tier table.
func DefaultTiers() map[string]TierConfig {
	return map[string]TierConfig{
		"anonymous": {DailyLimit: DefaultAnonymousLimit, UpgradeTo: "free"},
		"free":      {DailyLimit: DefaultFreeLimit, UpgradeTo: "pro"},
		"pro":       {DailyLimit: -1},
		"premium":   {DailyLimit: -1},
	}
}

// ApplyDefaults applies default values to a Config struct.
// It sets defaults for any fields that have zero values.
// This function is idempotent and safe to call multiple times.
func ApplyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultListenAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Server.MaxHeaderBytes == 0 {
		cfg.Server.MaxHeaderBytes = DefaultMaxHeaderBytes
	}
	if cfg.Server.TLS.MinVersion == "" {
		cfg.Server.TLS.MinVersion = DefaultTLSMinVersion
	}
	if cfg.Server.TLS.ReloadInterval == 0 {
		cfg.Server.TLS.ReloadInterval = DefaultTLSReloadInterval
	}

	applyStoreDefaults(&cfg.Store)
	applyQuotaDefaults(&cfg.Quota)

	// Throttle defaults
	if cfg.Throttle.Name == "" {
		cfg.Throttle.Name = DefaultThrottleName
	}
	if cfg.Throttle.Capacity == 0 {
		cfg.Throttle.Capacity = DefaultThrottleCapacity
	}
	if cfg.Throttle.RefillRate == 0 {
		cfg.Throttle.RefillRate = DefaultThrottleRefillRate
	}
	if cfg.Throttle.DefaultTimeout == 0 {
		cfg.Throttle.DefaultTimeout = DefaultThrottleTimeout
	}
	if cfg.Throttle.MaxPollInterval == 0 {
		cfg.Throttle.MaxPollInterval = DefaultThrottleMaxPollInterval
	}
	if cfg.Throttle.StoreRetryInterval == 0 {
		cfg.Throttle.StoreRetryInterval = DefaultThrottleStoreRetryInterval
	}
	if cfg.Throttle.KeyPrefix == "" {
		cfg.Throttle.KeyPrefix = DefaultThrottleKeyPrefix
	}

	// Upstream defaults
	if cfg.Upstream.BaseURL == "" {
		cfg.Upstream.BaseURL = DefaultUpstreamBaseURL
	}
	if cfg.Upstream.Timeout == 0 {
		cfg.Upstream.Timeout = DefaultUpstreamTimeout
	}
	if cfg.Upstream.UserAgent == "" {
		cfg.Upstream.UserAgent = DefaultUpstreamUserAgent
	}

	// Identity defaults
	if cfg.Identity.Resolver == "" {
		cfg.Identity.Resolver = DefaultIdentityResolver
	}
	if cfg.Identity.UserHeader == "" {
		cfg.Identity.UserHeader = DefaultIdentityUserHeader
	}
	if cfg.Identity.TierHeader == "" {
		cfg.Identity.TierHeader = DefaultIdentityTierHeader
	}

	// Admin defaults
	if cfg.Admin.RequestsPerSecond == 0 {
		cfg.Admin.RequestsPerSecond = DefaultAdminRequestsPerSecond
	}
	if cfg.Admin.Burst == 0 {
		cfg.Admin.Burst = DefaultAdminBurst
	}

	applyTelemetryDefaults(&cfg.Telemetry)
}

func applyStoreDefaults(s *StoreConfig) {
	if s.Backend == "" {
		s.Backend = DefaultStoreBackend
	}
	if s.OpTimeout == 0 {
		s.OpTimeout = DefaultStoreOpTimeout
	}
	if s.CleanupSchedule == "" {
		s.CleanupSchedule = DefaultStoreCleanupSchedule
	}
	if s.Redis.URL == "" {
		s.Redis.URL = DefaultRedisURL
	}
	if s.Redis.DialTimeout == 0 {
		s.Redis.DialTimeout = DefaultRedisDialTimeout
	}
	if s.Redis.ReadTimeout == 0 {
		s.Redis.ReadTimeout = DefaultRedisReadTimeout
	}
	if s.Redis.WriteTimeout == 0 {
		s.Redis.WriteTimeout = DefaultRedisWriteTimeout
	}
	if s.SQLite.Path == "" {
		s.SQLite.Path = DefaultSQLitePath
	}
	if s.SQLite.BusyTimeout == 0 {
		s.SQLite.BusyTimeout = DefaultSQLiteBusyTimeout
	}
}

// applyQuotaDefaults fills the tier table. A table given in the file is
// kept as is; only missing built-in tiers are added.
func applyQuotaDefaults(q *QuotaConfig) {
	if q.Tiers == nil {
		q.Tiers = make(map[string]TierConfig)
	}
	for name, tier := range DefaultTiers() {
		if _, ok := q.Tiers[name]; !ok {
			q.Tiers[name] = tier
		}
	}
	if q.Mode == "" {
		q.Mode = DefaultQuotaMode
	}
	if q.KeyPrefix == "" {
		q.KeyPrefix = DefaultQuotaKeyPrefix
	}
	if q.ExpiryBuffer == 0 {
		q.ExpiryBuffer = DefaultQuotaExpiryBuffer
	}
	if q.UpgradeURL == "" {
		q.UpgradeURL = DefaultUpgradeURL
	}
	if q.SignupURL == "" {
		q.SignupURL = DefaultSignupURL
	}
}

func applyTelemetryDefaults(t *TelemetryConfig) {
	if t.Logging.Level == "" {
		t.Logging.Level = DefaultLogLevel
	}
	if t.Logging.Format == "" {
		t.Logging.Format = DefaultLogFormat
	}
	if t.Metrics.Path == "" {
		t.Metrics.Path = DefaultMetricsPath
	}
	if t.Tracing.Endpoint == "" {
		t.Tracing.Endpoint = DefaultTracingEndpoint
	}
	if t.Tracing.ServiceName == "" {
		t.Tracing.ServiceName = DefaultTracingServiceName
	}
	if t.Tracing.SampleRatio == 0 {
		t.Tracing.SampleRatio = DefaultTracingSampleRatio
	}
	if t.Health.CheckTimeout == 0 {
		t.Health.CheckTimeout = DefaultHealthCheckTimeout
	}
	if t.Health.RequestsPerSecond == 0 {
		t.Health.RequestsPerSecond = DefaultHealthRequestsPerSecond
	}
}

// NewDefaultConfig returns a configuration with every default applied.
func NewDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
