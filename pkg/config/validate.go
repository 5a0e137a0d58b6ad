package config

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "server.listen_address").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
// It implements the error interface and provides access to all field errors.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. It returns nil if the configuration is valid.
// All validation errors are collected and returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateStore(&cfg.Store)...)
	errs = append(errs, validateQuota(&cfg.Quota)...)
	errs = append(errs, validateThrottle(&cfg.Throttle, &cfg.Server)...)
	errs = append(errs, validateUpstream(&cfg.Upstream)...)
	errs = append(errs, validateIdentity(&cfg.Identity)...)
	errs = append(errs, validateAdmin(&cfg.Admin)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}

	return nil
}

// validateServer validates server configuration.
func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: "listen address is required",
		})
	}
	if cfg.ReadTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.read_timeout",
			Message: "read timeout must be positive",
		})
	}
	if cfg.WriteTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.write_timeout",
			Message: "write timeout must be positive",
		})
	}
	if cfg.MaxHeaderBytes < 0 || cfg.MaxHeaderBytes > 10*1024*1024 {
		errs = append(errs, FieldError{
			Field:   "server.max_header_bytes",
			Message: "max header bytes must be between 0 and 10MB",
		})
	}
	if cfg.TLS.Enabled {
		if cfg.TLS.CertFile == "" || cfg.TLS.KeyFile == "" {
			errs = append(errs, FieldError{
				Field:   "server.tls",
				Message: "cert_file and key_file are required when TLS is enabled",
			})
		}
		if cfg.TLS.MinVersion != "1.2" && cfg.TLS.MinVersion != "1.3" {
			errs = append(errs, FieldError{
				Field:   "server.tls.min_version",
				Message: fmt.Sprintf("unsupported TLS version %q (must be 1.2 or 1.3)", cfg.TLS.MinVersion),
			})
		}
	}

	return errs
}

// validateStore validates shared store configuration.
func validateStore(cfg *StoreConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case StoreBackendRedis:
		u, err := url.Parse(cfg.Redis.URL)
		if err != nil || (u.Scheme != "redis" && u.Scheme != "rediss" && u.Scheme != "unix") {
			errs = append(errs, FieldError{
				Field:   "store.redis.url",
				Message: fmt.Sprintf("invalid redis URL %q", cfg.Redis.URL),
			})
		}
	case StoreBackendSQLite:
		if cfg.SQLite.Path == "" {
			errs = append(errs, FieldError{
				Field:   "store.sqlite.path",
				Message: "path is required for the sqlite backend",
			})
		}
	case StoreBackendMemory:
	default:
		errs = append(errs, FieldError{
			Field:   "store.backend",
			Message: fmt.Sprintf("unknown backend %q (must be redis, sqlite or memory)", cfg.Backend),
		})
	}

	if cfg.OpTimeout <= 0 {
		errs = append(errs, FieldError{
			Field:   "store.op_timeout",
			Message: "op timeout must be positive",
		})
	}

	if cfg.CleanupSchedule != "" {
		if _, err := cron.ParseStandard(cfg.CleanupSchedule); err != nil {
			errs = append(errs, FieldError{
				Field:   "store.cleanup_schedule",
				Message: fmt.Sprintf("invalid cron expression: %v", err),
			})
		}
	}

	return errs
}

// validateQuota validates the tier table.
func validateQuota(cfg *QuotaConfig) []FieldError {
	var errs []FieldError

	if cfg.Mode != QuotaModeTwoStep && cfg.Mode != QuotaModeReserve {
		errs = append(errs, FieldError{
			Field:   "quota.mode",
			Message: fmt.Sprintf("unknown mode %q (must be two_step or reserve)", cfg.Mode),
		})
	}

	anon, ok := cfg.Tiers["anonymous"]
	if !ok {
		errs = append(errs, FieldError{
			Field:   "quota.tiers.anonymous",
			Message: "the anonymous tier is required",
		})
	} else if anon.DailyLimit < 0 {
		errs = append(errs, FieldError{
			Field:   "quota.tiers.anonymous.daily_limit",
			Message: "the anonymous tier cannot be unlimited",
		})
	}

	// Sorted for stable error output
	names := make([]string, 0, len(cfg.Tiers))
	for name := range cfg.Tiers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		tier := cfg.Tiers[name]
		prefix := "quota.tiers." + name
		if name != strings.ToLower(name) {
			errs = append(errs, FieldError{
				Field:   prefix,
				Message: "tier names must be lowercase",
			})
		}
		if tier.DailyLimit < -1 {
			errs = append(errs, FieldError{
				Field:   prefix + ".daily_limit",
				Message: "daily limit must be -1 (unlimited) or non-negative",
			})
		}
		if tier.UpgradeTo != "" {
			if _, ok := cfg.Tiers[tier.UpgradeTo]; !ok {
				errs = append(errs, FieldError{
					Field:   prefix + ".upgrade_to",
					Message: fmt.Sprintf("unknown tier %q", tier.UpgradeTo),
				})
			}
		}
	}

	if cfg.ExpiryBuffer < 0 {
		errs = append(errs, FieldError{
			Field:   "quota.expiry_buffer",
			Message: "expiry buffer must be non-negative",
		})
	}

	return errs
}

// validateThrottle validates the upstream token bucket.
func validateThrottle(cfg *ThrottleConfig, server *ServerConfig) []FieldError {
	var errs []FieldError

	if cfg.Capacity < 1 {
		errs = append(errs, FieldError{
			Field:   "throttle.capacity",
			Message: "capacity must be at least 1",
		})
	}
	if cfg.RefillRate <= 0 {
		errs = append(errs, FieldError{
			Field:   "throttle.refill_rate",
			Message: "refill rate must be positive",
		})
	}
	if cfg.DefaultTimeout <= 0 {
		errs = append(errs, FieldError{
			Field:   "throttle.default_timeout",
			Message: "default timeout must be positive",
		})
	}
	if server.WriteTimeout > 0 && cfg.DefaultTimeout >= server.WriteTimeout {
		errs = append(errs, FieldError{
			Field:   "throttle.default_timeout",
			Message: "default timeout must be shorter than server.write_timeout",
		})
	}
	if cfg.MaxPollInterval <= 0 {
		errs = append(errs, FieldError{
			Field:   "throttle.max_poll_interval",
			Message: "max poll interval must be positive",
		})
	}

	return errs
}

// validateUpstream validates the market-data client.
func validateUpstream(cfg *UpstreamConfig) []FieldError {
	var errs []FieldError

	if u, err := url.Parse(cfg.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, FieldError{
			Field:   "upstream.base_url",
			Message: fmt.Sprintf("invalid URL %q", cfg.BaseURL),
		})
	}
	if cfg.Timeout <= 0 {
		errs = append(errs, FieldError{
			Field:   "upstream.timeout",
			Message: "timeout must be positive",
		})
	}

	return errs
}

// validateIdentity validates tier resolution settings.
func validateIdentity(cfg *IdentityConfig) []FieldError {
	var errs []FieldError

	if cfg.Resolver != IdentityResolverIP && cfg.Resolver != IdentityResolverHeader {
		errs = append(errs, FieldError{
			Field:   "identity.resolver",
			Message: fmt.Sprintf("unknown resolver %q (must be ip or header)", cfg.Resolver),
		})
	}

	return errs
}

// validateAdmin validates the admin endpoint settings.
func validateAdmin(cfg *AdminConfig) []FieldError {
	var errs []FieldError

	if cfg.Enabled && len(cfg.Token) < 16 {
		errs = append(errs, FieldError{
			Field:   "admin.token",
			Message: "a token of at least 16 characters is required when admin is enabled",
		})
	}
	if cfg.RequestsPerSecond <= 0 {
		errs = append(errs, FieldError{
			Field:   "admin.requests_per_second",
			Message: "requests per second must be positive",
		})
	}

	return errs
}

// validateTelemetry validates telemetry configuration.
func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid level %q (must be debug, info, warn or error)", cfg.Logging.Level),
		})
	}

	if cfg.Logging.Format != "json" && cfg.Logging.Format != "text" {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid format %q (must be json or text)", cfg.Logging.Format),
		})
	}

	if !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{
			Field:   "telemetry.metrics.path",
			Message: "path must start with /",
		})
	}

	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.sample_ratio",
			Message: "sample ratio must be between 0.0 and 1.0",
		})
	}

	return errs
}
