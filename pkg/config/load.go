package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// envPrefix is the prefix of every environment override.
const envPrefix = "PESCANNER_"

// LoadConfig loads configuration from a YAML file at the specified path.
// It applies default values, validates the configuration, and returns any errors.
// The configuration is not modified by environment variables; use LoadConfigWithEnvOverrides
// for that functionality.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	return parse(data, path)
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention PESCANNER_SECTION_FIELD (e.g., PESCANNER_STORE_REDIS_URL).
// Environment variables always take precedence over file-based configuration.
//
// An empty path skips the file and starts from defaults.
//
// The loading sequence is:
// 1. Load .env files into the process environment
// 2. Load YAML from file
// 3. Apply default values
// 4. Apply environment variable overrides
// 5. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	if err := LoadDotEnv(); err != nil {
		return nil, err
	}

	var cfg *Config
	if path == "" {
		cfg = NewDefaultConfig()
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
		}
		cfg, err = decode(data, path)
		if err != nil {
			return nil, err
		}
		ApplyDefaults(cfg)
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// LoadDotEnv loads .env.local and .env from the working directory if they
// exist. Variables already set in the environment win.
func LoadDotEnv() error {
	for _, file := range []string{".env.local", ".env"} {
		if err := godotenv.Load(file); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to load %s: %w", file, err)
		}
	}
	return nil
}

func parse(data []byte, path string) (*Config, error) {
	cfg, err := decode(data, path)
	if err != nil {
		return nil, err
	}

	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func decode(data []byte, path string) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}
	return &cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	// Server overrides
	envString("SERVER_LISTEN_ADDRESS", &cfg.Server.ListenAddress)
	envDuration("SERVER_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	envDuration("SERVER_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	envDuration("SERVER_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)
	envBool("SERVER_TRUST_PROXY_HEADERS", &cfg.Server.TrustProxyHeaders)

	// Store overrides. REDIS_URL is the conventional name used by hosting
	// platforms; the prefixed variable wins when both are set.
	envString("STORE_BACKEND", &cfg.Store.Backend)
	envDuration("STORE_OP_TIMEOUT", &cfg.Store.OpTimeout)
	if val := os.Getenv("REDIS_URL"); val != "" {
		cfg.Store.Redis.URL = val
	}
	envString("STORE_REDIS_URL", &cfg.Store.Redis.URL)
	envString("STORE_REDIS_KEY_PREFIX", &cfg.Store.Redis.KeyPrefix)
	envString("STORE_SQLITE_PATH", &cfg.Store.SQLite.Path)
	envString("STORE_CLEANUP_SCHEDULE", &cfg.Store.CleanupSchedule)

	// Quota overrides
	envString("QUOTA_MODE", &cfg.Quota.Mode)
	envString("QUOTA_UPGRADE_URL", &cfg.Quota.UpgradeURL)
	envString("QUOTA_SIGNUP_URL", &cfg.Quota.SignupURL)
	for name, tier := range cfg.Quota.Tiers {
		key := "QUOTA_TIERS_" + strings.ToUpper(name) + "_DAILY_LIMIT"
		if val := os.Getenv(envPrefix + key); val != "" {
			if i, err := strconv.ParseInt(val, 10, 64); err == nil {
				tier.DailyLimit = i
				cfg.Quota.Tiers[name] = tier
			}
		}
	}

	// Throttle overrides
	if val := os.Getenv(envPrefix + "THROTTLE_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Throttle.Enabled = &b
		}
	}
	envFloat("THROTTLE_CAPACITY", &cfg.Throttle.Capacity)
	envFloat("THROTTLE_REFILL_RATE", &cfg.Throttle.RefillRate)
	envDuration("THROTTLE_DEFAULT_TIMEOUT", &cfg.Throttle.DefaultTimeout)

	// Upstream overrides
	envString("UPSTREAM_BASE_URL", &cfg.Upstream.BaseURL)
	envDuration("UPSTREAM_TIMEOUT", &cfg.Upstream.Timeout)

	// Identity overrides
	envString("IDENTITY_RESOLVER", &cfg.Identity.Resolver)

	// Admin overrides
	envBool("ADMIN_ENABLED", &cfg.Admin.Enabled)
	envString("ADMIN_TOKEN", &cfg.Admin.Token)

	// Telemetry overrides
	envString("TELEMETRY_LOGGING_LEVEL", &cfg.Telemetry.Logging.Level)
	envString("TELEMETRY_LOGGING_FORMAT", &cfg.Telemetry.Logging.Format)
	envString("TELEMETRY_METRICS_PATH", &cfg.Telemetry.Metrics.Path)
	envBool("TELEMETRY_TRACING_ENABLED", &cfg.Telemetry.Tracing.Enabled)
	envString("TELEMETRY_TRACING_ENDPOINT", &cfg.Telemetry.Tracing.Endpoint)
	envFloat("TELEMETRY_TRACING_SAMPLE_RATIO", &cfg.Telemetry.Tracing.SampleRatio)
}

func envString(name string, dst *string) {
	if val := os.Getenv(envPrefix + name); val != "" {
		*dst = val
	}
}

func envBool(name string, dst *bool) {
	if val := os.Getenv(envPrefix + name); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			*dst = b
		}
	}
}

func envFloat(name string, dst *float64) {
	if val := os.Getenv(envPrefix + name); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			*dst = f
		}
	}
}

func envDuration(name string, dst *time.Duration) {
	if val := os.Getenv(envPrefix + name); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			*dst = d
		}
	}
}
