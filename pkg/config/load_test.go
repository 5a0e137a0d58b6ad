package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoadConfig_ValidFile(t *testing.T) {
	path := writeConfig(t, `
server:
  listen_address: "0.0.0.0:9090"
  trust_proxy_headers: true

store:
  backend: "sqlite"
  sqlite:
    path: "./limits-test.db"

quota:
  mode: "reserve"
  tiers:
    anonymous:
      daily_limit: 5
    free:
      daily_limit: 20
      upgrade_to: "pro"

throttle:
  capacity: 10
  refill_rate: 4
  default_timeout: "20s"

telemetry:
  logging:
    level: "debug"
    format: "text"
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Server.ListenAddress != "0.0.0.0:9090" {
		t.Errorf("expected listen address %q, got %q", "0.0.0.0:9090", cfg.Server.ListenAddress)
	}
	if !cfg.Server.TrustProxyHeaders {
		t.Error("expected trust_proxy_headers to be true")
	}
	if cfg.Store.Backend != StoreBackendSQLite {
		t.Errorf("expected sqlite backend, got %q", cfg.Store.Backend)
	}
	if cfg.Quota.Mode != QuotaModeReserve {
		t.Errorf("expected reserve mode, got %q", cfg.Quota.Mode)
	}
	if got := cfg.Quota.Tiers["anonymous"].DailyLimit; got != 5 {
		t.Errorf("expected anonymous limit 5, got %d", got)
	}
	if got := cfg.Quota.Tiers["free"].DailyLimit; got != 20 {
		t.Errorf("expected free limit 20, got %d", got)
	}
	// Built-in tiers missing from the file are still present
	if got := cfg.Quota.Tiers["pro"].DailyLimit; got != -1 {
		t.Errorf("expected pro to default to unlimited, got %d", got)
	}
	if cfg.Throttle.Capacity != 10 || cfg.Throttle.RefillRate != 4 {
		t.Errorf("expected throttle 10@4/s, got %v@%v/s", cfg.Throttle.Capacity, cfg.Throttle.RefillRate)
	}
	if cfg.Throttle.DefaultTimeout != 20*time.Second {
		t.Errorf("expected default timeout 20s, got %v", cfg.Throttle.DefaultTimeout)
	}
	// Defaults for untouched fields
	if cfg.Store.OpTimeout != DefaultStoreOpTimeout {
		t.Errorf("expected op timeout %v, got %v", DefaultStoreOpTimeout, cfg.Store.OpTimeout)
	}
	if cfg.Quota.KeyPrefix != "ratelimit" {
		t.Errorf("expected key prefix ratelimit, got %q", cfg.Quota.KeyPrefix)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !strings.Contains(err.Error(), "failed to read configuration file") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "server: [unterminated")

	_, err := LoadConfig(path)
	if err == nil {
		t.Fatal("expected parse error")
	}
	if !strings.Contains(err.Error(), "failed to parse configuration file") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoadConfig_ValidationFailure(t *testing.T) {
	path := writeConfig(t, `
store:
  backend: "etcd"
`)

	_, err := LoadConfig(path)
	if err == nil {
		t.Fatal("expected validation error")
	}

	var verr ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if verr.Errors[0].Field != "store.backend" {
		t.Errorf("expected store.backend error, got %q", verr.Errors[0].Field)
	}
}

func TestLoadConfigWithEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
store:
  backend: "redis"
  redis:
    url: "redis://file-host:6379/0"
`)

	t.Setenv("PESCANNER_SERVER_LISTEN_ADDRESS", "0.0.0.0:7000")
	t.Setenv("PESCANNER_STORE_REDIS_URL", "redis://env-host:6379/1")
	t.Setenv("PESCANNER_QUOTA_TIERS_FREE_DAILY_LIMIT", "25")
	t.Setenv("PESCANNER_THROTTLE_ENABLED", "false")
	t.Setenv("PESCANNER_TELEMETRY_LOGGING_LEVEL", "warn")

	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Server.ListenAddress != "0.0.0.0:7000" {
		t.Errorf("expected env listen address, got %q", cfg.Server.ListenAddress)
	}
	if cfg.Store.Redis.URL != "redis://env-host:6379/1" {
		t.Errorf("expected env redis url, got %q", cfg.Store.Redis.URL)
	}
	if got := cfg.Quota.Tiers["free"].DailyLimit; got != 25 {
		t.Errorf("expected free limit 25, got %d", got)
	}
	if cfg.Throttle.IsEnabled() {
		t.Error("expected throttle to be disabled")
	}
	if cfg.Telemetry.Logging.Level != "warn" {
		t.Errorf("expected level warn, got %q", cfg.Telemetry.Logging.Level)
	}
}

func TestLoadConfigWithEnvOverrides_RedisURLFallback(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://platform:6379/0")

	cfg, err := LoadConfigWithEnvOverrides("")
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Store.Redis.URL != "redis://platform:6379/0" {
		t.Errorf("expected REDIS_URL to be honoured, got %q", cfg.Store.Redis.URL)
	}

	t.Setenv("PESCANNER_STORE_REDIS_URL", "redis://prefixed:6379/0")
	cfg, err = LoadConfigWithEnvOverrides("")
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Store.Redis.URL != "redis://prefixed:6379/0" {
		t.Errorf("expected prefixed variable to win, got %q", cfg.Store.Redis.URL)
	}
}
