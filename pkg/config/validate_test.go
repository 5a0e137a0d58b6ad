package config

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{
			name:      "empty listen address",
			mutate:    func(c *Config) { c.Server.ListenAddress = "" },
			wantField: "server.listen_address",
		},
		{
			name:      "tls without key",
			mutate:    func(c *Config) { c.Server.TLS = TLSConfig{Enabled: true, CertFile: "cert.pem", MinVersion: "1.3"} },
			wantField: "server.tls",
		},
		{
			name: "tls 1.1",
			mutate: func(c *Config) {
				c.Server.TLS = TLSConfig{Enabled: true, CertFile: "cert.pem", KeyFile: "key.pem", MinVersion: "1.1"}
			},
			wantField: "server.tls.min_version",
		},
		{
			name:      "unknown backend",
			mutate:    func(c *Config) { c.Store.Backend = "etcd" },
			wantField: "store.backend",
		},
		{
			name:      "bad redis url",
			mutate:    func(c *Config) { c.Store.Redis.URL = "http://localhost" },
			wantField: "store.redis.url",
		},
		{
			name:      "bad cron",
			mutate:    func(c *Config) { c.Store.CleanupSchedule = "every minute" },
			wantField: "store.cleanup_schedule",
		},
		{
			name:      "unknown quota mode",
			mutate:    func(c *Config) { c.Quota.Mode = "strict" },
			wantField: "quota.mode",
		},
		{
			name:      "unlimited anonymous",
			mutate:    func(c *Config) { c.Quota.Tiers["anonymous"] = TierConfig{DailyLimit: -1} },
			wantField: "quota.tiers.anonymous.daily_limit",
		},
		{
			name:      "invalid limit",
			mutate:    func(c *Config) { c.Quota.Tiers["free"] = TierConfig{DailyLimit: -5} },
			wantField: "quota.tiers.free.daily_limit",
		},
		{
			name: "unknown upgrade target",
			mutate: func(c *Config) {
				c.Quota.Tiers["free"] = TierConfig{DailyLimit: 10, UpgradeTo: "platinum"}
			},
			wantField: "quota.tiers.free.upgrade_to",
		},
		{
			name:      "zero capacity",
			mutate:    func(c *Config) { c.Throttle.Capacity = 0.5 },
			wantField: "throttle.capacity",
		},
		{
			name:      "negative refill",
			mutate:    func(c *Config) { c.Throttle.RefillRate = -1 },
			wantField: "throttle.refill_rate",
		},
		{
			name: "throttle timeout exceeds write timeout",
			mutate: func(c *Config) {
				c.Throttle.DefaultTimeout = time.Minute
				c.Server.WriteTimeout = 30 * time.Second
			},
			wantField: "throttle.default_timeout",
		},
		{
			name:      "admin without token",
			mutate:    func(c *Config) { c.Admin.Enabled = true },
			wantField: "admin.token",
		},
		{
			name:      "bad log level",
			mutate:    func(c *Config) { c.Telemetry.Logging.Level = "verbose" },
			wantField: "telemetry.logging.level",
		},
		{
			name:      "bad sample ratio",
			mutate:    func(c *Config) { c.Telemetry.Tracing.SampleRatio = 2 },
			wantField: "telemetry.tracing.sample_ratio",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			if err == nil {
				t.Fatal("expected validation error")
			}

			var verr ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %T", err)
			}

			found := false
			for _, fe := range verr.Errors {
				if fe.Field == tt.wantField {
					found = true
				}
			}
			if !found {
				t.Errorf("expected error on %q, got %v", tt.wantField, verr.Errors)
			}
		})
	}
}

func TestValidationError_Error(t *testing.T) {
	single := ValidationError{Errors: []FieldError{{Field: "a", Message: "bad"}}}
	if got := single.Error(); got != "configuration validation failed: a: bad" {
		t.Errorf("unexpected message %q", got)
	}

	multi := ValidationError{Errors: []FieldError{{Field: "a", Message: "bad"}, {Field: "b", Message: "worse"}}}
	if !strings.Contains(multi.Error(), "2 errors") {
		t.Errorf("expected error count in %q", multi.Error())
	}
}
