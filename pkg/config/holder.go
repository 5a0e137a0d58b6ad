package config

import (
	"slices"
	"sync"
	"time"
)

// Holder keeps the configuration a running process is using. Each Swap
// bumps the generation so log lines and admin output can tell reloads apart.
type Holder struct {
	mu         sync.RWMutex
	cfg        *Config
	generation uint64
	appliedAt  time.Time
}

// NewHolder returns a holder at generation 1 serving cfg.
func NewHolder(cfg *Config) *Holder {
	return &Holder{cfg: cfg, generation: 1, appliedAt: time.Now()}
}

// Current returns the active configuration.
func (h *Holder) Current() *Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cfg
}

// Generation returns how many configurations the holder has served and when
// the current one was applied.
func (h *Holder) Generation() (uint64, time.Time) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.generation, h.appliedAt
}

// Swap installs cfg and returns the configuration it replaced along with
// the new generation. A nil cfg is ignored.
func (h *Holder) Swap(cfg *Config) (*Config, uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cfg == nil {
		return h.cfg, h.generation
	}
	prev := h.cfg
	h.cfg = cfg
	h.generation++
	h.appliedAt = time.Now()
	return prev, h.generation
}

// RestartRequired lists the settings that differ between prev and next but
// only take effect on restart. Tier limits are applied live and never
// appear here.
func RestartRequired(prev, next *Config) []string {
	if prev == nil || next == nil {
		return nil
	}

	var fields []string
	if prev.Server.ListenAddress != next.Server.ListenAddress {
		fields = append(fields, "server.listen_address")
	}
	if prev.Server.TLS != next.Server.TLS {
		fields = append(fields, "server.tls")
	}
	if !slices.Equal(prev.Server.CORSAllowedOrigins, next.Server.CORSAllowedOrigins) {
		fields = append(fields, "server.cors_allowed_origins")
	}
	if prev.Store.Backend != next.Store.Backend ||
		prev.Store.Redis.URL != next.Store.Redis.URL ||
		prev.Store.SQLite.Path != next.Store.SQLite.Path {
		fields = append(fields, "store")
	}
	if prev.Quota.Mode != next.Quota.Mode {
		fields = append(fields, "quota.mode")
	}
	if prev.Quota.UpgradeURL != next.Quota.UpgradeURL || prev.Quota.SignupURL != next.Quota.SignupURL {
		fields = append(fields, "quota.upgrade_url")
	}
	if prev.Throttle.Capacity != next.Throttle.Capacity ||
		prev.Throttle.RefillRate != next.Throttle.RefillRate {
		fields = append(fields, "throttle")
	}
	if prev.Upstream != next.Upstream {
		fields = append(fields, "upstream")
	}
	if prev.Admin != next.Admin {
		fields = append(fields, "admin")
	}
	return fields
}
