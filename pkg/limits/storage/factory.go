package storage

import (
	"fmt"
	"os"
	"path/filepath"

	goredis "github.com/redis/go-redis/v9"

	"github.com/TeldridgeLDN/PE-Scanner-sub000/pkg/config"
)

// Open creates the backend selected by cfg.Backend.
//
// Open does not check connectivity: a Redis server that is down at startup
// is handled like any later outage, by the callers' degraded paths.
func Open(cfg config.StoreConfig) (Backend, error) {
	switch cfg.Backend {
	case config.StoreBackendRedis:
		opts, err := goredis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		opts.DialTimeout = cfg.Redis.DialTimeout
		opts.ReadTimeout = cfg.Redis.ReadTimeout
		opts.WriteTimeout = cfg.Redis.WriteTimeout
		if cfg.Redis.PoolSize > 0 {
			opts.PoolSize = cfg.Redis.PoolSize
		}
		return NewRedisBackend(goredis.NewClient(opts), WithKeyPrefix(cfg.Redis.KeyPrefix)), nil

	case config.StoreBackendSQLite:
		if dir := filepath.Dir(cfg.SQLite.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create sqlite directory: %w", err)
			}
		}
		return NewSQLiteBackendWithConfig(SQLiteBackendConfig{
			DBPath:      cfg.SQLite.Path,
			BusyTimeout: cfg.SQLite.BusyTimeout,
		})

	case config.StoreBackendMemory:
		return NewMemoryBackend(), nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
