// Package config provides configuration management for the PE Scanner quota
// service.
//
// This package handles loading, validating, and managing configuration from
// YAML files with environment variable overrides.
//
// # Configuration Loading
//
//	cfg, err := config.LoadConfig("config.yaml")
//	cfg, err := config.LoadConfigWithEnvOverrides("config.yaml")
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention PESCANNER_SECTION_FIELD:
//
//   - PESCANNER_STORE_BACKEND overrides store.backend
//   - PESCANNER_STORE_REDIS_URL overrides store.redis.url (REDIS_URL is also honoured)
//   - PESCANNER_QUOTA_TIERS_FREE_DAILY_LIMIT overrides quota.tiers.free.daily_limit
//   - PESCANNER_TELEMETRY_LOGGING_LEVEL overrides telemetry.logging.level
//
// .env.local and .env in the working directory are loaded first and never
// override variables already present in the environment.
//
// # Configuration Precedence
//
//  1. Default values (defined in defaults.go)
//  2. Values from YAML file
//  3. Environment variable overrides
//  4. Validation (fails fast if invalid)
//
// # Hot Reload
//
// Watcher reloads the file on change. Only settings that are safe to swap at
// runtime (the quota tier table) are applied by the server; the rest take
// effect on restart.
package config
