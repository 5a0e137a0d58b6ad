// Package limits provides the freemium quota and upstream throttling types
// shared by the quota engine, the upstream throttle and the HTTP layer.
//
// # Overview
//
// Two independent mechanisms live under this package:
//
//   - quota: per-identity daily request counters keyed by subscription tier
//   - throttle: one fleet-wide token bucket guarding calls to the market-data provider
//
// Both keep their state in a shared store (see the storage sub-package) so
// every service instance sees the same counters and the same bucket.
//
// # Architecture
//
// The package is organized into sub-packages:
//
//   - storage: Shared state backends (Redis, SQLite, memory)
//   - quota: Daily quota engine (check, record, usage, reset)
//   - throttle: Global token bucket with local fallback
//
// # Usage
//
//	store, _ := storage.Open(cfg.Store)
//	engine := quota.NewEngine(store, quota.TiersFromConfig(cfg.Quota))
//
//	result := engine.Check(ctx, limits.TierFree, "user:42")
//	if !result.Allowed {
//	    // reject with result.Message
//	}
//	// ... serve request ...
//	engine.Record(ctx, limits.TierFree, "user:42")
//
// # Failure Semantics
//
// A store outage never surfaces as an error on the hot path. The quota engine
// fails open and the throttle degrades to a process-local bucket. Both cases
// are logged and exported as metrics.
package limits
