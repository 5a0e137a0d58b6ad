// Package storage provides the shared state backends used by the quota
// engine and the upstream throttle.
//
// # Overview
//
// Every service instance coordinates exclusively through a Backend. The
// interface exposes the small set of atomic primitives the limiters need:
//
//   - Counters with expiry (Get, Incr, IncrIfBelow, Decr, Delete)
//   - A token bucket updated by one atomic read-modify-write (TakeToken)
//
// Three implementations are provided:
//
//   - Redis: production backend shared by the whole fleet (Lua scripts)
//   - SQLite: single-host deployments, transactional
//   - Memory: process-local emulation with the same atomicity, for tests and development
//
// # Usage
//
//	backend, err := storage.Open(cfg.Store)
//	if err != nil {
//	    return err
//	}
//	defer backend.Close()
//
//	count, err := backend.Incr(ctx, "ratelimit:free:user:42:2025-01-15", 25*time.Hour)
//
// # Errors
//
// Backend failures are returned as *limits.StoreError, which matches
// limits.ErrStoreUnavailable. Callers on the request path are expected to
// degrade rather than propagate them.
//
// # Thread Safety
//
// All backends are safe for concurrent use. Atomicity across processes is
// provided by Redis scripts or SQLite transactions; the memory backend is
// only atomic within one process.
package storage
