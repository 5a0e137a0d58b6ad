// Package health provides liveness, readiness and version endpoints.
//
// # Endpoints
//
//   - /health: Liveness probe. Always 200 while the process runs.
//   - /ready: Readiness probe. Runs the registered checks.
//   - /version: Build information.
//
// # Usage
//
//	checker := health.New(cfg.Telemetry.Health.CheckTimeout)
//	checker.RegisterCheck("store", store.Ping)
//	checker.Routes(router, health.VersionInfo{Version: version}, 10)
//
// # Degraded Readiness
//
// Checks are critical or non-critical. The shared store is non-critical:
// when it is down the quota engine fails open and the throttle runs on its
// local bucket, so /ready reports "degraded" with 200 and the instance
// stays in rotation. A failing critical check reports "unhealthy" with 503.
package health
