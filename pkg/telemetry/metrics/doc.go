// Package metrics owns the Prometheus registry of the service and the
// HTTP-level collectors.
//
// # Overview
//
// A Collector creates one registry and registers three groups on it:
//
//   - Request metrics: inbound HTTP requests by route, method and status
//   - Upstream metrics: outbound market-data calls by outcome
//   - Limits metrics: quota and throttle decisions (see pkg/limits)
//
// plus the Go runtime and process collectors.
//
// # Usage
//
//	collector := metrics.NewCollector(cfg.Telemetry.Metrics, nil)
//
//	engine := quota.NewEngine(store, tiers, quota.WithMetrics(collector.Limits()))
//	router.Handle("/metrics", collector.Handler())
//
// # Cardinality Management
//
// Route labels come from the router's route pattern, never the raw path.
// Requests that matched no route are recorded as "other", and a
// CardinalityLimiter caps the number of distinct label sets.
//
// # Prometheus Endpoint
//
//	# HELP pescanner_http_requests_total Total number of HTTP requests served
//	# TYPE pescanner_http_requests_total counter
//	pescanner_http_requests_total{method="GET",route="/api/analyze/{ticker}",status="200"} 1234
package metrics
