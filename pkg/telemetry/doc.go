// Package telemetry groups the observability packages of the PE Scanner
// service.
//
// # Components
//
//   - logging: structured slog logging with request context and redaction
//   - metrics: Prometheus collectors for HTTP traffic, quota decisions and upstream calls
//   - tracing: OpenTelemetry spans for inbound requests and provider calls
//   - health: liveness and readiness endpoints with registered checks
//
// # Redaction
//
// Log attributes are passed through the logging redactor, so bearer
// tokens, API keys and client IP addresses do not reach log sinks verbatim:
//
//   - API keys: sk-abc123 → sk-***
//   - Emails: user@example.com → u***@example.com
//   - IP addresses: 192.168.1.1 → 192.*.*.*
package telemetry
