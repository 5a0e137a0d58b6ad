// Package logging configures the service's log/slog logger.
//
// # Overview
//
// New returns a *slog.Logger whose handler:
//   - writes JSON or text at the configured level
//   - adds request-scoped fields (request_id, tier, identity) from the context
//   - redacts IP addresses, email addresses and secrets when RedactPII is on
//
// Anonymous callers are identified by IP address, so with redaction off
// their identities reach the logs in clear.
//
// # Usage
//
//	logger, err := logging.New(logging.Config{
//	    Level:     "info",
//	    Format:    "json",
//	    RedactPII: true,
//	})
//	slog.SetDefault(logger)
//
//	ctx = logging.WithRequestID(ctx, "req-123")
//	logger.InfoContext(ctx, "quota exceeded", "identity", "ip:203.0.113.7")
//	// {"msg":"quota exceeded","request_id":"req-123","identity":"ip:203.*.*.*"}
//
// # PII Redaction
//
//   - IPv4: 203.0.113.7 → 203.*.*.*
//   - IPv6: 2001:db8::1 → 2001:*
//   - Emails: user@example.com → u***@example.com
//   - Bearer tokens: Bearer abc… → Bearer ***
//   - Values of keys like "token", "password", "authorization" → abcd***
package logging
