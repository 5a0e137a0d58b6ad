// Package middleware provides the HTTP middleware chain of the quota
// service.
//
// # Chain
//
// The server installs the middleware in this order, outermost first:
//
//	RequestID -> Logging -> Recovery -> Metrics -> CORS -> Quota (protected routes only)
//
// RequestID must run first so every later log line carries the request ID.
// Recovery sits inside Logging so a panicking request is still logged with
// its 500 status.
//
// # Quota
//
// Quota resolves the caller's subject, asks the quota engine for a decision
// and either rejects the request with 429 or serves it. Consumption is
// recorded only after the handler finishes with a status below 400 and the
// client is still connected, so failed or aborted requests never spend
// quota. Every response from a protected route carries the X-RateLimit-*
// headers.
//
// In reserve mode the unit is taken atomically on admission and handed back
// when the request fails, is cancelled or panics.
//
// Handlers read the decision with QuotaResultFromContext.
package middleware
