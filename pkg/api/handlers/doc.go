// Package handlers implements the HTTP endpoints served behind the quota
// middleware and the operational admin routes.
//
// AnalyzeHandler serves GET /api/analyze/{ticker}. It fetches market data
// through the throttled upstream client and reports the caller's quota
// alongside the result. A throttle timeout maps to 503 UpstreamBusy with
// Retry-After: 1, distinct from the 429 a quota rejection produces.
//
// AdminHandler serves /admin/usage/{tier}/{identity} (GET and DELETE) and
// /admin/throttle. It is guarded by a bearer token and a process-wide
// request rate.
package handlers
