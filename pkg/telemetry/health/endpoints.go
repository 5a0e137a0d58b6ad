package health

import (
	"encoding/json"
	"net/http"
	"runtime"

	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"
)

// VersionInfo contains build and version information.
type VersionInfo struct {
	// Version is the semantic version (e.g., "1.0.0")
	Version string `json:"version"`

	// Commit is the git commit hash
	Commit string `json:"commit"`

	// BuildTime is when the binary was built
	BuildTime string `json:"build_time"`

	// GoVersion is the Go version used to build
	GoVersion string `json:"go_version"`
}

// LivenessHandler returns the /health handler.
//
// Example response:
//
//	{
//	    "status": "ok",
//	    "timestamp": "2025-01-15T10:30:00Z"
//	}
func (c *Checker) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, r, http.StatusOK, c.CheckLiveness(r.Context()))
	}
}

// ReadinessHandler returns the /ready handler.
//
// Returns:
//   - 200 OK: ready, or degraded with only non-critical checks failing
//   - 503 Service Unavailable: a critical check failed
//
// Example response (store down):
//
//	{
//	    "status": "degraded",
//	    "checks": {
//	        "store": {"status": "unhealthy", "message": "store ping: connection refused", "critical": false, "duration_ms": 1.2}
//	    },
//	    "timestamp": "2025-01-15T10:30:00Z"
//	}
func (c *Checker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := c.CheckReadiness(r.Context())

		code := http.StatusOK
		if !status.Serving() {
			code = http.StatusServiceUnavailable
		}
		writeStatus(w, r, code, status)
	}
}

// VersionHandler returns the /version handler.
func VersionHandler(version, commit, buildTime string) http.HandlerFunc {
	info := VersionInfo{
		Version:   version,
		Commit:    commit,
		BuildTime: buildTime,
		GoVersion: runtime.Version(),
	}

	return func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, r, http.StatusOK, info)
	}
}

// Routes mounts /health, /ready and /version on r. Each endpoint answers
// GET and HEAD. When requestsPerSecond is positive the probes share one
// limiter.
func (c *Checker) Routes(r chi.Router, info VersionInfo, requestsPerSecond float64) {
	wrap := func(h http.HandlerFunc) http.HandlerFunc { return h }
	if requestsPerSecond > 0 {
		limiter := rate.NewLimiter(rate.Limit(requestsPerSecond), int(requestsPerSecond)+1)
		wrap = func(h http.HandlerFunc) http.HandlerFunc {
			return RateLimitedHandler(h, limiter)
		}
	}

	for path, h := range map[string]http.HandlerFunc{
		"/health":  c.LivenessHandler(),
		"/ready":   c.ReadinessHandler(),
		"/version": VersionHandler(info.Version, info.Commit, info.BuildTime),
	} {
		r.Get(path, wrap(h))
		r.Head(path, wrap(h))
	}
}

// RateLimitedHandler rejects requests with 429 once limiter is exhausted.
func RateLimitedHandler(handler http.HandlerFunc, limiter *rate.Limiter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			http.Error(w, "Too many requests", http.StatusTooManyRequests)
			return
		}
		handler(w, r)
	}
}

func writeStatus(w http.ResponseWriter, r *http.Request, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)

	if r.Method != http.MethodHead {
		_ = json.NewEncoder(w).Encode(body)
	}
}
