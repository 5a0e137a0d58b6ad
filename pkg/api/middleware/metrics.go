package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/TeldridgeLDN/PE-Scanner-sub000/pkg/telemetry/metrics"
)

// Metrics records request count and latency per matched chi route pattern.
// Unmatched paths are recorded under the "other" route so probing clients
// cannot inflate label cardinality.
func Metrics(collector *metrics.Collector) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if collector == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := newResponseWriter(w)

			next.ServeHTTP(rw, r)

			route := ""
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				route = rctx.RoutePattern()
			}
			collector.RecordRequest(route, r.Method, rw.statusCode, time.Since(start))
		})
	}
}
