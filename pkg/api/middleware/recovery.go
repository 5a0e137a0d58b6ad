package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/TeldridgeLDN/PE-Scanner-sub000/pkg/api/types"
)

// Recovery recovers from panics in handlers and answers 500 with a generic
// error body. The panic and its stack are logged; nothing internal reaches
// the client. http.ErrAbortHandler is re-raised so the server aborts the
// connection as intended.
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rw := newResponseWriter(w)

			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				logger.ErrorContext(r.Context(), "panic in handler",
					"error", rec,
					"method", r.Method,
					"path", r.URL.Path,
					"stack", string(debug.Stack()),
				)

				// Too late for a clean error body once headers are out.
				if rw.written {
					return
				}
				types.WriteJSON(rw, http.StatusInternalServerError, types.NewInternalError())
			}()

			next.ServeHTTP(rw, r)
		})
	}
}
