package handlers

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"

	"github.com/TeldridgeLDN/PE-Scanner-sub000/pkg/api/types"
	"github.com/TeldridgeLDN/PE-Scanner-sub000/pkg/config"
	"github.com/TeldridgeLDN/PE-Scanner-sub000/pkg/limits"
	"github.com/TeldridgeLDN/PE-Scanner-sub000/pkg/limits/throttle"
)

// UsageStore reads and resets quota counters.
type UsageStore interface {
	Usage(ctx context.Context, tier limits.Tier, identity string) (limits.Usage, error)
	Reset(ctx context.Context, tier limits.Tier, identity string) error
}

// ThrottleReporter reports upstream throttle state.
type ThrottleReporter interface {
	Stats(ctx context.Context) throttle.Stats
}

// AdminHandler serves the operational endpoints.
type AdminHandler struct {
	usage    UsageStore
	throttle ThrottleReporter
	token    []byte
	limiter  *rate.Limiter
	logger   *slog.Logger
}

// NewAdminHandler creates an admin handler. A non-positive request rate
// disables the rate guard.
func NewAdminHandler(cfg config.AdminConfig, usage UsageStore, thr ThrottleReporter, logger *slog.Logger) *AdminHandler {
	if logger == nil {
		logger = slog.Default()
	}

	h := &AdminHandler{
		usage:    usage,
		throttle: thr,
		token:    []byte(cfg.Token),
		logger:   logger,
	}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		h.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return h
}

// Routes returns the admin router, to be mounted at /admin.
func (h *AdminHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(h.guard)

	r.Get("/usage/{tier}/{identity}", h.getUsage)
	r.Delete("/usage/{tier}/{identity}", h.resetUsage)
	r.Get("/throttle", h.throttleStats)

	return r
}

// guard authenticates first. Only authorized requests draw from the rate
// budget.
func (h *AdminHandler) guard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.authorized(r) {
			h.logger.Warn("admin request rejected", "path", r.URL.Path, "remote_addr", r.RemoteAddr)
			w.Header().Set("WWW-Authenticate", `Bearer realm="admin"`)
			types.WriteError(w, http.StatusUnauthorized, types.ErrorUnauthorized, "A valid admin token is required")
			return
		}

		if h.limiter != nil && !h.limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			types.WriteError(w, http.StatusTooManyRequests, types.ErrorTooManyRequests, "Too many admin requests")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (h *AdminHandler) authorized(r *http.Request) bool {
	if len(h.token) == 0 {
		return false
	}

	const prefix = "Bearer "
	auth := r.Header.Get("Authorization")
	if len(auth) <= len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(auth[len(prefix):]), h.token) == 1
}

func (h *AdminHandler) getUsage(w http.ResponseWriter, r *http.Request) {
	tier, identity, ok := subjectParams(w, r)
	if !ok {
		return
	}

	usage, err := h.usage.Usage(r.Context(), tier, identity)
	if err != nil {
		h.writeStoreError(w, "usage lookup failed", err)
		return
	}

	types.WriteJSON(w, http.StatusOK, usage)
}

func (h *AdminHandler) resetUsage(w http.ResponseWriter, r *http.Request) {
	tier, identity, ok := subjectParams(w, r)
	if !ok {
		return
	}

	if err := h.usage.Reset(r.Context(), tier, identity); err != nil {
		h.writeStoreError(w, "usage reset failed", err)
		return
	}

	h.logger.Info("usage reset via admin", "tier", tier, "identity", identity)
	types.WriteJSON(w, http.StatusOK, map[string]any{
		"status":   "reset",
		"tier":     tier,
		"identity": identity,
	})
}

func (h *AdminHandler) throttleStats(w http.ResponseWriter, r *http.Request) {
	if h.throttle == nil {
		types.WriteError(w, http.StatusNotFound, types.ErrorNotFound, "Upstream throttle is not configured")
		return
	}
	types.WriteJSON(w, http.StatusOK, h.throttle.Stats(r.Context()))
}

func (h *AdminHandler) writeStoreError(w http.ResponseWriter, msg string, err error) {
	switch {
	case errors.Is(err, limits.ErrInvalidTier), errors.Is(err, limits.ErrInvalidIdentity):
		types.WriteError(w, http.StatusBadRequest, types.ErrorBadRequest, err.Error())
	case errors.Is(err, limits.ErrStoreUnavailable):
		h.logger.Error(msg, "error", err)
		types.WriteError(w, http.StatusServiceUnavailable, types.ErrorStoreUnavailable, "Quota store is unavailable")
	default:
		h.logger.Error(msg, "error", err)
		types.WriteJSON(w, http.StatusInternalServerError, types.NewInternalError())
	}
}

// subjectParams reads and unescapes the tier and identity path segments.
func subjectParams(w http.ResponseWriter, r *http.Request) (limits.Tier, string, bool) {
	rawTier, err1 := url.PathUnescape(chi.URLParam(r, "tier"))
	identity, err2 := url.PathUnescape(chi.URLParam(r, "identity"))
	if err1 != nil || err2 != nil {
		types.WriteError(w, http.StatusBadRequest, types.ErrorBadRequest, "Malformed path parameter")
		return "", "", false
	}

	tier := limits.Tier(strings.ToLower(strings.TrimSpace(rawTier)))
	return tier, strings.TrimSpace(identity), true
}
