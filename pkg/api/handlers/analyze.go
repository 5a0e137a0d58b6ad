package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/TeldridgeLDN/PE-Scanner-sub000/pkg/api/middleware"
	"github.com/TeldridgeLDN/PE-Scanner-sub000/pkg/api/types"
	"github.com/TeldridgeLDN/PE-Scanner-sub000/pkg/limits"
	"github.com/TeldridgeLDN/PE-Scanner-sub000/pkg/upstream"
)

// StatusClientClosedRequest is logged when the caller went away before the
// upstream call finished.
const StatusClientClosedRequest = 499

// QuoteFetcher fetches market data for a symbol.
type QuoteFetcher interface {
	Quote(ctx context.Context, symbol string) (*upstream.Quote, error)
}

// QuotaInfo is the caller's quota state as reported with a response.
type QuotaInfo struct {
	Tier      limits.Tier `json:"tier"`
	Limit     int64       `json:"limit"`
	Remaining int64       `json:"remaining"`
	ResetAt   *time.Time  `json:"reset_at"`
}

// AnalyzeResponse is the body of a successful analyze call.
// DataComplete is false when the provider returned no price or no P/E;
// the quote's warnings say which.
type AnalyzeResponse struct {
	Ticker       string          `json:"ticker"`
	DataComplete bool            `json:"data_complete"`
	MarketData   *upstream.Quote `json:"market_data"`
	Quota        *QuotaInfo      `json:"quota,omitempty"`
}

// AnalyzeHandler serves GET /api/analyze/{ticker}.
type AnalyzeHandler struct {
	quotes QuoteFetcher
	logger *slog.Logger
}

// NewAnalyzeHandler creates an analyze handler.
func NewAnalyzeHandler(quotes QuoteFetcher, logger *slog.Logger) *AnalyzeHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AnalyzeHandler{quotes: quotes, logger: logger}
}

// ServeHTTP implements http.Handler.
func (h *AnalyzeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "ticker")

	quote, err := h.quotes.Quote(r.Context(), symbol)
	if err != nil {
		h.writeFetchError(w, r, symbol, err)
		return
	}

	resp := AnalyzeResponse{
		Ticker:       quote.Ticker,
		DataComplete: quote.Complete(),
		MarketData:   quote,
	}
	if !resp.DataComplete {
		h.logger.Info("incomplete market data",
			"ticker", quote.Ticker,
			"warnings", quote.Warnings,
		)
	}
	if result, ok := middleware.QuotaResultFromContext(r.Context()); ok {
		resp.Quota = &QuotaInfo{
			Tier:      result.Tier,
			Limit:     result.Limit,
			Remaining: result.Remaining,
			ResetAt:   result.ResetAt,
		}
	}

	types.WriteJSON(w, http.StatusOK, resp)
}

func (h *AnalyzeHandler) writeFetchError(w http.ResponseWriter, r *http.Request, symbol string, err error) {
	logger := h.logger.With("ticker", symbol, "error", err)

	switch {
	case errors.Is(err, upstream.ErrInvalidTicker):
		types.WriteError(w, http.StatusBadRequest, types.ErrorBadRequest, "Ticker symbol is not valid")

	case errors.Is(err, upstream.ErrTickerNotFound):
		types.WriteError(w, http.StatusNotFound, types.ErrorNotFound, "No market data found for ticker")

	case errors.Is(err, limits.ErrThrottleTimeout):
		logger.Warn("upstream permit not granted in time")
		w.Header().Set(middleware.HeaderRetryAfter, "1")
		types.WriteJSON(w, http.StatusServiceUnavailable, types.NewUpstreamBusyError())

	case r.Context().Err() != nil:
		logger.Debug("client went away during upstream fetch")
		w.WriteHeader(StatusClientClosedRequest)

	default:
		logger.Error("upstream fetch failed")
		types.WriteError(w, http.StatusBadGateway, types.ErrorUpstreamFailed, "Market data provider request failed")
	}
}
