package types

import (
	"encoding/json"
	"net/http"
	"time"
)

// Error codes.
const (
	ErrorRateLimitExceeded = "RateLimitExceeded"
	ErrorUpstreamBusy      = "UpstreamBusy"
	ErrorUpstreamFailed    = "UpstreamFailed"
	ErrorBadRequest        = "BadRequest"
	ErrorUnauthorized      = "Unauthorized"
	ErrorNotFound          = "NotFound"
	ErrorMethodNotAllowed  = "MethodNotAllowed"
	ErrorTooManyRequests   = "TooManyRequests"
	ErrorStoreUnavailable  = "StoreUnavailable"
	ErrorInternal          = "InternalError"
)

// ErrorResponse is the body of every non-quota error.
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// NewErrorResponse creates an error body stamped with the current time.
func NewErrorResponse(code, message string) *ErrorResponse {
	return &ErrorResponse{
		Error:     code,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
}

// NewUpstreamBusyError is returned when no upstream permit was granted in
// time. Clients should retry shortly.
func NewUpstreamBusyError() *ErrorResponse {
	return NewErrorResponse(ErrorUpstreamBusy,
		"Market data is in high demand right now. Please try again in a moment.")
}

// NewInternalError creates a 500 body that hides internal details.
func NewInternalError() *ErrorResponse {
	return NewErrorResponse(ErrorInternal, "An internal server error occurred")
}

// WriteJSON writes v as JSON with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes an ErrorResponse with the given status.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	WriteJSON(w, status, NewErrorResponse(code, message))
}
