package api

import (
	"encoding/json"
	"net/http"

	"go.temporal.io/sdk/log"
)

// Stable machine readable error codes
const (
	CodeInvalidRequest    = "invalid_request"
	CodeInternal          = "internal_error"
	CodeUnauthorized      = "unauthorized"
	CodeForbidden         = "forbidden"
	CodeRateLimited       = "rate_limited"
	CodeInvalidTransition = "invalid_transition"
	CodeNotFound          = "not_found"
	CodeInProgress        = "checkout_in_progress"
)

// ErrorResponse is the body of every non-checkout error
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	RequestID string `json:"requestId"`
}

func respondJSON(w http.ResponseWriter, logger log.Logger, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Warn("Failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, r *http.Request, logger log.Logger, status int, code, message string) {
	respondJSON(w, logger, status, ErrorResponse{
		Error:     message,
		Code:      code,
		RequestID: RequestIDFrom(r.Context()),
	})
}
