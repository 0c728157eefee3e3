package handler

// Response helpers shared by all handlers. Every error response has the same
// shape:
//
//	{"error": "validation_error", "message": "...", "detail": "..."}
//
// "detail" duplicates "message" for compatibility with the original API,
// whose clients read the human-readable text from that field.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/bell-ha/artist-promotion-platform/internal/apperror"
)

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`   // machine-readable error type (e.g. "validation_error")
	Message string `json:"message"` // human-readable description
	Detail  string `json:"detail"`  // same text under the original API's field name
}

// writeJSON sends a JSON response with the given status code. Headers must be
// set before the first body write.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent; all we can do is log.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps a domain error to an HTTP status and sends it. The mapping
// lives here so the service layer never knows about HTTP codes.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		status := http.StatusInternalServerError
		errorType := "internal_error"

		switch {
		case errors.Is(err, apperror.ErrValidation):
			status = http.StatusBadRequest
			errorType = "validation_error"
		case errors.Is(err, apperror.ErrVerificationFailed):
			// Expected, retryable: the client distinguishes it from a
			// transport fault.
			status = http.StatusBadRequest
			errorType = "verification_failed"
		case errors.Is(err, apperror.ErrPrecondition):
			status = http.StatusConflict
			errorType = "precondition_failed"
		case errors.Is(err, apperror.ErrNotFound):
			status = http.StatusNotFound
			errorType = "not_found"
		case errors.Is(err, apperror.ErrForbidden):
			status = http.StatusForbidden
			errorType = "forbidden"
		case errors.Is(err, apperror.ErrConflict):
			status = http.StatusConflict
			errorType = "conflict"
		}

		writeJSON(w, status, ErrorResponse{
			Error:   errorType,
			Message: appErr.Message,
			Detail:  appErr.Message,
		})
		return
	}

	// Unknown error — never expose internals to the client.
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "An internal error occurred",
		Detail:  "An internal error occurred",
	})
}
