package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/glr76/PlannyWeb/internal/export"
	"github.com/glr76/PlannyWeb/internal/store"
)

const (
	RequestIDHeader = "X-Request-Id"
	conflictMessage = "Git conflict: file updated by another commit. Reload and retry."
)

type contextKey string

const requestIDKey contextKey = "request_id"

type errorBody struct {
	OK        bool   `json:"ok"`
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

func RequestIDFromContext(ctx context.Context) (string, bool) {
	value, ok := ctx.Value(requestIDKey).(string)
	return value, ok
}

func NewRequestID() string {
	return uuid.NewString()
}

// statusFor maps an error from the store, auth or export layers to an
// HTTP status and the message shown to the client.
func statusFor(err error) (int, string) {
	var invalid *store.InvalidPathError
	var tooLarge *http.MaxBytesError
	switch {
	case err == nil:
		return http.StatusOK, ""
	case errors.As(err, &invalid):
		return http.StatusBadRequest, invalid.Error()
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge, "request body too large"
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict, conflictMessage
	case errors.Is(err, export.ErrMissingJSON), errors.Is(err, export.ErrMissingSheets):
		return http.StatusBadRequest, err.Error()
	default:
		return http.StatusInternalServerError, err.Error()
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := statusFor(err)
	writeErrorMessage(w, r, status, message)
}

func writeErrorMessage(w http.ResponseWriter, r *http.Request, status int, message string) {
	requestID, _ := RequestIDFromContext(r.Context())
	writeJSON(w, status, errorBody{OK: false, Error: message, RequestID: requestID})
}
