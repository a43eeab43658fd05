package player

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
)

// ErrorResponse mirrors the error body of the SoundCloud API so clients can
// treat local and upstream failures alike.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// writeJSONError writes a JSON error response with the given status code.
// Encoding failures are logged; headers are already sent at that point.
func writeJSONError(ctx context.Context, w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(ErrorResponse{Code: status, Message: message}); err != nil {
		slog.ErrorContext(ctx, "failed to encode JSON response", "error", err)
	}
}
