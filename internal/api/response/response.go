// Package response writes the JSON bodies returned by the operator API.
// Successful responses are bare JSON values; errors are {"error": message}.
package response

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/kiranshivaraju/operator-service/internal/apperrors"
)

type errorBody struct {
	Error string `json:"error"`
}

// JSON writes v with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// OK writes v with status 200.
func OK(w http.ResponseWriter, v any) {
	JSON(w, http.StatusOK, v)
}

// Error writes {"error": message} with the given status.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, errorBody{Error: message})
}

// FromError maps err to a status code and writes it. Only the short message
// reaches the caller; the cause is logged.
func FromError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatus(err)
	message := err.Error()

	var appErr *apperrors.Error
	if !errors.As(err, &appErr) {
		message = "An unexpected error occurred"
	}

	if status >= 500 {
		slog.Error("Internal error", "error", apperrors.Detail(err), "path", r.URL.Path)
	} else {
		slog.Warn("Client error", "error", apperrors.Detail(err), "path", r.URL.Path, "status", status)
	}
	Error(w, status, message)
}
