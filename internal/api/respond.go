package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/zombor/pantry-tracker/internal/category"
	"github.com/zombor/pantry-tracker/internal/pantry"
	"github.com/zombor/pantry-tracker/internal/receipt"
)

// writeJSON encodes v with the given status
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// jsonError writes an error body with CORS headers set
func jsonError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	writeJSON(w, code, map[string]string{"error": message})
}

// writeError maps service errors onto status codes
func writeError(w http.ResponseWriter, err error) {
	var cerr *category.ConfigurationError
	switch {
	case errors.As(err, &cerr),
		errors.Is(err, receipt.ErrInvalidCorrection),
		errors.Is(err, pantry.ErrInvalidQuantity):
		jsonError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, receipt.ErrNotFound),
		errors.Is(err, category.ErrNotFound),
		errors.Is(err, pantry.ErrNotFound),
		errors.Is(err, receipt.ErrInvalidFilename):
		jsonError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, receipt.ErrVersionConflict):
		jsonError(w, err.Error(), http.StatusConflict)
	default:
		slog.Error("Request failed", "error", err)
		jsonError(w, "Internal server error", http.StatusInternalServerError)
	}
}

// decodeBody decodes a JSON request body, answering 400 when it is malformed
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		jsonError(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}
