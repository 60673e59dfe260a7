package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/cwbudde/vqafit/internal/store"
)

// writeJSON encodes v with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeError maps err to a status code and writes it as plain text.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	var cerr *store.CompatibilityError
	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.As(err, &cerr):
		status = http.StatusConflict
	}
	http.Error(w, err.Error(), status)
}
