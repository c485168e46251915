package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/kessl/chored/internal/chores"
	"github.com/kessl/chored/internal/storage"
)

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

// writeError maps core errors onto the HTTP surface: bad input is the
// caller's to fix (400), a missing task or user gets a friendly 404, and
// anything else is a server fault.
func writeError(w http.ResponseWriter, err error) {
	var verr *chores.ValidationError
	switch {
	case errors.As(err, &verr):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%s", verr.Error())
	case errors.Is(err, storage.ErrNotFound):
		httpError(w, http.StatusNotFound, "not_found", "%s", err.Error())
	default:
		httpError(w, http.StatusInternalServerError, "api_error", "%s", err.Error())
	}
}
