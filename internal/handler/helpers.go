package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/casescope/hub/internal/model"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}

func decodeBody(r *http.Request, dst any) error {
	return json.NewDecoder(r.Body).Decode(dst)
}

// writeServiceError maps the service error taxonomy onto the HTTP
// envelope. Messages stay non-technical; the detail lives in the logs.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "E_UNAUTHORIZED", "invalid credentials")
	case model.IsForbidden(err):
		writeError(w, http.StatusForbidden, "E_FORBIDDEN", "you are not authorized to access this document")
	case errors.Is(err, model.ErrNotFound):
		writeError(w, http.StatusNotFound, "E_NOT_FOUND", "document not found")
	case errors.Is(err, model.ErrEngineTimeout):
		writeError(w, http.StatusGatewayTimeout, "E_ENGINE_TIMEOUT", "the assistant took too long to respond, please retry")
	case errors.Is(err, model.ErrEngineFailed):
		writeError(w, http.StatusBadGateway, "E_ENGINE_FAILED", "the assistant could not process this request")
	case errors.Is(err, model.ErrServiceUnavailable):
		writeError(w, http.StatusServiceUnavailable, "E_SERVICE_UNAVAILABLE", "a backing service is unavailable, please retry")
	default:
		writeError(w, http.StatusInternalServerError, "E_INTERNAL", "internal error")
	}
}
