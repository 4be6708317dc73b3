package handler

import (
	"net/http"
	"time"

	"github.com/casescope/hub/internal/service"
)

type HealthHandler struct {
	version string
	dir     *service.Directory
	threads *service.ThreadManager
}

func NewHealthHandler(version string, dir *service.Directory, threads *service.ThreadManager) *HealthHandler {
	return &HealthHandler{version: version, dir: dir, threads: threads}
}

// GET /v1/health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	lastSync := ""
	if t := h.dir.LastSync(); !t.IsZero() {
		lastSync = t.Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"version":        h.version,
		"directory_size": h.dir.Size(),
		"case_count":     h.dir.CaseCount(),
		"last_sync":      lastSync,
		"active_threads": h.threads.ActiveThreads(r.Context()),
	})
}

// GET /v1/version
func (h *HealthHandler) Version(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": h.version})
}
