package handler

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/casescope/hub/internal/middleware"
	"github.com/casescope/hub/internal/model"
	"github.com/casescope/hub/internal/service"
)

type AdminHandler struct {
	dir   *service.Directory
	audit service.SecurityLog
}

func NewAdminHandler(dir *service.Directory, audit service.SecurityLog) *AdminHandler {
	return &AdminHandler{dir: dir, audit: audit}
}

// POST /internal/sync
// Kicks a directory rebuild in the background. Overlapping triggers
// collapse into the run already in flight.
func (h *AdminHandler) ForceSync(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.TraceIDFromCtx(r.Context())
	h.audit.Record(r.Context(), service.AuditEvent{
		Type:    service.AuditForcedSync,
		Detail:  "manual sync trigger",
		TraceID: traceID,
	})

	go func() {
		stats, err := h.dir.Sync(context.Background())
		switch {
		case errors.Is(err, model.ErrSyncInProgress):
			// Collapsed into the running sync; nothing to do.
		case err != nil:
			log.Printf("forced sync failed: %v", err)
		case stats.Failed > 0:
			h.audit.Record(context.Background(), service.AuditEvent{
				Type:    service.AuditSyncPartial,
				Detail:  "some case rosters could not be fetched",
				TraceID: traceID,
			})
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]bool{"started": true})
}
