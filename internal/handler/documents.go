package handler

import (
	"net/http"
	"strings"

	"github.com/casescope/hub/internal/middleware"
	"github.com/casescope/hub/internal/service"
)

type DocumentHandler struct {
	resolver *service.Resolver
}

func NewDocumentHandler(resolver *service.Resolver) *DocumentHandler {
	return &DocumentHandler{resolver: resolver}
}

// POST /v1/documents/resolve
func (h *DocumentHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	pr := middleware.PrincipalFromCtx(r.Context())
	if pr == nil {
		writeError(w, http.StatusUnauthorized, "E_UNAUTHORIZED", "not authenticated")
		return
	}

	var req struct {
		DisplayName string `json:"display_name"`
		PathHint    string `json:"path_hint"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "E_BAD_REQUEST", "invalid body")
		return
	}
	if strings.TrimSpace(req.DisplayName) == "" && strings.TrimSpace(req.PathHint) == "" {
		writeError(w, http.StatusBadRequest, "E_BAD_REQUEST", "display_name or path_hint is required")
		return
	}

	res, err := h.resolver.Resolve(r.Context(), req.DisplayName, req.PathHint, pr)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"path":       res.Path,
		"signed_url": res.Grant.SignedURL,
		"expires_at": res.Grant.ExpiresAt,
		"metadata":   res.Info,
	})
}
