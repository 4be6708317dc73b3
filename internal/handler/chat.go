package handler

import (
	"net/http"
	"strings"

	"github.com/casescope/hub/internal/middleware"
	"github.com/casescope/hub/internal/service"
)

type ChatHandler struct {
	pipeline *service.Pipeline
}

func NewChatHandler(pipeline *service.Pipeline) *ChatHandler {
	return &ChatHandler{pipeline: pipeline}
}

// POST /v1/chat
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	pr := middleware.PrincipalFromCtx(r.Context())
	if pr == nil {
		writeError(w, http.StatusUnauthorized, "E_UNAUTHORIZED", "not authenticated")
		return
	}

	var req struct {
		Message     string `json:"message"`
		ClearThread bool   `json:"clear_thread"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "E_BAD_REQUEST", "invalid body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "E_BAD_REQUEST", "message is required")
		return
	}

	if req.ClearThread {
		if _, err := h.pipeline.ClearThread(r.Context(), pr); err != nil {
			writeServiceError(w, err)
			return
		}
	}

	answer, err := h.pipeline.Answer(r.Context(), req.Message, pr)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

// DELETE /v1/chat
func (h *ChatHandler) Clear(w http.ResponseWriter, r *http.Request) {
	pr := middleware.PrincipalFromCtx(r.Context())
	if pr == nil {
		writeError(w, http.StatusUnauthorized, "E_UNAUTHORIZED", "not authenticated")
		return
	}
	existed, err := h.pipeline.ClearThread(r.Context(), pr)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"cleared": existed})
}
