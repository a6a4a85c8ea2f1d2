package handlers

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"formsmith/internal/engine/assistant"
	"formsmith/internal/pkg/errors"
)

type AssistantHandler struct {
	assistant *assistant.Service
}

func NewAssistantHandler(svc *assistant.Service) *AssistantHandler {
	return &AssistantHandler{assistant: svc}
}

func (h *AssistantHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.assistant.ListMessages(r.Context(), param(r, "form_id"), businessID(r))
	if err != nil {
		errors.WriteDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"messages": msgs})
}

func (h *AssistantHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content string `json:"content"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		errors.WriteDomainError(w, err)
		return
	}
	msg, err := h.assistant.PostMessage(r.Context(), param(r, "form_id"), businessID(r), req.Content)
	if err != nil {
		errors.WriteDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (h *AssistantHandler) ExecuteTool(w http.ResponseWriter, r *http.Request) {
	var call assistant.ToolCall
	if err := decodeJSON(w, r, &call); err != nil {
		errors.WriteDomainError(w, err)
		return
	}
	result, err := h.assistant.ExecuteTool(r.Context(), param(r, "form_id"), businessID(r), call)
	if err != nil {
		errors.WriteDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tool": call.Name, "result": result})
}

// Preflight answers OPTIONS /ai-stream; CORS headers are added by the
// outer middleware.
func (h *AssistantHandler) Preflight(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

// Stream writes the assistant's reply as plain text chunks, flushing after
// each one. Errors before the first chunk use the JSON error envelope.
func (h *AssistantHandler) Stream(w http.ResponseWriter, r *http.Request) {
	var req struct {
		StreamID string `json:"stream_id"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		errors.WriteDomainError(w, err)
		return
	}
	if req.StreamID == "" {
		errors.WriteDomainError(w, errors.NewValidationError("validation failed", map[string]string{"stream_id": "is required"}))
		return
	}

	flusher, _ := w.(http.Flusher)
	started := false
	_, err := h.assistant.Stream(r.Context(), req.StreamID, func(chunk string) error {
		if !started {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.Header().Set("Cache-Control", "no-cache")
			w.Header().Set("X-Accel-Buffering", "no")
			w.WriteHeader(http.StatusOK)
			started = true
		}
		if _, err := w.Write([]byte(chunk)); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	})
	if err != nil {
		if !started {
			errors.WriteDomainError(w, err)
			return
		}
		log.Warn().Err(err).Str("stream_id", req.StreamID).Msg("assistant stream interrupted")
		return
	}
	if !started {
		w.WriteHeader(http.StatusNoContent)
	}
}
