package handlers

import (
	"net/http"

	"formsmith/internal/engine/history"
	"formsmith/internal/pkg/errors"
)

type HistoryHandler struct {
	reader   *history.Reader
	restorer *history.Restorer
}

func NewHistoryHandler(reader *history.Reader, restorer *history.Restorer) *HistoryHandler {
	return &HistoryHandler{reader: reader, restorer: restorer}
}

func (h *HistoryHandler) List(w http.ResponseWriter, r *http.Request) {
	page, err := h.reader.List(r.Context(), param(r, "form_id"), businessID(r), r.URL.Query().Get("cursor"), queryInt(r, "limit"))
	if err != nil {
		errors.WriteDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// Restore undoes one history entry. 204 means there was nothing left to
// undo.
func (h *HistoryHandler) Restore(w http.ResponseWriter, r *http.Request) {
	entry, err := h.restorer.Restore(r.Context(), param(r, "history_id"), businessID(r))
	if err != nil {
		errors.WriteDomainError(w, err)
		return
	}
	if entry == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}
