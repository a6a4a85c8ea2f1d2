package handlers

import (
	"net/http"

	"formsmith/internal/engine/forms"
	"formsmith/internal/pkg/errors"
	"formsmith/internal/platform/models"
)

type SubmissionHandler struct {
	forms *forms.Service
}

func NewSubmissionHandler(formsSvc *forms.Service) *SubmissionHandler {
	return &SubmissionHandler{forms: formsSvc}
}

// PublicForm serves a published form to anonymous visitors.
func (h *SubmissionHandler) PublicForm(w http.ResponseWriter, r *http.Request) {
	form, err := h.forms.PublicForm(r.Context(), param(r, "form_id"))
	if err != nil {
		errors.WriteDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, form)
}

func (h *SubmissionHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Data map[string]models.SubmissionValue `json:"data"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		errors.WriteDomainError(w, err)
		return
	}
	sub, err := h.forms.Submit(r.Context(), param(r, "form_id"), req.Data)
	if err != nil {
		errors.WriteDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

func (h *SubmissionHandler) List(w http.ResponseWriter, r *http.Request) {
	page, err := h.forms.ListSubmissions(r.Context(), param(r, "form_id"), businessID(r), r.URL.Query().Get("cursor"), queryInt(r, "limit"))
	if err != nil {
		errors.WriteDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *SubmissionHandler) Get(w http.ResponseWriter, r *http.Request) {
	sub, err := h.forms.GetSubmission(r.Context(), param(r, "form_id"), param(r, "submission_id"), businessID(r))
	if err != nil {
		errors.WriteDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (h *SubmissionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.forms.DeleteSubmission(r.Context(), param(r, "form_id"), param(r, "submission_id"), businessID(r)); err != nil {
		errors.WriteDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
