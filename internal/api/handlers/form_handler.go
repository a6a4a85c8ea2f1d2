package handlers

import (
	"net/http"

	"formsmith/internal/engine/forms"
	"formsmith/internal/pkg/errors"
	"formsmith/internal/platform/models"
)

type FormHandler struct {
	forms *forms.Service
}

func NewFormHandler(formsSvc *forms.Service) *FormHandler {
	return &FormHandler{forms: formsSvc}
}

func (h *FormHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req forms.CreateFormInput
	if err := decodeJSON(w, r, &req); err != nil {
		errors.WriteDomainError(w, err)
		return
	}
	form, err := h.forms.CreateForm(r.Context(), businessID(r), req)
	if err != nil {
		errors.WriteDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, form)
}

func (h *FormHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.forms.ListForms(r.Context(), businessID(r), models.FormStatus(r.URL.Query().Get("status")))
	if err != nil {
		errors.WriteDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"forms": list})
}

func (h *FormHandler) Get(w http.ResponseWriter, r *http.Request) {
	form, err := h.forms.GetForm(r.Context(), param(r, "form_id"), businessID(r))
	if err != nil {
		errors.WriteDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, form)
}

func (h *FormHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req forms.UpdateFormInput
	if err := decodeJSON(w, r, &req); err != nil {
		errors.WriteDomainError(w, err)
		return
	}
	form, err := h.forms.UpdateForm(r.Context(), param(r, "form_id"), businessID(r), req)
	if err != nil {
		errors.WriteDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, form)
}

func (h *FormHandler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status models.FormStatus `json:"status"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		errors.WriteDomainError(w, err)
		return
	}
	form, err := h.forms.ChangeStatus(r.Context(), param(r, "form_id"), businessID(r), req.Status)
	if err != nil {
		errors.WriteDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, form)
}

func (h *FormHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.forms.DeleteForm(r.Context(), param(r, "form_id"), businessID(r)); err != nil {
		errors.WriteDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *FormHandler) SetTags(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TagIDs []string `json:"tag_ids"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		errors.WriteDomainError(w, err)
		return
	}
	tags, err := h.forms.SetFormTags(r.Context(), param(r, "form_id"), businessID(r), req.TagIDs)
	if err != nil {
		errors.WriteDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tags": tags})
}

func (h *FormHandler) CreateField(w http.ResponseWriter, r *http.Request) {
	var req forms.CreateFieldInput
	if err := decodeJSON(w, r, &req); err != nil {
		errors.WriteDomainError(w, err)
		return
	}
	field, err := h.forms.CreateField(r.Context(), param(r, "form_id"), businessID(r), req)
	if err != nil {
		errors.WriteDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, field)
}

func (h *FormHandler) UpdateField(w http.ResponseWriter, r *http.Request) {
	var req forms.UpdateFieldInput
	if err := decodeJSON(w, r, &req); err != nil {
		errors.WriteDomainError(w, err)
		return
	}
	field, err := h.forms.UpdateField(r.Context(), param(r, "form_id"), param(r, "field_id"), businessID(r), req)
	if err != nil {
		errors.WriteDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, field)
}

func (h *FormHandler) DeleteField(w http.ResponseWriter, r *http.Request) {
	if err := h.forms.DeleteField(r.Context(), param(r, "form_id"), param(r, "field_id"), businessID(r)); err != nil {
		errors.WriteDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *FormHandler) ReorderFields(w http.ResponseWriter, r *http.Request) {
	var req forms.ReorderInput
	if err := decodeJSON(w, r, &req); err != nil {
		errors.WriteDomainError(w, err)
		return
	}
	version, err := h.forms.ReorderFields(r.Context(), param(r, "form_id"), businessID(r), req)
	if err != nil {
		errors.WriteDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"version": version})
}

func (h *FormHandler) CreateTag(w http.ResponseWriter, r *http.Request) {
	var req forms.TagInput
	if err := decodeJSON(w, r, &req); err != nil {
		errors.WriteDomainError(w, err)
		return
	}
	tag, err := h.forms.CreateTag(r.Context(), businessID(r), req)
	if err != nil {
		errors.WriteDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tag)
}

func (h *FormHandler) ListTags(w http.ResponseWriter, r *http.Request) {
	tags, err := h.forms.ListTags(r.Context(), businessID(r))
	if err != nil {
		errors.WriteDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tags": tags})
}

func (h *FormHandler) DeleteTag(w http.ResponseWriter, r *http.Request) {
	if err := h.forms.DeleteTag(r.Context(), businessID(r), param(r, "tag_id")); err != nil {
		errors.WriteDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
