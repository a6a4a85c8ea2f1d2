package handlers

import (
	"net/http"

	"formsmith/internal/engine/delivery"
	"formsmith/internal/pkg/errors"
)

// DeliveryHandler manages webhook and email notification configs. All
// routes are admin-only.
type DeliveryHandler struct {
	delivery *delivery.Service
}

func NewDeliveryHandler(svc *delivery.Service) *DeliveryHandler {
	return &DeliveryHandler{delivery: svc}
}

func (h *DeliveryHandler) CreateWebhook(w http.ResponseWriter, r *http.Request) {
	var req delivery.WebhookInput
	if err := decodeJSON(w, r, &req); err != nil {
		errors.WriteDomainError(w, err)
		return
	}
	hook, err := h.delivery.CreateWebhook(r.Context(), businessID(r), req)
	if err != nil {
		errors.WriteDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, hook)
}

func (h *DeliveryHandler) ListWebhooks(w http.ResponseWriter, r *http.Request) {
	hooks, err := h.delivery.ListWebhooks(r.Context(), businessID(r))
	if err != nil {
		errors.WriteDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"webhooks": hooks})
}

func (h *DeliveryHandler) UpdateWebhook(w http.ResponseWriter, r *http.Request) {
	var req delivery.WebhookInput
	if err := decodeJSON(w, r, &req); err != nil {
		errors.WriteDomainError(w, err)
		return
	}
	hook, err := h.delivery.UpdateWebhook(r.Context(), businessID(r), param(r, "webhook_id"), req)
	if err != nil {
		errors.WriteDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, hook)
}

func (h *DeliveryHandler) DeleteWebhook(w http.ResponseWriter, r *http.Request) {
	if err := h.delivery.DeleteWebhook(r.Context(), businessID(r), param(r, "webhook_id")); err != nil {
		errors.WriteDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *DeliveryHandler) ListEntries(w http.ResponseWriter, r *http.Request) {
	entries, err := h.delivery.ListEntries(r.Context(), businessID(r), param(r, "webhook_id"), queryInt(r, "limit"))
	if err != nil {
		errors.WriteDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}

// TestWebhook delivers a sample payload synchronously and returns the
// resulting entry, failed or not.
func (h *DeliveryHandler) TestWebhook(w http.ResponseWriter, r *http.Request) {
	entry, err := h.delivery.TestWebhook(r.Context(), businessID(r), param(r, "webhook_id"))
	if err != nil {
		errors.WriteDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *DeliveryHandler) CreateNotification(w http.ResponseWriter, r *http.Request) {
	var req delivery.NotificationInput
	if err := decodeJSON(w, r, &req); err != nil {
		errors.WriteDomainError(w, err)
		return
	}
	n, err := h.delivery.CreateNotification(r.Context(), businessID(r), req)
	if err != nil {
		errors.WriteDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, n)
}

func (h *DeliveryHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	list, err := h.delivery.ListNotifications(r.Context(), businessID(r))
	if err != nil {
		errors.WriteDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"notifications": list})
}

func (h *DeliveryHandler) UpdateNotification(w http.ResponseWriter, r *http.Request) {
	var req delivery.NotificationInput
	if err := decodeJSON(w, r, &req); err != nil {
		errors.WriteDomainError(w, err)
		return
	}
	n, err := h.delivery.UpdateNotification(r.Context(), businessID(r), param(r, "notification_id"), req)
	if err != nil {
		errors.WriteDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (h *DeliveryHandler) DeleteNotification(w http.ResponseWriter, r *http.Request) {
	if err := h.delivery.DeleteNotification(r.Context(), businessID(r), param(r, "notification_id")); err != nil {
		errors.WriteDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
