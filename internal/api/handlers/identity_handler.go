package handlers

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"formsmith/internal/engine/identity"
	"formsmith/internal/pkg/errors"
)

// IdentityHandler ingests the identity provider's signed webhooks.
type IdentityHandler struct {
	verifier *identity.Verifier
	syncer   *identity.Syncer
}

// NewIdentityHandler accepts a nil verifier; the endpoint then answers 503.
func NewIdentityHandler(verifier *identity.Verifier, syncer *identity.Syncer) *IdentityHandler {
	return &IdentityHandler{verifier: verifier, syncer: syncer}
}

func (h *IdentityHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	if h.verifier == nil {
		errors.WriteError(w, http.StatusServiceUnavailable, errors.ErrCodeUnavailable, "Identity webhooks are not configured", nil)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Could not read body", nil)
		return
	}
	if err := h.verifier.Verify(r.Header, body); err != nil {
		status := http.StatusUnauthorized
		if stderrors.Is(err, identity.ErrMissingHeaders) {
			status = http.StatusBadRequest
		}
		log.Warn().Err(err).Msg("rejected identity webhook")
		errors.WriteError(w, status, errors.ErrCodeUnauthorized, err.Error(), nil)
		return
	}

	var event identity.Event
	if err := json.Unmarshal(body, &event); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid event payload", nil)
		return
	}
	if err := h.syncer.Apply(r.Context(), event); err != nil {
		errors.WriteDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}
