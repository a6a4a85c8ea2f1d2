package handlers

import (
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"formsmith/internal/engine/exports"
	"formsmith/internal/pkg/errors"
)

type ExportHandler struct {
	exports *exports.Service
}

func NewExportHandler(svc *exports.Service) *ExportHandler {
	return &ExportHandler{exports: svc}
}

func (h *ExportHandler) IssueToken(w http.ResponseWriter, r *http.Request) {
	token, err := h.exports.IssueToken(r.Context(), param(r, "form_id"), businessID(r))
	if err != nil {
		errors.WriteDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, token)
}

// Download redeems ?token= and streams the form's submissions as CSV. The
// token is the only credential on this route.
func (h *ExportHandler) Download(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		errors.WriteError(w, http.StatusUnauthorized, errors.ErrCodeUnauthorized, "Missing export token", nil)
		return
	}
	d, err := h.exports.Redeem(r.Context(), token)
	if err != nil {
		errors.WriteDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", d.Filename()))
	w.Header().Set("Cache-Control", "no-store")
	if err := h.exports.WriteCSV(r.Context(), d, w); err != nil {
		// Headers are gone; the client sees a truncated file.
		log.Error().Err(err).Str("form_id", d.Form.ID).Msg("csv export failed")
	}
}

// QRCode serves a PNG QR code for the form's public URL; ?size= sets the
// edge length in pixels.
func (h *ExportHandler) QRCode(w http.ResponseWriter, r *http.Request) {
	png, err := h.exports.QRCode(r.Context(), param(r, "form_id"), businessID(r), queryInt(r, "size"))
	if err != nil {
		errors.WriteDomainError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.Write(png)
}
