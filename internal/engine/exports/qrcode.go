package exports

import (
	"context"
	"fmt"
	"strings"

	"github.com/skip2/go-qrcode"

	apperrors "formsmith/internal/pkg/errors"
	"formsmith/internal/platform/models"
	"formsmith/internal/platform/repositories"
)

const defaultQRSize = 512

// PublicURL is where visitors fill in formID.
func (s *Service) PublicURL(formID string) string {
	return strings.TrimRight(s.cfg.PublicBaseURL, "/") + "/f/" + formID
}

// QRCode renders a PNG QR code pointing at the public URL of a published
// form. A zero size means 512 pixels.
func (s *Service) QRCode(ctx context.Context, formID, businessID string, size int) ([]byte, error) {
	if size == 0 {
		size = defaultQRSize
	}
	if size < 128 || size > 2048 {
		return nil, apperrors.NewValidationError("validation failed", map[string]string{"size": "must be between 128 and 2048"})
	}

	_, form, err := s.resolver.AuthorizeForm(ctx, repositories.NewFormRepository(s.db), formID, businessID)
	if err != nil {
		return nil, err
	}
	if form.Status != models.FormStatusPublished {
		return nil, apperrors.NewValidationError("validation failed", map[string]string{"status": "only published forms can be shared"})
	}

	qr, err := qrcode.New(s.PublicURL(form.ID), qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("encode qr code: %w", err)
	}
	return qr.PNG(size)
}
