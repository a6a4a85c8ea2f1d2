package permissions

import (
	apperrors "formsmith/internal/pkg/errors"
	"formsmith/internal/platform/models"
)

// Scope is the authorization result for one call: who is acting and for
// which business. Membership is nil for personal accounts.
type Scope struct {
	Identity   Identity
	BusinessID string
	Membership *models.Membership

	admin bool
}

func (s *Scope) UserID() string {
	return s.Identity.UserID
}

func (s *Scope) IsPersonal() bool {
	return s.Membership == nil
}

func (s *Scope) IsAdmin() bool {
	return s.admin
}

// RequireAdmin fails with ErrForbidden unless the scope carries the
// elevated role.
func (s *Scope) RequireAdmin() error {
	if !s.admin {
		return apperrors.ErrForbidden
	}
	return nil
}
