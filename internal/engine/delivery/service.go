package delivery

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"

	"formsmith/internal/engine/permissions"
	apperrors "formsmith/internal/pkg/errors"
	"formsmith/internal/pkg/validator"
	"formsmith/internal/platform/models"
	"formsmith/internal/platform/repositories"
)

// Service manages a business's webhook and notification configuration.
// Reads need membership; changes need the admin role.
type Service struct {
	db         *sql.DB
	resolver   *permissions.Resolver
	dispatcher *Dispatcher
}

func NewService(db *sql.DB, resolver *permissions.Resolver, dispatcher *Dispatcher) *Service {
	return &Service{db: db, resolver: resolver, dispatcher: dispatcher}
}

type WebhookInput struct {
	URL     string  `json:"url" validate:"required,http_url,max=2048"`
	FormID  *string `json:"form_id"`
	Secret  string  `json:"secret" validate:"omitempty,min=8,max=256"`
	Enabled *bool   `json:"enabled"`
}

type NotificationInput struct {
	FormID     *string  `json:"form_id"`
	Recipients []string `json:"recipients" validate:"required,min=1,max=20,dive,email"`
	Enabled    *bool    `json:"enabled"`
}

func (s *Service) adminScope(ctx context.Context, businessID string) (*permissions.Scope, error) {
	scope, err := s.resolver.Authorize(ctx, businessID)
	if err != nil {
		return nil, err
	}
	if err := scope.RequireAdmin(); err != nil {
		return nil, err
	}
	return scope, nil
}

// checkFormScope verifies an optional form filter belongs to the business.
func (s *Service) checkFormScope(ctx context.Context, scope *permissions.Scope, formID *string) error {
	if formID == nil || *formID == "" {
		return nil
	}
	form, err := repositories.NewFormRepository(s.db).GetByID(ctx, *formID)
	if err != nil {
		return err
	}
	if form == nil || form.BusinessID != scope.BusinessID {
		return apperrors.NewValidationError("validation failed", map[string]string{"form_id": "unknown form"})
	}
	return nil
}

func (s *Service) CreateWebhook(ctx context.Context, businessID string, in WebhookInput) (*models.Webhook, error) {
	scope, err := s.adminScope(ctx, businessID)
	if err != nil {
		return nil, err
	}
	if err := validator.Struct(&in); err != nil {
		return nil, err
	}
	in.FormID = emptyToNil(in.FormID)
	if err := s.checkFormScope(ctx, scope, in.FormID); err != nil {
		return nil, err
	}

	secret := in.Secret
	if secret == "" {
		if secret, err = NewSecret(); err != nil {
			return nil, err
		}
	}
	w := &models.Webhook{
		BusinessID: scope.BusinessID,
		FormID:     in.FormID,
		URL:        in.URL,
		Secret:     secret,
		Enabled:    in.Enabled == nil || *in.Enabled,
	}
	if err := repositories.NewWebhookRepository(s.db).Create(ctx, w); err != nil {
		return nil, fmt.Errorf("create webhook: %w", err)
	}
	return w, nil
}

func (s *Service) ListWebhooks(ctx context.Context, businessID string) ([]*models.Webhook, error) {
	scope, err := s.resolver.Authorize(ctx, businessID)
	if err != nil {
		return nil, err
	}
	return repositories.NewWebhookRepository(s.db).ListByBusiness(ctx, scope.BusinessID)
}

func (s *Service) webhook(ctx context.Context, scope *permissions.Scope, id string) (*models.Webhook, error) {
	w, err := repositories.NewWebhookRepository(s.db).GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if w == nil || w.BusinessID != scope.BusinessID {
		return nil, apperrors.ErrNotFound
	}
	return w, nil
}

func (s *Service) UpdateWebhook(ctx context.Context, businessID, id string, in WebhookInput) (*models.Webhook, error) {
	scope, err := s.adminScope(ctx, businessID)
	if err != nil {
		return nil, err
	}
	w, err := s.webhook(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	if err := validator.Struct(&in); err != nil {
		return nil, err
	}
	in.FormID = emptyToNil(in.FormID)
	if err := s.checkFormScope(ctx, scope, in.FormID); err != nil {
		return nil, err
	}

	w.URL = in.URL
	w.FormID = in.FormID
	if in.Secret != "" {
		w.Secret = in.Secret
	}
	if in.Enabled != nil {
		w.Enabled = *in.Enabled
	}
	if err := repositories.NewWebhookRepository(s.db).Update(ctx, w); err != nil {
		return nil, fmt.Errorf("update webhook: %w", err)
	}
	return w, nil
}

func (s *Service) DeleteWebhook(ctx context.Context, businessID, id string) error {
	scope, err := s.adminScope(ctx, businessID)
	if err != nil {
		return err
	}
	if _, err := s.webhook(ctx, scope, id); err != nil {
		return err
	}
	return repositories.NewWebhookRepository(s.db).Delete(ctx, id)
}

// ListEntries returns the newest delivery attempts of a webhook.
func (s *Service) ListEntries(ctx context.Context, businessID, id string, limit int) ([]*models.WebhookEntry, error) {
	scope, err := s.resolver.Authorize(ctx, businessID)
	if err != nil {
		return nil, err
	}
	if _, err := s.webhook(ctx, scope, id); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return repositories.NewWebhookRepository(s.db).ListEntries(ctx, id, limit)
}

// TestWebhook delivers a sample event synchronously and returns the
// recorded attempt.
func (s *Service) TestWebhook(ctx context.Context, businessID, id string) (*models.WebhookEntry, error) {
	scope, err := s.adminScope(ctx, businessID)
	if err != nil {
		return nil, err
	}
	w, err := s.webhook(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	return s.dispatcher.Test(ctx, w)
}

func (s *Service) CreateNotification(ctx context.Context, businessID string, in NotificationInput) (*models.Notification, error) {
	scope, err := s.adminScope(ctx, businessID)
	if err != nil {
		return nil, err
	}
	if err := validator.Struct(&in); err != nil {
		return nil, err
	}
	in.FormID = emptyToNil(in.FormID)
	if err := s.checkFormScope(ctx, scope, in.FormID); err != nil {
		return nil, err
	}

	n := &models.Notification{
		BusinessID: scope.BusinessID,
		FormID:     in.FormID,
		Recipients: in.Recipients,
		Enabled:    in.Enabled == nil || *in.Enabled,
	}
	if err := repositories.NewNotificationRepository(s.db).Create(ctx, n); err != nil {
		return nil, fmt.Errorf("create notification: %w", err)
	}
	return n, nil
}

func (s *Service) ListNotifications(ctx context.Context, businessID string) ([]*models.Notification, error) {
	scope, err := s.resolver.Authorize(ctx, businessID)
	if err != nil {
		return nil, err
	}
	return repositories.NewNotificationRepository(s.db).ListByBusiness(ctx, scope.BusinessID)
}

func (s *Service) notification(ctx context.Context, scope *permissions.Scope, id string) (*models.Notification, error) {
	n, err := repositories.NewNotificationRepository(s.db).GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if n == nil || n.BusinessID != scope.BusinessID {
		return nil, apperrors.ErrNotFound
	}
	return n, nil
}

func (s *Service) UpdateNotification(ctx context.Context, businessID, id string, in NotificationInput) (*models.Notification, error) {
	scope, err := s.adminScope(ctx, businessID)
	if err != nil {
		return nil, err
	}
	n, err := s.notification(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	if err := validator.Struct(&in); err != nil {
		return nil, err
	}
	in.FormID = emptyToNil(in.FormID)
	if err := s.checkFormScope(ctx, scope, in.FormID); err != nil {
		return nil, err
	}

	n.FormID = in.FormID
	n.Recipients = in.Recipients
	if in.Enabled != nil {
		n.Enabled = *in.Enabled
	}
	if err := repositories.NewNotificationRepository(s.db).Update(ctx, n); err != nil {
		return nil, fmt.Errorf("update notification: %w", err)
	}
	return n, nil
}

func (s *Service) DeleteNotification(ctx context.Context, businessID, id string) error {
	scope, err := s.adminScope(ctx, businessID)
	if err != nil {
		return err
	}
	if _, err := s.notification(ctx, scope, id); err != nil {
		return err
	}
	return repositories.NewNotificationRepository(s.db).Delete(ctx, id)
}

// NewSecret returns 32 random bytes hex encoded.
func NewSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func emptyToNil(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}
