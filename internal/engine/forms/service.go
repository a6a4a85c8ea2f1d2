// Package forms owns forms, their fields, tags and submissions. Every
// change to a form or its fields is recorded in the edit history in the
// same transaction.
package forms

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"formsmith/internal/engine/events"
	"formsmith/internal/engine/history"
	"formsmith/internal/engine/permissions"
	apperrors "formsmith/internal/pkg/errors"
	"formsmith/internal/pkg/validator"
	"formsmith/internal/platform/database"
	"formsmith/internal/platform/models"
	"formsmith/internal/platform/repositories"
)

type Service struct {
	db        *sql.DB
	resolver  *permissions.Resolver
	publisher events.Publisher
	fields    *FieldCache
}

func NewService(db *sql.DB, resolver *permissions.Resolver, publisher events.Publisher) *Service {
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &Service{db: db, resolver: resolver, publisher: publisher, fields: NewFieldCache(fieldCacheTTL)}
}

type CreateFormInput struct {
	Title          string   `json:"title" validate:"required,max=200"`
	Description    string   `json:"description" validate:"max=2000"`
	SuccessMessage string   `json:"success_message" validate:"max=2000"`
	TagIDs         []string `json:"tag_ids" validate:"max=20"`
}

// UpdateFormInput changes only the attributes that are set.
type UpdateFormInput struct {
	Title          *string `json:"title" validate:"omitempty,max=200"`
	Description    *string `json:"description" validate:"omitempty,max=2000"`
	SuccessMessage *string `json:"success_message" validate:"omitempty,max=2000"`
}

// authorizeForm loads formID for a caller acting as businessID.
func (s *Service) authorizeForm(ctx context.Context, formID, businessID string) (*permissions.Scope, *models.Form, error) {
	return s.resolver.AuthorizeForm(ctx, repositories.NewFormRepository(s.db), formID, businessID)
}

func (s *Service) CreateForm(ctx context.Context, businessID string, in CreateFormInput) (*models.Form, error) {
	scope, err := s.resolver.Authorize(ctx, businessID)
	if err != nil {
		return nil, err
	}
	in.Title = strings.TrimSpace(in.Title)
	if err := validator.Struct(&in); err != nil {
		return nil, err
	}

	form := &models.Form{
		BusinessID:     scope.BusinessID,
		Title:          in.Title,
		Description:    in.Description,
		SuccessMessage: in.SuccessMessage,
		Status:         models.FormStatusDraft,
	}

	err = database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := repositories.NewFormRepository(tx).Create(ctx, form); err != nil {
			return fmt.Errorf("create form: %w", err)
		}
		if len(in.TagIDs) > 0 {
			if err := setTags(ctx, tx, scope.BusinessID, form.ID, in.TagIDs); err != nil {
				return err
			}
		}
		_, err := history.Record(ctx, tx, form.ID, scope.UserID(), &history.FormCreatedDetails{Title: form.Title})
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("form_id", form.ID).Str("business_id", form.BusinessID).Msg("form created")
	return s.hydrate(ctx, form)
}

// ListForms returns the business's forms newest first, optionally filtered
// by status.
func (s *Service) ListForms(ctx context.Context, businessID string, status models.FormStatus) ([]*models.Form, error) {
	scope, err := s.resolver.Authorize(ctx, businessID)
	if err != nil {
		return nil, err
	}
	if status != "" && !status.Valid() {
		return nil, apperrors.NewValidationError("validation failed", map[string]string{"status": "must be one of: draft published archived"})
	}

	forms, err := repositories.NewFormRepository(s.db).ListByBusiness(ctx, scope.BusinessID, status)
	if err != nil {
		return nil, fmt.Errorf("list forms: %w", err)
	}
	tags := repositories.NewTagRepository(s.db)
	for _, f := range forms {
		if f.Tags, err = tags.ListByForm(ctx, f.ID); err != nil {
			return nil, fmt.Errorf("list form tags: %w", err)
		}
	}
	return forms, nil
}

// GetForm returns the form with its fields in order and its tags.
func (s *Service) GetForm(ctx context.Context, formID, businessID string) (*models.Form, error) {
	_, form, err := s.authorizeForm(ctx, formID, businessID)
	if err != nil {
		return nil, err
	}
	return s.hydrate(ctx, form)
}

func (s *Service) hydrate(ctx context.Context, form *models.Form) (*models.Form, error) {
	var err error
	if form.Fields, err = repositories.NewFieldRepository(s.db).ListByForm(ctx, form.ID); err != nil {
		return nil, fmt.Errorf("list fields: %w", err)
	}
	if form.Tags, err = repositories.NewTagRepository(s.db).ListByForm(ctx, form.ID); err != nil {
		return nil, fmt.Errorf("list form tags: %w", err)
	}
	return form, nil
}

// UpdateForm applies the set attributes. Title and description changes are
// recorded as one form_updated entry carrying only the changed pairs.
func (s *Service) UpdateForm(ctx context.Context, formID, businessID string, in UpdateFormInput) (*models.Form, error) {
	scope, form, err := s.authorizeForm(ctx, formID, businessID)
	if err != nil {
		return nil, err
	}
	if in.Title != nil {
		trimmed := strings.TrimSpace(*in.Title)
		if trimmed == "" {
			return nil, apperrors.NewValidationError("validation failed", map[string]string{"title": "is required"})
		}
		in.Title = &trimmed
	}
	if err := validator.Struct(&in); err != nil {
		return nil, err
	}

	details := &history.FormUpdatedDetails{}
	changed := false
	if in.Title != nil && *in.Title != form.Title {
		details.OldTitle, details.NewTitle = strPtr(form.Title), strPtr(*in.Title)
		form.Title = *in.Title
		changed = true
	}
	if in.Description != nil && *in.Description != form.Description {
		details.OldDescription, details.NewDescription = strPtr(form.Description), strPtr(*in.Description)
		form.Description = *in.Description
		changed = true
	}
	if in.SuccessMessage != nil && *in.SuccessMessage != form.SuccessMessage {
		form.SuccessMessage = *in.SuccessMessage
		changed = true
	}
	if !changed {
		return s.hydrate(ctx, form)
	}

	err = database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := repositories.NewFormRepository(tx).UpdateDetails(ctx, form); err != nil {
			return fmt.Errorf("update form: %w", err)
		}
		if details.OldTitle == nil && details.OldDescription == nil {
			return nil
		}
		_, err := history.Record(ctx, tx, form.ID, scope.UserID(), details)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.hydrate(ctx, form)
}

// ChangeStatus moves the form through draft, published and archived. Setting
// the current status again is a no-op.
func (s *Service) ChangeStatus(ctx context.Context, formID, businessID string, status models.FormStatus) (*models.Form, error) {
	scope, form, err := s.authorizeForm(ctx, formID, businessID)
	if err != nil {
		return nil, err
	}
	if !status.Valid() {
		return nil, apperrors.NewValidationError("validation failed", map[string]string{"status": "must be one of: draft published archived"})
	}
	if status == form.Status {
		return s.hydrate(ctx, form)
	}

	old := form.Status
	err = database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := repositories.NewFormRepository(tx).UpdateStatus(ctx, form.ID, status); err != nil {
			return fmt.Errorf("update status: %w", err)
		}
		_, err := history.Record(ctx, tx, form.ID, scope.UserID(), &history.FormStatusChangedDetails{OldStatus: string(old), NewStatus: string(status)})
		return err
	})
	if err != nil {
		return nil, err
	}
	form.Status = status

	events.PublishAsync(s.publisher, events.Event{
		Type:       events.StatusChanged,
		BusinessID: form.BusinessID,
		FormID:     form.ID,
		Data:       map[string]string{"old_status": string(old), "new_status": string(status)},
	})
	return s.hydrate(ctx, form)
}

// DeleteForm removes the form and everything hanging off it. Admin only.
func (s *Service) DeleteForm(ctx context.Context, formID, businessID string) error {
	scope, form, err := s.authorizeForm(ctx, formID, businessID)
	if err != nil {
		return err
	}
	if err := scope.RequireAdmin(); err != nil {
		return err
	}
	if err := repositories.NewFormRepository(s.db).Delete(ctx, form.ID); err != nil {
		return fmt.Errorf("delete form: %w", err)
	}
	s.fields.Invalidate(form.ID)
	log.Info().Str("form_id", form.ID).Str("user_id", scope.UserID()).Msg("form deleted")
	return nil
}

// PublicForm returns a published form and its fields to anonymous callers.
// Forms in any other status are reported as not found.
func (s *Service) PublicForm(ctx context.Context, formID string) (*models.Form, error) {
	form, err := repositories.NewFormRepository(s.db).GetByID(ctx, formID)
	if err != nil {
		return nil, fmt.Errorf("load form: %w", err)
	}
	if form == nil || form.Status != models.FormStatusPublished {
		return nil, apperrors.ErrNotFound
	}
	if form.Fields, err = s.publicFields(ctx, form); err != nil {
		return nil, err
	}
	return form, nil
}

func strPtr(s string) *string {
	return &s
}
