package forms

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strings"

	"formsmith/internal/engine/history"
	apperrors "formsmith/internal/pkg/errors"
	"formsmith/internal/pkg/validator"
	"formsmith/internal/platform/database"
	"formsmith/internal/platform/models"
	"formsmith/internal/platform/repositories"
)

type CreateFieldInput struct {
	Type        models.FieldType `json:"type" validate:"required,oneof=singleline multiline number select checkbox date"`
	Title       string           `json:"title" validate:"required,max=200"`
	Placeholder *string          `json:"placeholder" validate:"omitempty,max=200"`
	Required    bool             `json:"required"`
	Order       *int             `json:"order" validate:"omitempty,min=0"`
	Options     []string         `json:"options" validate:"max=100,dive,required,max=200"`
}

type UpdateFieldInput struct {
	Title       *string   `json:"title" validate:"omitempty,max=200"`
	Placeholder *string   `json:"placeholder" validate:"omitempty,max=200"`
	Required    *bool     `json:"required"`
	Options     *[]string `json:"options" validate:"omitempty,max=100,dive,required,max=200"`
}

type ReorderInput struct {
	FieldIDs        []string `json:"field_ids" validate:"required"`
	ExpectedVersion int      `json:"expected_version" validate:"required,min=1"`
}

func checkOptions(t models.FieldType, options []string) error {
	if t.HasOptions() && len(options) == 0 {
		return apperrors.NewValidationError("validation failed", map[string]string{"options": "select and checkbox fields need at least one option"})
	}
	seen := map[string]bool{}
	for _, o := range options {
		if seen[o] {
			return apperrors.NewValidationError("validation failed", map[string]string{"options": fmt.Sprintf("duplicate option %q", o)})
		}
		seen[o] = true
	}
	return nil
}

// CreateField appends a field (or places it at the given order) and records
// field_created.
func (s *Service) CreateField(ctx context.Context, formID, businessID string, in CreateFieldInput) (*models.Field, error) {
	scope, form, err := s.authorizeForm(ctx, formID, businessID)
	if err != nil {
		return nil, err
	}
	in.Title = strings.TrimSpace(in.Title)
	if err := validator.Struct(&in); err != nil {
		return nil, err
	}
	if !in.Type.HasOptions() {
		in.Options = nil
	}
	if err := checkOptions(in.Type, in.Options); err != nil {
		return nil, err
	}

	field := &models.Field{
		FormID:      form.ID,
		Type:        in.Type,
		Title:       in.Title,
		Placeholder: nonEmpty(in.Placeholder),
		Required:    in.Required,
		Options:     in.Options,
	}

	err = database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		fields := repositories.NewFieldRepository(tx)
		if in.Order != nil {
			field.Order = *in.Order
		} else {
			next, err := fields.NextOrder(ctx, form.ID)
			if err != nil {
				return err
			}
			field.Order = next
		}
		if err := fields.Create(ctx, field); err != nil {
			return fmt.Errorf("create field: %w", err)
		}
		if err := repositories.NewFormRepository(tx).BumpVersion(ctx, form.ID); err != nil {
			return err
		}
		_, err := history.Record(ctx, tx, form.ID, scope.UserID(), &history.FieldCreatedDetails{
			FieldID:    field.ID,
			FieldTitle: field.Title,
			FieldType:  string(field.Type),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return field, nil
}

// field loads fieldID and checks it belongs to form.
func (s *Service) field(ctx context.Context, form *models.Form, fieldID string) (*models.Field, error) {
	field, err := repositories.NewFieldRepository(s.db).GetByID(ctx, fieldID)
	if err != nil {
		return nil, fmt.Errorf("load field: %w", err)
	}
	if field == nil || field.FormID != form.ID {
		return nil, apperrors.ErrNotFound
	}
	return field, nil
}

// UpdateField applies the set attributes and records field_updated with
// only the pairs that actually changed. An update that changes nothing
// writes nothing.
func (s *Service) UpdateField(ctx context.Context, formID, fieldID, businessID string, in UpdateFieldInput) (*models.Field, error) {
	scope, form, err := s.authorizeForm(ctx, formID, businessID)
	if err != nil {
		return nil, err
	}
	field, err := s.field(ctx, form, fieldID)
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

	details := &history.FieldUpdatedDetails{FieldID: field.ID, FieldType: string(field.Type)}

	if in.Title != nil && *in.Title != field.Title {
		details.OldTitle, details.NewTitle = strPtr(field.Title), strPtr(*in.Title)
		field.Title = *in.Title
	}
	if in.Placeholder != nil {
		current, next := deref(field.Placeholder), *in.Placeholder
		if current != next {
			details.OldPlaceholder, details.NewPlaceholder = strPtr(current), strPtr(next)
			field.Placeholder = nonEmpty(in.Placeholder)
		}
	}
	if in.Required != nil && *in.Required != field.Required {
		old := field.Required
		details.OldRequired, details.NewRequired = &old, in.Required
		field.Required = *in.Required
	}
	if in.Options != nil && field.Type.HasOptions() {
		next := *in.Options
		if err := checkOptions(field.Type, next); err != nil {
			return nil, err
		}
		if !slices.Equal(field.Options, next) {
			old := append([]string{}, field.Options...)
			nextCopy := append([]string{}, next...)
			details.OldOptions, details.NewOptions = &old, &nextCopy
			field.Options = nextCopy
		}
	}
	details.FieldTitle = field.Title

	if !details.HasChanges() {
		return field, nil
	}

	err = database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := repositories.NewFieldRepository(tx).Update(ctx, field); err != nil {
			return fmt.Errorf("update field: %w", err)
		}
		if err := repositories.NewFormRepository(tx).BumpVersion(ctx, form.ID); err != nil {
			return err
		}
		_, err := history.Record(ctx, tx, form.ID, scope.UserID(), details)
		return err
	})
	if err != nil {
		return nil, err
	}
	return field, nil
}

// DeleteField removes the field and records a snapshot so the deletion can
// be restored.
func (s *Service) DeleteField(ctx context.Context, formID, fieldID, businessID string) error {
	scope, form, err := s.authorizeForm(ctx, formID, businessID)
	if err != nil {
		return err
	}
	field, err := s.field(ctx, form, fieldID)
	if err != nil {
		return err
	}

	return database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := repositories.NewFieldRepository(tx).Delete(ctx, field.ID); err != nil {
			return fmt.Errorf("delete field: %w", err)
		}
		if err := repositories.NewFormRepository(tx).BumpVersion(ctx, form.ID); err != nil {
			return err
		}
		_, err := history.Record(ctx, tx, form.ID, scope.UserID(), &history.FieldDeletedDetails{
			FieldID:     field.ID,
			FieldTitle:  field.Title,
			FieldType:   string(field.Type),
			Required:    field.Required,
			Placeholder: field.Placeholder,
			Options:     field.Options,
		})
		return err
	})
}

// ReorderFields rewrites the order of every field in one transaction. The
// caller passes the form version it last saw; if the field set changed
// since, nothing is written and ErrConflict is returned. The ids must be
// exactly the form's current fields. Returns the new version.
func (s *Service) ReorderFields(ctx context.Context, formID, businessID string, in ReorderInput) (int, error) {
	scope, form, err := s.authorizeForm(ctx, formID, businessID)
	if err != nil {
		return 0, err
	}
	if err := validator.Struct(&in); err != nil {
		return 0, err
	}

	err = database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		formRepo := repositories.NewFormRepository(tx)
		ok, err := formRepo.CompareAndBumpVersion(ctx, form.ID, in.ExpectedVersion)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: form was modified since version %d", apperrors.ErrConflict, in.ExpectedVersion)
		}

		fieldRepo := repositories.NewFieldRepository(tx)
		current, err := fieldRepo.ListByForm(ctx, form.ID)
		if err != nil {
			return err
		}
		if !samePermutation(current, in.FieldIDs) {
			return apperrors.NewValidationError("validation failed", map[string]string{"field_ids": "must list every field of the form exactly once"})
		}

		for i, id := range in.FieldIDs {
			if err := fieldRepo.SetOrder(ctx, id, i); err != nil {
				return fmt.Errorf("set field order: %w", err)
			}
		}
		_, err = history.Record(ctx, tx, form.ID, scope.UserID(), &history.FieldsReorderedDetails{FieldIDs: in.FieldIDs})
		return err
	})
	if err != nil {
		return 0, err
	}
	return in.ExpectedVersion + 1, nil
}

func samePermutation(fields []*models.Field, ids []string) bool {
	if len(fields) != len(ids) {
		return false
	}
	want := make(map[string]bool, len(fields))
	for _, f := range fields {
		want[f.ID] = true
	}
	for _, id := range ids {
		if !want[id] {
			return false
		}
		delete(want, id)
	}
	return len(want) == 0
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nonEmpty(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	v := *s
	return &v
}
