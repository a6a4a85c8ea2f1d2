package forms

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"formsmith/internal/engine/permissions"
	apperrors "formsmith/internal/pkg/errors"
	"formsmith/internal/pkg/validator"
	"formsmith/internal/platform/database"
	"formsmith/internal/platform/models"
	"formsmith/internal/platform/repositories"
)

type TagInput struct {
	Name  string `json:"name" validate:"required,max=50"`
	Color string `json:"color" validate:"omitempty,hexcolor"`
}

func (s *Service) CreateTag(ctx context.Context, businessID string, in TagInput) (*models.Tag, error) {
	scope, err := s.resolver.Authorize(ctx, businessID)
	if err != nil {
		return nil, err
	}
	in.Name = strings.TrimSpace(in.Name)
	if err := validator.Struct(&in); err != nil {
		return nil, err
	}

	tag := &models.Tag{BusinessID: scope.BusinessID, Name: in.Name, Color: in.Color}
	if err := repositories.NewTagRepository(s.db).Create(ctx, tag); err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return nil, fmt.Errorf("%w: tag %q already exists", apperrors.ErrConflict, in.Name)
		}
		return nil, fmt.Errorf("create tag: %w", err)
	}
	return tag, nil
}

func (s *Service) ListTags(ctx context.Context, businessID string) ([]*models.Tag, error) {
	scope, err := s.resolver.Authorize(ctx, businessID)
	if err != nil {
		return nil, err
	}
	return repositories.NewTagRepository(s.db).ListByBusiness(ctx, scope.BusinessID)
}

func (s *Service) DeleteTag(ctx context.Context, businessID, tagID string) error {
	scope, err := s.resolver.Authorize(ctx, businessID)
	if err != nil {
		return err
	}
	if _, err := ownedTag(ctx, s.db, scope, tagID); err != nil {
		return err
	}
	return repositories.NewTagRepository(s.db).Delete(ctx, tagID)
}

// SetFormTags replaces the form's tag set.
func (s *Service) SetFormTags(ctx context.Context, formID, businessID string, tagIDs []string) ([]*models.Tag, error) {
	scope, form, err := s.authorizeForm(ctx, formID, businessID)
	if err != nil {
		return nil, err
	}
	err = database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		return setTags(ctx, tx, scope.BusinessID, form.ID, tagIDs)
	})
	if err != nil {
		return nil, err
	}
	return repositories.NewTagRepository(s.db).ListByForm(ctx, form.ID)
}

func setTags(ctx context.Context, tx *sql.Tx, businessID, formID string, tagIDs []string) error {
	tags := repositories.NewTagRepository(tx)
	for _, id := range tagIDs {
		tag, err := tags.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if tag == nil || tag.BusinessID != businessID {
			return apperrors.NewValidationError("validation failed", map[string]string{"tag_ids": fmt.Sprintf("unknown tag %q", id)})
		}
	}
	return tags.ReplaceFormTags(ctx, formID, tagIDs)
}

func ownedTag(ctx context.Context, db database.DBTX, scope *permissions.Scope, tagID string) (*models.Tag, error) {
	tag, err := repositories.NewTagRepository(db).GetByID(ctx, tagID)
	if err != nil {
		return nil, err
	}
	if tag == nil || tag.BusinessID != scope.BusinessID {
		return nil, apperrors.ErrNotFound
	}
	return tag, nil
}
