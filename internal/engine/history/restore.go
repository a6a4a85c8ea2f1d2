package history

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog/log"

	"formsmith/internal/engine/events"
	"formsmith/internal/engine/permissions"
	apperrors "formsmith/internal/pkg/errors"
	"formsmith/internal/platform/database"
	"formsmith/internal/platform/models"
	"formsmith/internal/platform/repositories"
)

// RestoredFieldOrder is where a restored deleted field is placed.
const RestoredFieldOrder = 999

type Restorer struct {
	db        *sql.DB
	resolver  *permissions.Resolver
	publisher events.Publisher
}

func NewRestorer(db *sql.DB, resolver *permissions.Resolver, publisher events.Publisher) *Restorer {
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &Restorer{db: db, resolver: resolver, publisher: publisher}
}

// Restore applies the inverse of history entry historyID to the live form
// and records a "restored" entry pointing back at it. It returns the new
// entry, or nil when there was nothing left to undo (for example the field
// has since been deleted).
func (r *Restorer) Restore(ctx context.Context, historyID, businessID string) (*Entry, error) {
	if _, err := r.resolver.ResolveIdentity(ctx); err != nil {
		return nil, err
	}

	target, err := store{db: r.db}.get(ctx, historyID)
	if err != nil {
		return nil, fmt.Errorf("load history entry: %w", err)
	}
	if target == nil {
		return nil, apperrors.ErrNotFound
	}

	scope, form, err := r.resolver.AuthorizeForm(ctx, repositories.NewFormRepository(r.db), target.FormID, businessID)
	if err != nil {
		return nil, err
	}

	var restored *Entry
	err = database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		forms := repositories.NewFormRepository(tx)
		// Reversals compare against the form as it is inside the transaction.
		live, err := forms.GetByID(ctx, form.ID)
		if err != nil {
			return fmt.Errorf("reload form: %w", err)
		}
		if live == nil {
			return apperrors.ErrNotFound
		}
		form = live

		op := &reversal{
			ctx:    ctx,
			forms:  forms,
			fields: repositories.NewFieldRepository(tx),
			form:   form,
			target: target,
		}
		details, err := op.apply()
		if err != nil || details == nil {
			return err
		}
		restored = &Entry{FormID: form.ID, UserID: scope.UserID(), Details: details}
		return insert(ctx, tx, restored)
	})
	if err != nil {
		return nil, err
	}

	if restored != nil {
		log.Info().Str("form_id", form.ID).Str("restored_from", target.ID).Str("user_id", scope.UserID()).Msg("history entry restored")
		if d, ok := restored.Details.(*RestoredDetails); ok && d.NewStatus != nil {
			events.PublishAsync(r.publisher, events.Event{
				Type:       events.StatusChanged,
				BusinessID: form.BusinessID,
				FormID:     form.ID,
				Data:       map[string]string{"old_status": *d.OldStatus, "new_status": *d.NewStatus},
			})
		}
	}
	return restored, nil
}

// reversal computes and writes the inverse of one entry inside a
// transaction.
type reversal struct {
	ctx    context.Context
	forms  *repositories.FormRepository
	fields *repositories.FieldRepository
	form   *models.Form
	target *Entry
}

func (op *reversal) apply() (*RestoredDetails, error) {
	switch d := op.target.Details.(type) {
	case *FormUpdatedDetails:
		return op.formUpdated(d)
	case *FormStatusChangedDetails:
		return op.statusChanged(d)
	case *FieldUpdatedDetails:
		return op.fieldUpdated(d)
	case *FieldDeletedDetails:
		return op.fieldDeleted(d)
	case *FieldCreatedDetails:
		return op.fieldCreated(d)
	case *FormCreatedDetails, *FieldsReorderedDetails, *RestoredDetails:
		return nil, apperrors.ErrNotRestorable
	default:
		return nil, fmt.Errorf("unhandled edit type %s", op.target.EditType)
	}
}

func (op *reversal) restored(action string) *RestoredDetails {
	return &RestoredDetails{RestoredFromID: op.target.ID, RestoredAction: action}
}

// formUpdated puts back every changed attribute that still differs from its
// old value. Nothing is written when all of them already match.
func (op *reversal) formUpdated(d *FormUpdatedDetails) (*RestoredDetails, error) {
	out := op.restored("form update")
	changed := false
	if d.OldTitle != nil && op.form.Title != *d.OldTitle {
		current := op.form.Title
		out.OldTitle, out.NewTitle = &current, ptr(*d.OldTitle)
		op.form.Title = *d.OldTitle
		changed = true
	}
	if d.OldDescription != nil && op.form.Description != *d.OldDescription {
		current := op.form.Description
		out.OldDescription, out.NewDescription = &current, ptr(*d.OldDescription)
		op.form.Description = *d.OldDescription
		changed = true
	}
	if !changed {
		return nil, nil
	}

	if err := op.forms.UpdateDetails(op.ctx, op.form); err != nil {
		return nil, fmt.Errorf("restore form details: %w", err)
	}
	return out, nil
}

func (op *reversal) statusChanged(d *FormStatusChangedDetails) (*RestoredDetails, error) {
	status := models.FormStatus(d.OldStatus)
	if !status.Valid() {
		return nil, fmt.Errorf("history entry %s has invalid status %q", op.target.ID, d.OldStatus)
	}
	if op.form.Status == status {
		return nil, nil
	}

	out := op.restored(fmt.Sprintf("status change to %q", d.NewStatus))
	current := string(op.form.Status)
	out.OldStatus, out.NewStatus = &current, ptr(d.OldStatus)

	if err := op.forms.UpdateStatus(op.ctx, op.form.ID, status); err != nil {
		return nil, fmt.Errorf("restore status: %w", err)
	}
	op.form.Status = status
	return out, nil
}

// fieldUpdated puts back the field's old attributes, skipping those that
// already hold their old value.
func (op *reversal) fieldUpdated(d *FieldUpdatedDetails) (*RestoredDetails, error) {
	field, err := op.liveField(d.FieldID)
	if err != nil || field == nil {
		return nil, err
	}

	out := op.restored(fmt.Sprintf("field update for %q", d.FieldTitle))
	out.FieldID, out.FieldType = field.ID, string(field.Type)
	changed := false

	if d.OldTitle != nil && field.Title != *d.OldTitle {
		out.OldTitle, out.NewTitle = ptr(field.Title), ptr(*d.OldTitle)
		field.Title = *d.OldTitle
		changed = true
	}
	if d.OldPlaceholder != nil && deref(field.Placeholder) != *d.OldPlaceholder {
		out.OldPlaceholder, out.NewPlaceholder = ptr(deref(field.Placeholder)), ptr(*d.OldPlaceholder)
		field.Placeholder = optional(*d.OldPlaceholder)
		changed = true
	}
	if d.OldRequired != nil && field.Required != *d.OldRequired {
		out.OldRequired, out.NewRequired = ptr(field.Required), ptr(*d.OldRequired)
		field.Required = *d.OldRequired
		changed = true
	}
	if d.OldOptions != nil && !sameOptions(field.Options, *d.OldOptions) {
		current := append([]string{}, field.Options...)
		previous := append([]string{}, (*d.OldOptions)...)
		out.OldOptions, out.NewOptions = &current, &previous
		field.Options = nil
		if len(previous) > 0 {
			field.Options = previous
		}
		changed = true
	}
	if !changed {
		return nil, nil
	}
	out.FieldTitle = field.Title

	if err := op.fields.Update(op.ctx, field); err != nil {
		return nil, fmt.Errorf("restore field: %w", err)
	}
	if err := op.forms.BumpVersion(op.ctx, op.form.ID); err != nil {
		return nil, err
	}
	return out, nil
}

func sameOptions(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// fieldDeleted recreates the field under its original id, appended at the
// end of the form. It is a no-op when that field exists again.
func (op *reversal) fieldDeleted(d *FieldDeletedDetails) (*RestoredDetails, error) {
	existing, err := op.fields.GetByID(op.ctx, d.FieldID)
	if err != nil {
		return nil, fmt.Errorf("load field: %w", err)
	}
	if existing != nil {
		return nil, nil
	}

	field := &models.Field{
		ID:          d.FieldID,
		FormID:      op.form.ID,
		Type:        models.FieldType(d.FieldType),
		Title:       d.FieldTitle,
		Placeholder: d.Placeholder,
		Required:    d.Required,
		Order:       RestoredFieldOrder,
		Options:     d.Options,
	}
	if err := op.fields.Create(op.ctx, field); err != nil {
		return nil, fmt.Errorf("recreate field: %w", err)
	}
	if err := op.forms.BumpVersion(op.ctx, op.form.ID); err != nil {
		return nil, err
	}

	out := op.restored(fmt.Sprintf("field deletion of %q", d.FieldTitle))
	out.FieldID, out.FieldTitle, out.FieldType = field.ID, field.Title, d.FieldType
	return out, nil
}

func (op *reversal) fieldCreated(d *FieldCreatedDetails) (*RestoredDetails, error) {
	field, err := op.liveField(d.FieldID)
	if err != nil || field == nil {
		return nil, err
	}

	if err := op.fields.Delete(op.ctx, field.ID); err != nil {
		return nil, fmt.Errorf("delete field: %w", err)
	}
	if err := op.forms.BumpVersion(op.ctx, op.form.ID); err != nil {
		return nil, err
	}

	out := op.restored(fmt.Sprintf("field creation of %q", d.FieldTitle))
	out.FieldID, out.FieldTitle, out.FieldType = field.ID, field.Title, string(field.Type)
	return out, nil
}

// liveField returns the field when it still exists on this form.
func (op *reversal) liveField(id string) (*models.Field, error) {
	field, err := op.fields.GetByID(op.ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load field: %w", err)
	}
	if field == nil || field.FormID != op.form.ID {
		return nil, nil
	}
	return field, nil
}

func ptr[T any](v T) *T {
	return &v
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// optional maps the empty string to "no value".
func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
