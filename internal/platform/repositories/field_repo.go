package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"formsmith/internal/platform/database"
	"formsmith/internal/platform/models"
)

type FieldRepository struct {
	db database.DBTX
}

func NewFieldRepository(db database.DBTX) *FieldRepository {
	return &FieldRepository{db: db}
}

const fieldColumns = `id, form_id, type, title, placeholder, required, sort_order, options, created_at`

func scanField(row interface{ Scan(...any) error }) (*models.Field, error) {
	f := &models.Field{}
	var placeholder, options sql.NullString
	if err := row.Scan(&f.ID, &f.FormID, &f.Type, &f.Title, &placeholder, &f.Required, &f.Order, &options, &f.CreatedAt); err != nil {
		return nil, err
	}
	f.Placeholder = stringPtr(placeholder)
	opts, err := decodeStrings(options)
	if err != nil {
		return nil, err
	}
	f.Options = opts
	return f, nil
}

func (r *FieldRepository) Create(ctx context.Context, field *models.Field) error {
	if field.ID == "" {
		field.ID = "fld_" + uuid.New().String()
	}
	field.CreatedAt = now()

	options, err := encodeStrings(field.Options)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO fields (id, form_id, type, title, placeholder, required, sort_order, options, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, field.ID, field.FormID, field.Type, field.Title, field.Placeholder, field.Required, field.Order, options, field.CreatedAt)
	return err
}

func (r *FieldRepository) GetByID(ctx context.Context, id string) (*models.Field, error) {
	f, err := scanField(r.db.QueryRowContext(ctx, `SELECT `+fieldColumns+` FROM fields WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return f, nil
}

// ListByForm returns fields in display order.
func (r *FieldRepository) ListByForm(ctx context.Context, formID string) ([]*models.Field, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+fieldColumns+` FROM fields WHERE form_id = ? ORDER BY sort_order ASC, created_at ASC
	`, formID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fields := []*models.Field{}
	for rows.Next() {
		f, err := scanField(rows)
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
	return fields, rows.Err()
}

// NextOrder is one past the highest order in the form, or 0 for an empty form.
func (r *FieldRepository) NextOrder(ctx context.Context, formID string) (int, error) {
	var max sql.NullInt64
	if err := r.db.QueryRowContext(ctx, `SELECT MAX(sort_order) FROM fields WHERE form_id = ?`, formID).Scan(&max); err != nil {
		return 0, err
	}
	if !max.Valid {
		return 0, nil
	}
	return int(max.Int64) + 1, nil
}

func (r *FieldRepository) Update(ctx context.Context, field *models.Field) error {
	options, err := encodeStrings(field.Options)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		UPDATE fields SET title = ?, placeholder = ?, required = ?, options = ? WHERE id = ?
	`, field.Title, field.Placeholder, field.Required, options, field.ID)
	return err
}

func (r *FieldRepository) SetOrder(ctx context.Context, id string, order int) error {
	_, err := r.db.ExecContext(ctx, `UPDATE fields SET sort_order = ? WHERE id = ?`, order, id)
	return err
}

func (r *FieldRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM fields WHERE id = ?`, id)
	return err
}
