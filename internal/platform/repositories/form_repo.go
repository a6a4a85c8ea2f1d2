package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"formsmith/internal/platform/database"
	"formsmith/internal/platform/models"
)

type FormRepository struct {
	db database.DBTX
}

func NewFormRepository(db database.DBTX) *FormRepository {
	return &FormRepository{db: db}
}

const formColumns = `id, business_id, title, description, success_message, status, submission_count, version, last_updated_at, created_at`

func scanForm(row interface{ Scan(...any) error }) (*models.Form, error) {
	f := &models.Form{}
	var lastUpdated sql.NullInt64
	if err := row.Scan(&f.ID, &f.BusinessID, &f.Title, &f.Description, &f.SuccessMessage, &f.Status,
		&f.SubmissionCount, &f.Version, &lastUpdated, &f.CreatedAt); err != nil {
		return nil, err
	}
	f.LastUpdatedAt = int64Ptr(lastUpdated)
	return f, nil
}

func (r *FormRepository) Create(ctx context.Context, form *models.Form) error {
	if form.ID == "" {
		form.ID = "frm_" + uuid.New().String()
	}
	if form.Status == "" {
		form.Status = models.FormStatusDraft
	}
	form.Version = 1
	form.CreatedAt = now()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO forms (id, business_id, title, description, success_message, status, submission_count, version, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)
	`, form.ID, form.BusinessID, form.Title, form.Description, form.SuccessMessage, form.Status, form.Version, form.CreatedAt)
	return err
}

func (r *FormRepository) GetByID(ctx context.Context, id string) (*models.Form, error) {
	f, err := scanForm(r.db.QueryRowContext(ctx, `SELECT `+formColumns+` FROM forms WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return f, nil
}

// ListByBusiness returns the tenant's forms newest first. An empty status
// matches every status.
func (r *FormRepository) ListByBusiness(ctx context.Context, businessID string, status models.FormStatus) ([]*models.Form, error) {
	query := `SELECT ` + formColumns + ` FROM forms WHERE business_id = ?`
	args := []any{businessID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	forms := []*models.Form{}
	for rows.Next() {
		f, err := scanForm(rows)
		if err != nil {
			return nil, err
		}
		forms = append(forms, f)
	}
	return forms, rows.Err()
}

// UpdateDetails writes title, description and success message and stamps
// last_updated_at.
func (r *FormRepository) UpdateDetails(ctx context.Context, form *models.Form) error {
	ts := now()
	form.LastUpdatedAt = &ts
	_, err := r.db.ExecContext(ctx, `
		UPDATE forms SET title = ?, description = ?, success_message = ?, last_updated_at = ? WHERE id = ?
	`, form.Title, form.Description, form.SuccessMessage, ts, form.ID)
	return err
}

func (r *FormRepository) UpdateStatus(ctx context.Context, id string, status models.FormStatus) error {
	_, err := r.db.ExecContext(ctx, `UPDATE forms SET status = ?, last_updated_at = ? WHERE id = ?`, status, now(), id)
	return err
}

// BumpVersion marks a change to the form's field set.
func (r *FormRepository) BumpVersion(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE forms SET version = version + 1, last_updated_at = ? WHERE id = ?`, now(), id)
	return err
}

// CompareAndBumpVersion advances the version only when it still equals
// expected. It reports false when another writer got there first.
func (r *FormRepository) CompareAndBumpVersion(ctx context.Context, id string, expected int) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE forms SET version = version + 1, last_updated_at = ? WHERE id = ? AND version = ?
	`, now(), id, expected)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *FormRepository) IncrementSubmissionCount(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE forms SET submission_count = submission_count + 1 WHERE id = ?`, id)
	return err
}

// DecrementSubmissionCount never takes the counter below zero.
func (r *FormRepository) DecrementSubmissionCount(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE forms SET submission_count = MAX(submission_count - 1, 0) WHERE id = ?`, id)
	return err
}

// Delete removes the form; fields, submissions, history, tag links, chat and
// export tokens cascade.
func (r *FormRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM forms WHERE id = ?`, id)
	return err
}
