package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/google/uuid"

	"formsmith/internal/platform/database"
	"formsmith/internal/platform/models"
)

type SubmissionRepository struct {
	db database.DBTX
}

func NewSubmissionRepository(db database.DBTX) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

func (r *SubmissionRepository) Create(ctx context.Context, sub *models.Submission) error {
	if sub.ID == "" {
		sub.ID = "sub_" + uuid.New().String()
	}
	sub.SubmittedAt = now()

	data, err := json.Marshal(sub.Data)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO submissions (id, form_id, data, submitted_at) VALUES (?, ?, ?, ?)
	`, sub.ID, sub.FormID, string(data), sub.SubmittedAt)
	return err
}

func scanSubmission(row interface{ Scan(...any) error }, extra ...any) (*models.Submission, error) {
	s := &models.Submission{}
	var data string
	dest := append([]any{&s.ID, &s.FormID, &data, &s.SubmittedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(data), &s.Data); err != nil {
		return nil, err
	}
	return s, nil
}

func (r *SubmissionRepository) GetByID(ctx context.Context, id string) (*models.Submission, error) {
	s, err := scanSubmission(r.db.QueryRowContext(ctx, `SELECT id, form_id, data, submitted_at FROM submissions WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

// ListPage returns up to limit submissions newest first, starting strictly
// below the given row position (0 starts at the newest). The second return
// is the position of the last row, used as the next cursor.
func (r *SubmissionRepository) ListPage(ctx context.Context, formID string, before int64, limit int) ([]*models.Submission, int64, error) {
	query := `SELECT id, form_id, data, submitted_at, rowid FROM submissions WHERE form_id = ?`
	args := []any{formID}
	if before > 0 {
		query += ` AND rowid < ?`
		args = append(args, before)
	}
	query += ` ORDER BY rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var last int64
	subs := []*models.Submission{}
	for rows.Next() {
		var pos int64
		s, err := scanSubmission(rows, &pos)
		if err != nil {
			return nil, 0, err
		}
		last = pos
		subs = append(subs, s)
	}
	return subs, last, rows.Err()
}

// Each streams every submission of the form oldest first.
func (r *SubmissionRepository) Each(ctx context.Context, formID string, fn func(*models.Submission) error) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, form_id, data, submitted_at FROM submissions WHERE form_id = ? ORDER BY rowid ASC
	`, formID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return err
		}
		if err := fn(s); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (r *SubmissionRepository) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM submissions WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
