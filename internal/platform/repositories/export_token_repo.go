package repositories

import (
	"context"
	"database/sql"
	"errors"

	"formsmith/internal/platform/database"
	"formsmith/internal/platform/models"
)

type ExportTokenRepository struct {
	db database.DBTX
}

func NewExportTokenRepository(db database.DBTX) *ExportTokenRepository {
	return &ExportTokenRepository{db: db}
}

func (r *ExportTokenRepository) Create(ctx context.Context, t *models.ExportToken) error {
	t.CreatedAt = now()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO export_tokens (token_hash, form_id, business_id, created_by, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, t.TokenHash, t.FormID, t.BusinessID, t.CreatedBy, t.ExpiresAt, t.CreatedAt)
	return err
}

// Consume deletes the token and returns it. A token can be consumed once;
// a second call returns nil.
func (r *ExportTokenRepository) Consume(ctx context.Context, hash string) (*models.ExportToken, error) {
	t := &models.ExportToken{}
	err := r.db.QueryRowContext(ctx, `
		DELETE FROM export_tokens WHERE token_hash = ?
		RETURNING token_hash, form_id, business_id, created_by, expires_at, created_at
	`, hash).Scan(&t.TokenHash, &t.FormID, &t.BusinessID, &t.CreatedBy, &t.ExpiresAt, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return t, nil
}

// DeleteExpired removes every token whose deadline is at or before the given
// time and reports how many were removed.
func (r *ExportTokenRepository) DeleteExpired(ctx context.Context, before int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM export_tokens WHERE expires_at <= ?`, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
