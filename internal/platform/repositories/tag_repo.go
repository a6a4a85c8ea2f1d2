package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"formsmith/internal/platform/database"
	"formsmith/internal/platform/models"
)

type TagRepository struct {
	db database.DBTX
}

func NewTagRepository(db database.DBTX) *TagRepository {
	return &TagRepository{db: db}
}

func (r *TagRepository) Create(ctx context.Context, tag *models.Tag) error {
	if tag.ID == "" {
		tag.ID = "tag_" + uuid.New().String()
	}
	tag.CreatedAt = now()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tags (id, business_id, name, color, created_at) VALUES (?, ?, ?, ?, ?)
	`, tag.ID, tag.BusinessID, tag.Name, tag.Color, tag.CreatedAt)
	return err
}

func (r *TagRepository) GetByID(ctx context.Context, id string) (*models.Tag, error) {
	t := &models.Tag{}
	err := r.db.QueryRowContext(ctx, `SELECT id, business_id, name, color, created_at FROM tags WHERE id = ?`, id).
		Scan(&t.ID, &t.BusinessID, &t.Name, &t.Color, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return t, nil
}

func (r *TagRepository) ListByBusiness(ctx context.Context, businessID string) ([]*models.Tag, error) {
	return r.list(ctx, `SELECT id, business_id, name, color, created_at FROM tags WHERE business_id = ? ORDER BY name`, businessID)
}

func (r *TagRepository) ListByForm(ctx context.Context, formID string) ([]*models.Tag, error) {
	return r.list(ctx, `
		SELECT t.id, t.business_id, t.name, t.color, t.created_at
		FROM tags t JOIN form_tags ft ON ft.tag_id = t.id
		WHERE ft.form_id = ? ORDER BY t.name
	`, formID)
}

func (r *TagRepository) list(ctx context.Context, query string, args ...any) ([]*models.Tag, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tags := []*models.Tag{}
	for rows.Next() {
		t := &models.Tag{}
		if err := rows.Scan(&t.ID, &t.BusinessID, &t.Name, &t.Color, &t.CreatedAt); err != nil {
			return nil, err
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

func (r *TagRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM tags WHERE id = ?`, id)
	return err
}

// ReplaceFormTags swaps the form's tag set. Run it inside a transaction.
func (r *TagRepository) ReplaceFormTags(ctx context.Context, formID string, tagIDs []string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM form_tags WHERE form_id = ?`, formID); err != nil {
		return err
	}
	for _, id := range tagIDs {
		if _, err := r.db.ExecContext(ctx, `INSERT OR IGNORE INTO form_tags (form_id, tag_id) VALUES (?, ?)`, formID, id); err != nil {
			return err
		}
	}
	return nil
}
