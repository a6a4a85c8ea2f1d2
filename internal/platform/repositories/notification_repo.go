package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"formsmith/internal/platform/database"
	"formsmith/internal/platform/models"
)

type NotificationRepository struct {
	db database.DBTX
}

func NewNotificationRepository(db database.DBTX) *NotificationRepository {
	return &NotificationRepository{db: db}
}

const notificationColumns = `id, business_id, form_id, recipients, enabled, created_at, updated_at`

func scanNotification(row interface{ Scan(...any) error }) (*models.Notification, error) {
	var n models.Notification
	var formID, recipients sql.NullString
	if err := row.Scan(&n.ID, &n.BusinessID, &formID, &recipients, &n.Enabled, &n.CreatedAt, &n.UpdatedAt); err != nil {
		return nil, err
	}
	n.FormID = stringPtr(formID)
	list, err := decodeStrings(recipients)
	if err != nil {
		return nil, err
	}
	n.Recipients = list
	return &n, nil
}

func (r *NotificationRepository) Create(ctx context.Context, n *models.Notification) error {
	n.ID = "ntf_" + uuid.New().String()
	n.CreatedAt = now()
	n.UpdatedAt = n.CreatedAt
	if n.Recipients == nil {
		n.Recipients = []string{}
	}

	recipients, err := encodeStrings(n.Recipients)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO notifications (id, business_id, form_id, recipients, enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, n.ID, n.BusinessID, n.FormID, recipients, n.Enabled, n.CreatedAt, n.UpdatedAt)
	return err
}

func (r *NotificationRepository) GetByID(ctx context.Context, id string) (*models.Notification, error) {
	n, err := scanNotification(r.db.QueryRowContext(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return n, nil
}

func (r *NotificationRepository) ListByBusiness(ctx context.Context, businessID string) ([]*models.Notification, error) {
	return r.list(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE business_id = ? ORDER BY created_at DESC`, businessID)
}

func (r *NotificationRepository) ListActiveForForm(ctx context.Context, businessID, formID string) ([]*models.Notification, error) {
	return r.list(ctx, `
		SELECT `+notificationColumns+` FROM notifications
		WHERE business_id = ? AND enabled = 1 AND (form_id IS NULL OR form_id = ?)
		ORDER BY created_at ASC
	`, businessID, formID)
}

func (r *NotificationRepository) list(ctx context.Context, query string, args ...any) ([]*models.Notification, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*models.Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *NotificationRepository) Update(ctx context.Context, n *models.Notification) error {
	n.UpdatedAt = now()
	if n.Recipients == nil {
		n.Recipients = []string{}
	}
	recipients, err := encodeStrings(n.Recipients)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		UPDATE notifications SET form_id = ?, recipients = ?, enabled = ?, updated_at = ? WHERE id = ?
	`, n.FormID, recipients, n.Enabled, n.UpdatedAt, n.ID)
	return err
}

func (r *NotificationRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM notifications WHERE id = ?`, id)
	return err
}
