package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"formsmith/internal/platform/database"
	"formsmith/internal/platform/models"
)

type WebhookRepository struct {
	db database.DBTX
}

func NewWebhookRepository(db database.DBTX) *WebhookRepository {
	return &WebhookRepository{db: db}
}

const webhookColumns = `id, business_id, form_id, url, secret, enabled, last_triggered_at, last_status, created_at, updated_at`

func scanWebhook(row interface{ Scan(...any) error }) (*models.Webhook, error) {
	var w models.Webhook
	var formID, lastStatus sql.NullString
	var lastTriggeredAt sql.NullInt64
	if err := row.Scan(&w.ID, &w.BusinessID, &formID, &w.URL, &w.Secret, &w.Enabled, &lastTriggeredAt, &lastStatus, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return nil, err
	}
	w.FormID = stringPtr(formID)
	w.LastTriggeredAt = int64Ptr(lastTriggeredAt)
	w.LastStatus = stringPtr(lastStatus)
	return &w, nil
}

func (r *WebhookRepository) Create(ctx context.Context, webhook *models.Webhook) error {
	webhook.ID = "wh_" + uuid.New().String()
	webhook.CreatedAt = now()
	webhook.UpdatedAt = webhook.CreatedAt

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO webhooks (id, business_id, form_id, url, secret, enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, webhook.ID, webhook.BusinessID, webhook.FormID, webhook.URL, webhook.Secret, webhook.Enabled, webhook.CreatedAt, webhook.UpdatedAt)
	return err
}

func (r *WebhookRepository) GetByID(ctx context.Context, id string) (*models.Webhook, error) {
	w, err := scanWebhook(r.db.QueryRowContext(ctx, `SELECT `+webhookColumns+` FROM webhooks WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return w, nil
}

func (r *WebhookRepository) ListByBusiness(ctx context.Context, businessID string) ([]*models.Webhook, error) {
	return r.list(ctx, `SELECT `+webhookColumns+` FROM webhooks WHERE business_id = ? ORDER BY created_at DESC`, businessID)
}

// ListActiveForForm returns enabled webhooks scoped to the form or to the
// whole business.
func (r *WebhookRepository) ListActiveForForm(ctx context.Context, businessID, formID string) ([]*models.Webhook, error) {
	return r.list(ctx, `
		SELECT `+webhookColumns+` FROM webhooks
		WHERE business_id = ? AND enabled = 1 AND (form_id IS NULL OR form_id = ?)
		ORDER BY created_at ASC
	`, businessID, formID)
}

func (r *WebhookRepository) list(ctx context.Context, query string, args ...any) ([]*models.Webhook, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	webhooks := []*models.Webhook{}
	for rows.Next() {
		w, err := scanWebhook(rows)
		if err != nil {
			return nil, err
		}
		webhooks = append(webhooks, w)
	}
	return webhooks, rows.Err()
}

func (r *WebhookRepository) Update(ctx context.Context, webhook *models.Webhook) error {
	webhook.UpdatedAt = now()
	_, err := r.db.ExecContext(ctx, `
		UPDATE webhooks SET form_id = ?, url = ?, secret = ?, enabled = ?, updated_at = ? WHERE id = ?
	`, webhook.FormID, webhook.URL, webhook.Secret, webhook.Enabled, webhook.UpdatedAt, webhook.ID)
	return err
}

func (r *WebhookRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM webhooks WHERE id = ?`, id)
	return err
}

func (r *WebhookRepository) UpdateLastTriggered(ctx context.Context, id, status string, timestamp int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE webhooks SET last_triggered_at = ?, last_status = ? WHERE id = ?`, timestamp, status, id)
	return err
}

func (r *WebhookRepository) CreateEntry(ctx context.Context, entry *models.WebhookEntry) error {
	entry.ID = "whe_" + uuid.New().String()
	entry.CreatedAt = now()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO webhook_entries (id, webhook_id, event, status, status_code, response, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.ID, entry.WebhookID, entry.Event, entry.Status, entry.StatusCode, entry.Response, entry.Error, entry.CreatedAt)
	return err
}

// ListEntries returns the most recent delivery attempts first.
func (r *WebhookRepository) ListEntries(ctx context.Context, webhookID string, limit int) ([]*models.WebhookEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, webhook_id, event, status, status_code, response, error, created_at
		FROM webhook_entries WHERE webhook_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ?
	`, webhookID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []*models.WebhookEntry{}
	for rows.Next() {
		var e models.WebhookEntry
		var code sql.NullInt64
		var response, errText sql.NullString
		if err := rows.Scan(&e.ID, &e.WebhookID, &e.Event, &e.Status, &code, &response, &errText, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.StatusCode = intPtr(code)
		e.Response = stringPtr(response)
		e.Error = stringPtr(errText)
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
