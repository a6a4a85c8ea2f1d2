// Package delivery moves submission side effects (webhooks and email
// notifications) through a durable outbox with bounded retries.
package delivery

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"formsmith/internal/platform/config"
	"formsmith/internal/platform/models"
	"formsmith/internal/platform/repositories"
)

// MaxResponseChars bounds the response body stored per delivery attempt.
const MaxResponseChars = 1000

type Dispatcher struct {
	db      *sql.DB
	cfg     config.DeliveryConfig
	client  *http.Client
	mailer  Mailer
	webhook *repositories.WebhookRepository
	notif   *repositories.NotificationRepository
	outbox  *repositories.OutboxRepository
	now     func() time.Time
}

func NewDispatcher(db *sql.DB, cfg config.DeliveryConfig, mailer Mailer) *Dispatcher {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 10 * time.Second
	}
	return &Dispatcher{
		db:      db,
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.HTTPTimeout},
		mailer:  mailer,
		webhook: repositories.NewWebhookRepository(db),
		notif:   repositories.NewNotificationRepository(db),
		outbox:  repositories.NewOutboxRepository(db),
		now:     time.Now,
	}
}

// Backoff is the wait before retrying after the given number of failed
// attempts: base, 2*base, 4*base, ...
func Backoff(base time.Duration, attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	if attempts > 20 {
		attempts = 20
	}
	return base * time.Duration(1<<(attempts-1))
}

// Drain processes every job that is due now, up to one batch, and returns
// how many were attempted.
func (d *Dispatcher) Drain(ctx context.Context) (int, error) {
	jobs, err := d.outbox.Due(ctx, d.now().UnixMilli(), d.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("load due jobs: %w", err)
	}

	for _, job := range jobs {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		d.process(ctx, job)
	}
	return len(jobs), nil
}

func (d *Dispatcher) process(ctx context.Context, job *models.OutboxJob) {
	var err error
	switch job.Kind {
	case models.JobKindWebhook:
		err = d.runWebhookJob(ctx, job)
	case models.JobKindEmail:
		err = d.runEmailJob(ctx, job)
	default:
		err = fmt.Errorf("unknown job kind %q", job.Kind)
	}

	attempts := job.Attempts + 1
	logger := log.With().Str("job_id", job.ID).Str("kind", job.Kind).Str("target_id", job.TargetID).Int("attempt", attempts).Logger()

	if err == nil {
		if markErr := d.outbox.MarkDone(ctx, job.ID, attempts); markErr != nil {
			logger.Error().Err(markErr).Msg("failed to mark job done")
		}
		return
	}

	dead := attempts >= d.cfg.MaxAttempts
	next := d.now().Add(Backoff(d.cfg.BaseBackoff, attempts)).UnixMilli()
	if markErr := d.outbox.MarkFailed(ctx, job.ID, attempts, next, err.Error(), dead); markErr != nil {
		logger.Error().Err(markErr).Msg("failed to record job failure")
	}
	if dead {
		logger.Error().Err(err).Msg("delivery failed permanently")
	} else {
		logger.Warn().Err(err).Time("next_attempt", time.UnixMilli(next)).Msg("delivery failed, will retry")
	}
}

func (d *Dispatcher) runWebhookJob(ctx context.Context, job *models.OutboxJob) error {
	w, err := d.webhook.GetByID(ctx, job.TargetID)
	if err != nil {
		return err
	}
	// target removed or switched off since the job was queued
	if w == nil || !w.Enabled {
		return nil
	}

	entry, err := d.deliver(ctx, w, job.Event, job.Payload)
	if err != nil {
		return err
	}
	if entry.Status != models.DeliveryStatusSuccess {
		if entry.Error != nil {
			return fmt.Errorf("webhook delivery: %s", *entry.Error)
		}
		return fmt.Errorf("webhook delivery: HTTP %d", *entry.StatusCode)
	}
	return nil
}

func (d *Dispatcher) runEmailJob(ctx context.Context, job *models.OutboxJob) error {
	n, err := d.notif.GetByID(ctx, job.TargetID)
	if err != nil {
		return err
	}
	if n == nil || !n.Enabled {
		return nil
	}
	if d.mailer == nil {
		return fmt.Errorf("no mailer configured")
	}

	var msg EmailMessage
	if err := json.Unmarshal(job.Payload, &msg); err != nil {
		return fmt.Errorf("decode email payload: %w", err)
	}
	return d.mailer.Send(ctx, msg)
}

// deliver POSTs payload to the webhook, records the attempt and updates the
// webhook's last status. Transport failures are captured in the returned
// entry; the error is reserved for storage failures.
func (d *Dispatcher) deliver(ctx context.Context, w *models.Webhook, event string, payload []byte) (*models.WebhookEntry, error) {
	entry := &models.WebhookEntry{WebhookID: w.ID, Event: event, Status: models.DeliveryStatusFailed}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(payload))
	if err == nil {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Webhook-Secret", w.Secret)
		req.Header.Set("X-Webhook-Event", event)
		req.Header.Set("X-Webhook-Signature", Sign(w.Secret, payload))
		req.Header.Set("User-Agent", "formsmith-webhooks/1.0")

		var resp *http.Response
		resp, err = d.client.Do(req)
		if err == nil {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, MaxResponseChars*4))
			resp.Body.Close()

			code := resp.StatusCode
			text := truncate(string(body), MaxResponseChars)
			entry.StatusCode = &code
			entry.Response = &text
			if code >= 200 && code < 300 {
				entry.Status = models.DeliveryStatusSuccess
			}
		}
	}
	if err != nil {
		msg := truncate(err.Error(), MaxResponseChars)
		entry.Error = &msg
	}

	if err := d.webhook.CreateEntry(ctx, entry); err != nil {
		return nil, fmt.Errorf("record webhook entry: %w", err)
	}
	if err := d.webhook.UpdateLastTriggered(ctx, w.ID, entry.Status, d.now().UnixMilli()); err != nil {
		return nil, fmt.Errorf("update webhook status: %w", err)
	}
	return entry, nil
}

// Test sends a sample submission.created event to w right away.
func (d *Dispatcher) Test(ctx context.Context, w *models.Webhook) (*models.WebhookEntry, error) {
	payload, err := json.Marshal(models.WebhookEvent{
		ID:         "evt_" + uuid.New().String(),
		Event:      EventSubmissionCreated,
		Timestamp:  d.now().UnixMilli(),
		BusinessID: w.BusinessID,
		Data: SubmissionData{
			SubmissionID: "sub_test",
			FormTitle:    "Test form",
			SubmittedAt:  d.now().UnixMilli(),
			Fields:       []FieldValue{{FieldID: "fld_test", Title: "Message", Type: models.FieldSingleLine, Value: models.TextValue("Hello from formsmith")}},
			Data:         map[string]models.SubmissionValue{"fld_test": models.TextValue("Hello from formsmith")},
		},
	})
	if err != nil {
		return nil, err
	}
	return d.deliver(ctx, w, EventSubmissionCreated, payload)
}

// truncate cuts s to at most n characters without splitting a rune.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
