package delivery

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"formsmith/internal/platform/config"
	"formsmith/internal/platform/database/dbtest"
	"formsmith/internal/platform/models"
	"formsmith/internal/platform/repositories"
)

type fakeMailer struct {
	sent []EmailMessage
	err  error
}

func (m *fakeMailer) Send(_ context.Context, msg EmailMessage) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func seedForm(t *testing.T, db *sql.DB) (*models.Form, []*models.Field) {
	t.Helper()
	ctx := context.Background()
	form := &models.Form{BusinessID: "org_1", Title: "Contact", Status: models.FormStatusPublished}
	require.NoError(t, repositories.NewFormRepository(db).Create(ctx, form))
	field := &models.Field{FormID: form.ID, Type: models.FieldSingleLine, Title: "Email"}
	require.NoError(t, repositories.NewFieldRepository(db).Create(ctx, field))
	return form, []*models.Field{field}
}

func newDispatcher(db *sql.DB, mailer Mailer, clock *time.Time) *Dispatcher {
	d := NewDispatcher(db, config.DeliveryConfig{MaxAttempts: 3, BaseBackoff: 30 * time.Second}, mailer)
	d.now = func() time.Time { return *clock }
	return d
}

func enqueue(t *testing.T, db *sql.DB, form *models.Form, fields []*models.Field) int {
	t.Helper()
	sub := &models.Submission{ID: "sub_1", FormID: form.ID, Data: map[string]models.SubmissionValue{fields[0].ID: models.TextValue("a@b.co")}}
	n, err := EnqueueSubmission(context.Background(), db, form, fields, sub)
	require.NoError(t, err)
	return n
}

func TestBackoff(t *testing.T) {
	base := 30 * time.Second
	assert.Equal(t, 30*time.Second, Backoff(base, 1))
	assert.Equal(t, 60*time.Second, Backoff(base, 2))
	assert.Equal(t, 120*time.Second, Backoff(base, 3))
	assert.Equal(t, 30*time.Second, Backoff(base, 0))
}

func TestWebhookDeliverySuccess(t *testing.T) {
	db := dbtest.New(t)
	ctx := context.Background()
	form, fields := seedForm(t, db)

	var got *http.Request
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r
		body, _ = io.ReadAll(r.Body)
		w.Write([]byte(strings.Repeat("é", 1500)))
	}))
	defer srv.Close()

	hook := &models.Webhook{BusinessID: "org_1", URL: srv.URL, Secret: "s3cret-value", Enabled: true}
	require.NoError(t, repositories.NewWebhookRepository(db).Create(ctx, hook))
	require.Equal(t, 1, enqueue(t, db, form, fields))

	clock := time.Now()
	n, err := newDispatcher(db, nil, &clock).Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NotNil(t, got)
	assert.Equal(t, "application/json", got.Header.Get("Content-Type"))
	assert.Equal(t, "s3cret-value", got.Header.Get("X-Webhook-Secret"))
	assert.Equal(t, EventSubmissionCreated, got.Header.Get("X-Webhook-Event"))
	assert.True(t, Verify("s3cret-value", body, got.Header.Get("X-Webhook-Signature")))

	var event models.WebhookEvent
	require.NoError(t, json.Unmarshal(body, &event))
	assert.Equal(t, form.ID, event.FormID)

	entries, err := repositories.NewWebhookRepository(db).ListEntries(ctx, hook.ID, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.DeliveryStatusSuccess, entries[0].Status)
	assert.Equal(t, MaxResponseChars, len([]rune(*entries[0].Response)))

	stored, err := repositories.NewWebhookRepository(db).GetByID(ctx, hook.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastStatus)
	assert.Equal(t, models.DeliveryStatusSuccess, *stored.LastStatus)

	n, err = newDispatcher(db, nil, &clock).Drain(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "done jobs are not retried")
}

func TestWebhookFailureRetriesThenDies(t *testing.T) {
	db := dbtest.New(t)
	ctx := context.Background()
	form, fields := seedForm(t, db)

	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	hook := &models.Webhook{BusinessID: "org_1", FormID: &form.ID, URL: srv.URL, Secret: "s3cret-value", Enabled: true}
	require.NoError(t, repositories.NewWebhookRepository(db).Create(ctx, hook))
	enqueue(t, db, form, fields)

	clock := time.Now()
	d := newDispatcher(db, nil, &clock)

	_, err := d.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	// not due until the backoff elapses
	n, err := d.Drain(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	for i := 0; i < 2; i++ {
		clock = clock.Add(time.Hour)
		_, err = d.Drain(ctx)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, calls)

	clock = clock.Add(24 * time.Hour)
	n, err = d.Drain(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "job is dead after max attempts")

	entries, err := repositories.NewWebhookRepository(db).ListEntries(ctx, hook.ID, 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for _, e := range entries {
		assert.Equal(t, models.DeliveryStatusFailed, e.Status)
		assert.Equal(t, http.StatusInternalServerError, *e.StatusCode)
	}
}

func TestDisabledWebhookIsSkipped(t *testing.T) {
	db := dbtest.New(t)
	ctx := context.Background()
	form, fields := seedForm(t, db)

	hook := &models.Webhook{BusinessID: "org_1", URL: "http://127.0.0.1:1", Secret: "s3cret-value", Enabled: false}
	require.NoError(t, repositories.NewWebhookRepository(db).Create(ctx, hook))
	assert.Zero(t, enqueue(t, db, form, fields))
}

func TestEmailJob(t *testing.T) {
	db := dbtest.New(t)
	ctx := context.Background()
	form, fields := seedForm(t, db)

	n := &models.Notification{BusinessID: "org_1", Recipients: []string{"ops@acme.test"}, Enabled: true}
	require.NoError(t, repositories.NewNotificationRepository(db).Create(ctx, n))
	require.Equal(t, 1, enqueue(t, db, form, fields))

	mailer := &fakeMailer{}
	clock := time.Now()
	_, err := newDispatcher(db, mailer, &clock).Drain(ctx)
	require.NoError(t, err)

	require.Len(t, mailer.sent, 1)
	assert.Equal(t, []string{"ops@acme.test"}, mailer.sent[0].To)
	assert.Equal(t, "New submission: Contact", mailer.sent[0].Subject)
	assert.Contains(t, mailer.sent[0].Body, "a@b.co")
}

func TestSMTPMailer(t *testing.T) {
	m := NewSMTPMailer(config.SMTPConfig{Host: "mail.test", Port: 2525, FromAddress: "forms@acme.test", FromName: "Forms"})

	var addr, from string
	var raw []byte
	m.send = func(a string, _ smtp.Auth, f string, _ []string, msg []byte) error {
		addr, from, raw = a, f, msg
		return nil
	}

	require.NoError(t, m.Send(context.Background(), EmailMessage{To: []string{"ops@acme.test"}, Subject: "Hi", Body: "<p>x</p>"}))
	assert.Equal(t, "mail.test:2525", addr)
	assert.Equal(t, "forms@acme.test", from)
	assert.Contains(t, string(raw), "From: Forms <forms@acme.test>\r\n")
	assert.Contains(t, string(raw), "Subject: Hi\r\n")

	assert.Error(t, m.Send(context.Background(), EmailMessage{}))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "hé", truncate("héllo", 2))
}
