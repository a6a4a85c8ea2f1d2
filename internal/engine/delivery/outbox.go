package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/google/uuid"

	"formsmith/internal/platform/database"
	"formsmith/internal/platform/models"
	"formsmith/internal/platform/repositories"
)

const EventSubmissionCreated = "submission.created"

// SubmissionData is the "data" object of a submission.created webhook.
type SubmissionData struct {
	SubmissionID string                            `json:"submission_id"`
	FormTitle    string                            `json:"form_title"`
	SubmittedAt  int64                             `json:"submitted_at"`
	Fields       []FieldValue                      `json:"fields"`
	Data         map[string]models.SubmissionValue `json:"data"`
}

type FieldValue struct {
	FieldID string                 `json:"field_id"`
	Title   string                 `json:"title"`
	Type    models.FieldType       `json:"type"`
	Value   models.SubmissionValue `json:"value"`
}

// EmailMessage is the payload of an email job.
type EmailMessage struct {
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Body    string   `json:"body"`
}

// EnqueueSubmission queues one job per enabled webhook and notification
// matching the form. Run it in the transaction that stores the submission
// so deliveries exist exactly when the submission does.
func EnqueueSubmission(ctx context.Context, db database.DBTX, form *models.Form, fields []*models.Field, sub *models.Submission) (int, error) {
	webhooks, err := repositories.NewWebhookRepository(db).ListActiveForForm(ctx, form.BusinessID, form.ID)
	if err != nil {
		return 0, fmt.Errorf("list webhooks: %w", err)
	}
	notifications, err := repositories.NewNotificationRepository(db).ListActiveForForm(ctx, form.BusinessID, form.ID)
	if err != nil {
		return 0, fmt.Errorf("list notifications: %w", err)
	}
	if len(webhooks) == 0 && len(notifications) == 0 {
		return 0, nil
	}

	outbox := repositories.NewOutboxRepository(db)
	queued := 0

	if len(webhooks) > 0 {
		event := models.WebhookEvent{
			ID:         "evt_" + uuid.New().String(),
			Event:      EventSubmissionCreated,
			Timestamp:  time.Now().UnixMilli(),
			BusinessID: form.BusinessID,
			FormID:     form.ID,
			Data:       submissionData(form, fields, sub),
		}
		payload, err := json.Marshal(event)
		if err != nil {
			return 0, err
		}
		for _, w := range webhooks {
			job := &models.OutboxJob{Kind: models.JobKindWebhook, TargetID: w.ID, Event: EventSubmissionCreated, Payload: payload}
			if err := outbox.Enqueue(ctx, job); err != nil {
				return queued, fmt.Errorf("enqueue webhook job: %w", err)
			}
			queued++
		}
	}

	for _, n := range notifications {
		if len(n.Recipients) == 0 {
			continue
		}
		payload, err := json.Marshal(EmailMessage{
			To:      n.Recipients,
			Subject: fmt.Sprintf("New submission: %s", form.Title),
			Body:    submissionEmailBody(form, fields, sub),
		})
		if err != nil {
			return queued, err
		}
		job := &models.OutboxJob{Kind: models.JobKindEmail, TargetID: n.ID, Event: EventSubmissionCreated, Payload: payload}
		if err := outbox.Enqueue(ctx, job); err != nil {
			return queued, fmt.Errorf("enqueue email job: %w", err)
		}
		queued++
	}
	return queued, nil
}

func submissionData(form *models.Form, fields []*models.Field, sub *models.Submission) SubmissionData {
	data := SubmissionData{
		SubmissionID: sub.ID,
		FormTitle:    form.Title,
		SubmittedAt:  sub.SubmittedAt,
		Data:         sub.Data,
		Fields:       make([]FieldValue, 0, len(fields)),
	}
	for _, f := range fields {
		v, ok := sub.Data[f.ID]
		if !ok {
			continue
		}
		data.Fields = append(data.Fields, FieldValue{FieldID: f.ID, Title: f.Title, Type: f.Type, Value: v})
	}
	return data
}

func submissionEmailBody(form *models.Form, fields []*models.Field, sub *models.Submission) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<h2>New submission for %s</h2>\n<table>\n", html.EscapeString(form.Title))
	for _, f := range fields {
		v, ok := sub.Data[f.ID]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "<tr><th align=\"left\">%s</th><td>%s</td></tr>\n", html.EscapeString(f.Title), html.EscapeString(v.String()))
	}
	b.WriteString("</table>\n")
	fmt.Fprintf(&b, "<p>Submitted at %s</p>\n", time.UnixMilli(sub.SubmittedAt).UTC().Format(time.RFC1123))
	return b.String()
}
