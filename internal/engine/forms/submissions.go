package forms

import (
	"context"
	"database/sql"
	"encoding/base64"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"formsmith/internal/engine/delivery"
	"formsmith/internal/engine/events"
	apperrors "formsmith/internal/pkg/errors"
	"formsmith/internal/platform/database"
	"formsmith/internal/platform/models"
	"formsmith/internal/platform/repositories"
)

const (
	defaultSubmissionPage = 25
	maxSubmissionPage     = 100
)

type SubmissionPage struct {
	Submissions []*models.Submission `json:"submissions"`
	NextCursor  string               `json:"next_cursor,omitempty"`
	HasMore     bool                 `json:"has_more"`
}

// Submit stores an anonymous submission to a published form, bumps the
// form's counter and queues deliveries, all in one transaction. Values for
// unknown fields are dropped.
func (s *Service) Submit(ctx context.Context, formID string, data map[string]models.SubmissionValue) (*models.Submission, error) {
	form, err := repositories.NewFormRepository(s.db).GetByID(ctx, formID)
	if err != nil {
		return nil, fmt.Errorf("load form: %w", err)
	}
	if form == nil || form.Status != models.FormStatusPublished {
		return nil, apperrors.ErrNotFound
	}
	fields, err := s.publicFields(ctx, form)
	if err != nil {
		return nil, err
	}

	clean, err := ValidateSubmission(fields, data)
	if err != nil {
		return nil, err
	}

	sub := &models.Submission{FormID: form.ID, Data: clean}
	var queued int
	err = database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := repositories.NewSubmissionRepository(tx).Create(ctx, sub); err != nil {
			return fmt.Errorf("store submission: %w", err)
		}
		if err := repositories.NewFormRepository(tx).IncrementSubmissionCount(ctx, form.ID); err != nil {
			return err
		}
		queued, err = delivery.EnqueueSubmission(ctx, tx, form, fields, sub)
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("form_id", form.ID).Str("submission_id", sub.ID).Int("deliveries", queued).Msg("submission received")
	events.PublishAsync(s.publisher, events.Event{
		Type:       events.SubmissionCreated,
		BusinessID: form.BusinessID,
		FormID:     form.ID,
		Data:       map[string]string{"submission_id": sub.ID},
	})
	return sub, nil
}

// ValidateSubmission checks required fields and value shapes and returns
// the values keyed by known field ids.
func ValidateSubmission(fields []*models.Field, data map[string]models.SubmissionValue) (map[string]models.SubmissionValue, error) {
	problems := map[string]string{}
	clean := make(map[string]models.SubmissionValue, len(fields))

	for _, f := range fields {
		v, ok := data[f.ID]
		if !ok || v.IsEmpty() {
			if f.Required {
				problems[f.ID] = "is required"
			}
			continue
		}
		if msg := checkValue(f, v); msg != "" {
			problems[f.ID] = msg
			continue
		}
		if !v.IsMulti {
			v.Text = strings.TrimSpace(v.Text)
		}
		clean[f.ID] = v
	}

	if len(problems) > 0 {
		return nil, apperrors.NewValidationError("submission is invalid", problems)
	}
	return clean, nil
}

func checkValue(f *models.Field, v models.SubmissionValue) string {
	if f.Type == models.FieldCheckbox {
		values := v.Multi
		if !v.IsMulti {
			values = []string{v.Text}
		}
		for _, item := range values {
			if !slices.Contains(f.Options, item) {
				return fmt.Sprintf("%q is not an option", item)
			}
		}
		return ""
	}

	if v.IsMulti {
		return "must be a single value"
	}
	text := strings.TrimSpace(v.Text)

	switch f.Type {
	case models.FieldSingleLine:
		if len(text) > 1000 {
			return "is too long"
		}
	case models.FieldMultiLine:
		if len(text) > 10000 {
			return "is too long"
		}
	case models.FieldNumber:
		if _, err := strconv.ParseFloat(text, 64); err != nil {
			return "must be a number"
		}
	case models.FieldSelect:
		if !slices.Contains(f.Options, text) {
			return fmt.Sprintf("%q is not an option", text)
		}
	case models.FieldDate:
		if _, err := time.Parse("2006-01-02", text); err != nil {
			return "must be a date (YYYY-MM-DD)"
		}
	}
	return ""
}

// ListSubmissions pages through a form's submissions newest first.
func (s *Service) ListSubmissions(ctx context.Context, formID, businessID, cursor string, limit int) (*SubmissionPage, error) {
	if _, _, err := s.authorizeForm(ctx, formID, businessID); err != nil {
		return nil, err
	}

	var before int64
	if cursor != "" {
		raw, err := base64.RawURLEncoding.DecodeString(cursor)
		if err == nil {
			before, err = strconv.ParseInt(string(raw), 10, 64)
		}
		if err != nil || before <= 0 {
			return nil, apperrors.NewValidationError("invalid cursor", map[string]string{"cursor": "malformed"})
		}
	}
	if limit <= 0 {
		limit = defaultSubmissionPage
	}
	if limit > maxSubmissionPage {
		limit = maxSubmissionPage
	}

	repo := repositories.NewSubmissionRepository(s.db)
	subs, last, err := repo.ListPage(ctx, formID, before, limit)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	page := &SubmissionPage{Submissions: subs}
	if len(subs) == limit {
		next, _, err := repo.ListPage(ctx, formID, last, 1)
		if err != nil {
			return nil, fmt.Errorf("list submissions: %w", err)
		}
		if len(next) > 0 {
			page.HasMore = true
			page.NextCursor = base64.RawURLEncoding.EncodeToString([]byte(strconv.FormatInt(last, 10)))
		}
	}
	return page, nil
}

func (s *Service) GetSubmission(ctx context.Context, formID, submissionID, businessID string) (*models.Submission, error) {
	if _, _, err := s.authorizeForm(ctx, formID, businessID); err != nil {
		return nil, err
	}
	sub, err := repositories.NewSubmissionRepository(s.db).GetByID(ctx, submissionID)
	if err != nil {
		return nil, fmt.Errorf("load submission: %w", err)
	}
	if sub == nil || sub.FormID != formID {
		return nil, apperrors.ErrNotFound
	}
	return sub, nil
}

// DeleteSubmission removes a submission and decrements the form's counter,
// never below zero.
func (s *Service) DeleteSubmission(ctx context.Context, formID, submissionID, businessID string) error {
	if _, err := s.GetSubmission(ctx, formID, submissionID, businessID); err != nil {
		return err
	}
	return database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		deleted, err := repositories.NewSubmissionRepository(tx).Delete(ctx, submissionID)
		if err != nil {
			return fmt.Errorf("delete submission: %w", err)
		}
		if !deleted {
			return apperrors.ErrNotFound
		}
		return repositories.NewFormRepository(tx).DecrementSubmissionCount(ctx, formID)
	})
}
