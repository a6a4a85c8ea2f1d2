package repositories

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"formsmith/internal/platform/database"
	"formsmith/internal/platform/models"
)

type OutboxRepository struct {
	db database.DBTX
}

func NewOutboxRepository(db database.DBTX) *OutboxRepository {
	return &OutboxRepository{db: db}
}

// Enqueue stores a pending job that is due immediately.
func (r *OutboxRepository) Enqueue(ctx context.Context, job *models.OutboxJob) error {
	job.ID = "job_" + uuid.New().String()
	job.Status = models.JobStatusPending
	job.CreatedAt = now()
	job.UpdatedAt = job.CreatedAt
	if job.NextAttemptAt == 0 {
		job.NextAttemptAt = job.CreatedAt
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO outbox_jobs (id, kind, target_id, event, payload, status, attempts, next_attempt_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?, ?)
	`, job.ID, job.Kind, job.TargetID, job.Event, string(job.Payload), job.Status, job.NextAttemptAt, job.CreatedAt, job.UpdatedAt)
	return err
}

// Due returns pending jobs whose next attempt is at or before at, oldest first.
func (r *OutboxRepository) Due(ctx context.Context, at int64, limit int) ([]*models.OutboxJob, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, kind, target_id, event, payload, status, attempts, next_attempt_at, last_error, created_at, updated_at
		FROM outbox_jobs WHERE status = ? AND next_attempt_at <= ?
		ORDER BY next_attempt_at ASC, created_at ASC LIMIT ?
	`, models.JobStatusPending, at, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := []*models.OutboxJob{}
	for rows.Next() {
		var j models.OutboxJob
		var payload string
		var lastError sql.NullString
		if err := rows.Scan(&j.ID, &j.Kind, &j.TargetID, &j.Event, &payload, &j.Status, &j.Attempts, &j.NextAttemptAt, &lastError, &j.CreatedAt, &j.UpdatedAt); err != nil {
			return nil, err
		}
		j.Payload = []byte(payload)
		j.LastError = stringPtr(lastError)
		jobs = append(jobs, &j)
	}
	return jobs, rows.Err()
}

func (r *OutboxRepository) MarkDone(ctx context.Context, id string, attempts int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE outbox_jobs SET status = ?, attempts = ?, last_error = NULL, updated_at = ? WHERE id = ?
	`, models.JobStatusDone, attempts, now(), id)
	return err
}

// MarkFailed records a failed attempt. The job is rescheduled at nextAttemptAt
// or, when dead is set, parked for good.
func (r *OutboxRepository) MarkFailed(ctx context.Context, id string, attempts int, nextAttemptAt int64, lastError string, dead bool) error {
	status := models.JobStatusPending
	if dead {
		status = models.JobStatusDead
	}
	_, err := r.db.ExecContext(ctx, `
		UPDATE outbox_jobs SET status = ?, attempts = ?, next_attempt_at = ?, last_error = ?, updated_at = ? WHERE id = ?
	`, status, attempts, nextAttemptAt, lastError, now(), id)
	return err
}

func (r *OutboxRepository) GetByID(ctx context.Context, id string) (*models.OutboxJob, error) {
	var j models.OutboxJob
	var payload string
	var lastError sql.NullString
	err := r.db.QueryRowContext(ctx, `
		SELECT id, kind, target_id, event, payload, status, attempts, next_attempt_at, last_error, created_at, updated_at
		FROM outbox_jobs WHERE id = ?
	`, id).Scan(&j.ID, &j.Kind, &j.TargetID, &j.Event, &payload, &j.Status, &j.Attempts, &j.NextAttemptAt, &lastError, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	j.Payload = []byte(payload)
	j.LastError = stringPtr(lastError)
	return &j, nil
}
