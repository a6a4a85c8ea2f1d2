package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"formsmith/internal/platform/database"
)

// Entry is one immutable history record. Seq is the insertion order and
// never leaves the server except inside an opaque cursor.
type Entry struct {
	Seq       int64         `json:"-"`
	ID        string        `json:"id"`
	FormID    string        `json:"form_id"`
	UserID    string        `json:"user_id"`
	EditType  EditType      `json:"edit_type"`
	Details   ChangeDetails `json:"change_details"`
	CreatedAt int64         `json:"created_at"`
}

// Record appends a history entry for formID and returns its id. db may be a
// transaction so the entry commits together with the change it describes.
func Record(ctx context.Context, db database.DBTX, formID, userID string, details ChangeDetails) (string, error) {
	e := &Entry{FormID: formID, UserID: userID, Details: details}
	if err := insert(ctx, db, e); err != nil {
		return "", err
	}
	return e.ID, nil
}

func insert(ctx context.Context, db database.DBTX, e *Entry) error {
	if e.Details == nil {
		return errors.New("history entry has no details")
	}
	payload, err := json.Marshal(e.Details)
	if err != nil {
		return fmt.Errorf("encode change details: %w", err)
	}

	e.ID = "hist_" + uuid.New().String()
	e.EditType = e.Details.EditType()
	e.CreatedAt = time.Now().UnixMilli()

	res, err := db.ExecContext(ctx, `
		INSERT INTO edit_history (id, form_id, user_id, edit_type, change_details, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.ID, e.FormID, e.UserID, e.EditType, string(payload), e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert history entry: %w", err)
	}
	seq, err := res.LastInsertId()
	if err == nil {
		e.Seq = seq
	}
	return nil
}

type store struct {
	db database.DBTX
}

const entryColumns = `seq, id, form_id, user_id, edit_type, change_details, created_at`

func scanEntry(row interface{ Scan(...any) error }) (*Entry, error) {
	e := &Entry{}
	var raw string
	if err := row.Scan(&e.Seq, &e.ID, &e.FormID, &e.UserID, &e.EditType, &raw, &e.CreatedAt); err != nil {
		return nil, err
	}
	d, err := DecodeDetails(e.EditType, []byte(raw))
	if err != nil {
		return nil, err
	}
	e.Details = d
	return e, nil
}

func (s store) get(ctx context.Context, id string) (*Entry, error) {
	e, err := scanEntry(s.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM edit_history WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return e, nil
}

// page returns up to limit entries newest first with seq below beforeSeq
// (0 starts at the newest).
func (s store) page(ctx context.Context, formID string, beforeSeq int64, limit int) ([]*Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM edit_history WHERE form_id = ?`
	args := []any{formID}
	if beforeSeq > 0 {
		query += ` AND seq < ?`
		args = append(args, beforeSeq)
	}
	query += ` ORDER BY seq DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []*Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
