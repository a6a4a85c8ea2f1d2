package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"formsmith/internal/platform/database"
	"formsmith/internal/platform/models"
)

type ChatRepository struct {
	db database.DBTX
}

func NewChatRepository(db database.DBTX) *ChatRepository {
	return &ChatRepository{db: db}
}

const chatColumns = `id, form_id, business_id, user_id, role, content, stream_id, created_at`

func scanChat(row interface{ Scan(...any) error }) (*models.ChatMessage, error) {
	var m models.ChatMessage
	var streamID sql.NullString
	if err := row.Scan(&m.ID, &m.FormID, &m.BusinessID, &m.UserID, &m.Role, &m.Content, &streamID, &m.CreatedAt); err != nil {
		return nil, err
	}
	m.StreamID = stringPtr(streamID)
	return &m, nil
}

func (r *ChatRepository) Create(ctx context.Context, m *models.ChatMessage) error {
	if m.ID == "" {
		m.ID = "msg_" + uuid.New().String()
	}
	m.CreatedAt = now()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO chat_messages (id, form_id, business_id, user_id, role, content, stream_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, m.ID, m.FormID, m.BusinessID, m.UserID, m.Role, m.Content, m.StreamID, m.CreatedAt)
	return err
}

func (r *ChatRepository) GetByStreamID(ctx context.Context, streamID string) (*models.ChatMessage, error) {
	m, err := scanChat(r.db.QueryRowContext(ctx, `SELECT `+chatColumns+` FROM chat_messages WHERE stream_id = ?`, streamID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return m, nil
}

// ListByForm returns the conversation oldest first.
func (r *ChatRepository) ListByForm(ctx context.Context, formID string) ([]*models.ChatMessage, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+chatColumns+` FROM chat_messages WHERE form_id = ? ORDER BY created_at ASC, rowid ASC
	`, formID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []*models.ChatMessage{}
	for rows.Next() {
		m, err := scanChat(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// AppendContent adds a streamed chunk to an assistant message.
func (r *ChatRepository) AppendContent(ctx context.Context, id, chunk string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE chat_messages SET content = content || ? WHERE id = ?`, chunk, id)
	return err
}

func (r *ChatRepository) GetByID(ctx context.Context, id string) (*models.ChatMessage, error) {
	m, err := scanChat(r.db.QueryRowContext(ctx, `SELECT `+chatColumns+` FROM chat_messages WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return m, nil
}
