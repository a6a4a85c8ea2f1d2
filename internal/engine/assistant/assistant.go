// Package assistant stores per-form chat threads, streams model replies
// into them and executes the model's tool calls against the forms engine.
package assistant

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"formsmith/internal/engine/forms"
	"formsmith/internal/engine/history"
	"formsmith/internal/engine/permissions"
	apperrors "formsmith/internal/pkg/errors"
	"formsmith/internal/platform/models"
	"formsmith/internal/platform/repositories"
)

// RecentHistory is how many history entries are handed to the model.
const RecentHistory = 10

// Prompt is everything the model sees for one reply.
type Prompt struct {
	Form     *models.Form
	Fields   []*models.Field
	History  []*history.Entry
	Messages []*models.ChatMessage
}

// Model produces a reply for prompt, calling emit once per chunk. No
// implementation ships with formsmith; deployments plug in their provider.
type Model interface {
	Stream(ctx context.Context, prompt Prompt, emit func(chunk string) error) error
}

type Service struct {
	db       *sql.DB
	resolver *permissions.Resolver
	forms    *forms.Service
	model    Model
}

// NewService wires the assistant. model may be nil, in which case streaming
// reports ErrUnavailable and everything else keeps working.
func NewService(db *sql.DB, resolver *permissions.Resolver, formsSvc *forms.Service, model Model) *Service {
	return &Service{db: db, resolver: resolver, forms: formsSvc, model: model}
}

func (s *Service) authorizeForm(ctx context.Context, formID, businessID string) (*permissions.Scope, *models.Form, error) {
	return s.resolver.AuthorizeForm(ctx, repositories.NewFormRepository(s.db), formID, businessID)
}

func (s *Service) ListMessages(ctx context.Context, formID, businessID string) ([]*models.ChatMessage, error) {
	if _, _, err := s.authorizeForm(ctx, formID, businessID); err != nil {
		return nil, err
	}
	return repositories.NewChatRepository(s.db).ListByForm(ctx, formID)
}

// PostMessage stores a user message and returns it with the stream id the
// client passes to the streaming endpoint.
func (s *Service) PostMessage(ctx context.Context, formID, businessID, content string) (*models.ChatMessage, error) {
	scope, form, err := s.authorizeForm(ctx, formID, businessID)
	if err != nil {
		return nil, err
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperrors.NewValidationError("validation failed", map[string]string{"content": "is required"})
	}
	if len(content) > 8000 {
		return nil, apperrors.NewValidationError("validation failed", map[string]string{"content": "must be at most 8000 characters"})
	}

	streamID := "str_" + uuid.New().String()
	msg := &models.ChatMessage{
		FormID:     form.ID,
		BusinessID: scope.BusinessID,
		UserID:     scope.UserID(),
		Role:       models.ChatRoleUser,
		Content:    content,
		StreamID:   &streamID,
	}
	if err := repositories.NewChatRepository(s.db).Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("store chat message: %w", err)
	}
	return msg, nil
}

// Stream answers the user message identified by streamID. Each chunk from
// the model is appended to a new assistant message and passed to emit.
func (s *Service) Stream(ctx context.Context, streamID string, emit func(chunk string) error) (*models.ChatMessage, error) {
	if _, err := s.resolver.ResolveIdentity(ctx); err != nil {
		return nil, err
	}
	chats := repositories.NewChatRepository(s.db)
	trigger, err := chats.GetByStreamID(ctx, streamID)
	if err != nil {
		return nil, fmt.Errorf("load chat message: %w", err)
	}
	if trigger == nil {
		return nil, apperrors.ErrNotFound
	}
	scope, form, err := s.authorizeForm(ctx, trigger.FormID, trigger.BusinessID)
	if err != nil {
		return nil, err
	}
	if s.model == nil {
		return nil, fmt.Errorf("assistant: %w", apperrors.ErrUnavailable)
	}

	prompt, err := s.prompt(ctx, form)
	if err != nil {
		return nil, err
	}

	reply := &models.ChatMessage{
		FormID:     form.ID,
		BusinessID: scope.BusinessID,
		UserID:     scope.UserID(),
		Role:       models.ChatRoleAssistant,
	}
	if err := chats.Create(ctx, reply); err != nil {
		return nil, fmt.Errorf("store assistant message: %w", err)
	}

	err = s.model.Stream(ctx, prompt, func(chunk string) error {
		if chunk == "" {
			return nil
		}
		if err := chats.AppendContent(ctx, reply.ID, chunk); err != nil {
			return fmt.Errorf("append chunk: %w", err)
		}
		reply.Content += chunk
		if emit != nil {
			return emit(chunk)
		}
		return nil
	})
	if err != nil {
		log.Warn().Err(err).Str("form_id", form.ID).Str("stream_id", streamID).Msg("assistant stream ended early")
		return reply, err
	}
	return reply, nil
}

func (s *Service) prompt(ctx context.Context, form *models.Form) (Prompt, error) {
	fields, err := repositories.NewFieldRepository(s.db).ListByForm(ctx, form.ID)
	if err != nil {
		return Prompt{}, fmt.Errorf("list fields: %w", err)
	}
	recent, err := history.Recent(ctx, s.db, form.ID, RecentHistory)
	if err != nil {
		return Prompt{}, fmt.Errorf("recent history: %w", err)
	}
	messages, err := repositories.NewChatRepository(s.db).ListByForm(ctx, form.ID)
	if err != nil {
		return Prompt{}, fmt.Errorf("list chat: %w", err)
	}
	return Prompt{Form: form, Fields: fields, History: recent, Messages: messages}, nil
}
