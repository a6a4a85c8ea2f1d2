package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"formsmith/internal/engine/forms"
	apperrors "formsmith/internal/pkg/errors"
	"formsmith/internal/pkg/validator"
	"formsmith/internal/platform/models"
)

// Tool names the model may call.
const (
	ToolUpdateForm    = "update_form"
	ToolChangeStatus  = "change_status"
	ToolAddField      = "add_field"
	ToolUpdateField   = "update_field"
	ToolDeleteField   = "delete_field"
	ToolReorderFields = "reorder_fields"
)

type ToolCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type changeStatusArgs struct {
	Status models.FormStatus `json:"status" validate:"required,oneof=draft published archived"`
}

type updateFieldArgs struct {
	FieldID     string    `json:"field_id" validate:"required"`
	Title       *string   `json:"title"`
	Placeholder *string   `json:"placeholder"`
	Required    *bool     `json:"required"`
	Options     *[]string `json:"options"`
}

func fieldUpdate(in updateFieldArgs) forms.UpdateFieldInput {
	return forms.UpdateFieldInput{
		Title:       in.Title,
		Placeholder: in.Placeholder,
		Required:    in.Required,
		Options:     in.Options,
	}
}

type deleteFieldArgs struct {
	FieldID string `json:"field_id" validate:"required"`
}

// ExecuteTool runs one tool call on formID as the current caller. Every
// change goes through the forms engine, so it is authorized and recorded in
// the edit history like a change made by hand.
func (s *Service) ExecuteTool(ctx context.Context, formID, businessID string, call ToolCall) (any, error) {
	logger := log.With().Str("form_id", formID).Str("tool", call.Name).Logger()

	result, err := s.execute(ctx, formID, businessID, call)
	if err != nil {
		logger.Debug().Err(err).Msg("tool call failed")
		return nil, err
	}
	logger.Info().Msg("tool call applied")
	return result, nil
}

func (s *Service) execute(ctx context.Context, formID, businessID string, call ToolCall) (any, error) {
	switch call.Name {
	case ToolUpdateForm:
		var in forms.UpdateFormInput
		if err := decodeArgs(call.Arguments, &in); err != nil {
			return nil, err
		}
		return s.forms.UpdateForm(ctx, formID, businessID, in)

	case ToolChangeStatus:
		var in changeStatusArgs
		if err := decodeArgs(call.Arguments, &in); err != nil {
			return nil, err
		}
		return s.forms.ChangeStatus(ctx, formID, businessID, in.Status)

	case ToolAddField:
		var in forms.CreateFieldInput
		if err := decodeArgs(call.Arguments, &in); err != nil {
			return nil, err
		}
		return s.forms.CreateField(ctx, formID, businessID, in)

	case ToolUpdateField:
		var in updateFieldArgs
		if err := decodeArgs(call.Arguments, &in); err != nil {
			return nil, err
		}
		return s.forms.UpdateField(ctx, formID, in.FieldID, businessID, fieldUpdate(in))

	case ToolDeleteField:
		var in deleteFieldArgs
		if err := decodeArgs(call.Arguments, &in); err != nil {
			return nil, err
		}
		if err := s.forms.DeleteField(ctx, formID, in.FieldID, businessID); err != nil {
			return nil, err
		}
		return map[string]string{"deleted": in.FieldID}, nil

	case ToolReorderFields:
		var in forms.ReorderInput
		if err := decodeArgs(call.Arguments, &in); err != nil {
			return nil, err
		}
		version, err := s.forms.ReorderFields(ctx, formID, businessID, in)
		if err != nil {
			return nil, err
		}
		return map[string]int{"version": version}, nil

	default:
		return nil, apperrors.NewValidationError("unknown tool", map[string]string{"name": fmt.Sprintf("%q is not a tool", call.Name)})
	}
}

// decodeArgs strictly decodes tool arguments and runs struct validation.
func decodeArgs(raw json.RawMessage, v any) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = json.RawMessage("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apperrors.NewValidationError("invalid tool arguments", map[string]string{"arguments": err.Error()})
	}
	return validator.Struct(v)
}
