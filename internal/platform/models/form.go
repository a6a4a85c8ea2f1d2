package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

type FormStatus string

const (
	FormStatusDraft     FormStatus = "draft"
	FormStatusPublished FormStatus = "published"
	FormStatusArchived  FormStatus = "archived"
)

func (s FormStatus) Valid() bool {
	switch s {
	case FormStatusDraft, FormStatusPublished, FormStatusArchived:
		return true
	}
	return false
}

type FieldType string

const (
	FieldSingleLine FieldType = "singleline"
	FieldMultiLine  FieldType = "multiline"
	FieldNumber     FieldType = "number"
	FieldSelect     FieldType = "select"
	FieldCheckbox   FieldType = "checkbox"
	FieldDate       FieldType = "date"
)

func (t FieldType) Valid() bool {
	switch t {
	case FieldSingleLine, FieldMultiLine, FieldNumber, FieldSelect, FieldCheckbox, FieldDate:
		return true
	}
	return false
}

// HasOptions reports whether fields of this type carry a fixed option list.
func (t FieldType) HasOptions() bool {
	return t == FieldSelect || t == FieldCheckbox
}

type Form struct {
	ID              string     `json:"id"`
	BusinessID      string     `json:"business_id"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	SuccessMessage  string     `json:"success_message"`
	Status          FormStatus `json:"status"`
	SubmissionCount int        `json:"submission_count"`
	Version         int        `json:"version"`
	LastUpdatedAt   *int64     `json:"last_updated_at,omitempty"`
	CreatedAt       int64      `json:"created_at"`

	Fields []*Field `json:"fields,omitempty"`
	Tags   []*Tag   `json:"tags,omitempty"`
}

type Field struct {
	ID          string    `json:"id"`
	FormID      string    `json:"form_id"`
	Type        FieldType `json:"type"`
	Title       string    `json:"title"`
	Placeholder *string   `json:"placeholder,omitempty"`
	Required    bool      `json:"required"`
	Order       int       `json:"order"`
	Options     []string  `json:"options,omitempty"` // JSON array in DB
	CreatedAt   int64     `json:"created_at"`
}

type Tag struct {
	ID         string `json:"id"`
	BusinessID string `json:"business_id"`
	Name       string `json:"name"`
	Color      string `json:"color"`
	CreatedAt  int64  `json:"created_at"`
}

// SubmissionValue is either a single string or, for checkbox fields, a list.
type SubmissionValue struct {
	Text    string
	Multi   []string
	IsMulti bool
}

func TextValue(s string) SubmissionValue {
	return SubmissionValue{Text: s}
}

func MultiValue(values []string) SubmissionValue {
	return SubmissionValue{Multi: values, IsMulti: true}
}

// String renders the value for exports; lists are joined with ", ".
func (v SubmissionValue) String() string {
	if v.IsMulti {
		return strings.Join(v.Multi, ", ")
	}
	return v.Text
}

func (v SubmissionValue) IsEmpty() bool {
	if v.IsMulti {
		return len(v.Multi) == 0
	}
	return strings.TrimSpace(v.Text) == ""
}

func (v SubmissionValue) MarshalJSON() ([]byte, error) {
	if v.IsMulti {
		if v.Multi == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.Multi)
	}
	return json.Marshal(v.Text)
}

func (v *SubmissionValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var multi []string
		if err := json.Unmarshal(data, &multi); err != nil {
			return fmt.Errorf("submission value must be a string or list of strings: %w", err)
		}
		*v = MultiValue(multi)
		return nil
	}
	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		return fmt.Errorf("submission value must be a string or list of strings: %w", err)
	}
	*v = TextValue(text)
	return nil
}

type Submission struct {
	ID          string                     `json:"id"`
	FormID      string                     `json:"form_id"`
	Data        map[string]SubmissionValue `json:"data"`
	SubmittedAt int64                      `json:"submitted_at"`
}
