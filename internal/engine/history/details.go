package history

import (
	"encoding/json"
	"fmt"
)

type EditType string

const (
	EditFormCreated       EditType = "form_created"
	EditFormUpdated       EditType = "form_updated"
	EditFormStatusChanged EditType = "form_status_changed"
	EditFieldCreated      EditType = "field_created"
	EditFieldUpdated      EditType = "field_updated"
	EditFieldDeleted      EditType = "field_deleted"
	EditFieldsReordered   EditType = "fields_reordered"
	EditRestored          EditType = "restored"
)

// ChangeDetails is the payload of one history entry. Each edit type has its
// own variant; the set is closed to this package.
type ChangeDetails interface {
	EditType() EditType
	isChangeDetails()
}

type FormCreatedDetails struct {
	Title string `json:"title"`
}

// FormUpdatedDetails carries only the pairs that changed.
type FormUpdatedDetails struct {
	OldTitle       *string `json:"oldTitle,omitempty"`
	NewTitle       *string `json:"newTitle,omitempty"`
	OldDescription *string `json:"oldDescription,omitempty"`
	NewDescription *string `json:"newDescription,omitempty"`
}

type FormStatusChangedDetails struct {
	OldStatus string `json:"oldStatus"`
	NewStatus string `json:"newStatus"`
}

type FieldCreatedDetails struct {
	FieldID    string `json:"fieldId"`
	FieldTitle string `json:"fieldTitle"`
	FieldType  string `json:"fieldType"`
}

// FieldUpdatedDetails carries only the pairs that changed. An empty
// placeholder and an empty option list both mean "none".
type FieldUpdatedDetails struct {
	FieldID        string    `json:"fieldId"`
	FieldTitle     string    `json:"fieldTitle"`
	FieldType      string    `json:"fieldType"`
	OldTitle       *string   `json:"oldTitle,omitempty"`
	NewTitle       *string   `json:"newTitle,omitempty"`
	OldPlaceholder *string   `json:"oldPlaceholder,omitempty"`
	NewPlaceholder *string   `json:"newPlaceholder,omitempty"`
	OldRequired    *bool     `json:"oldRequired,omitempty"`
	NewRequired    *bool     `json:"newRequired,omitempty"`
	OldOptions     *[]string `json:"oldOptions,omitempty"`
	NewOptions     *[]string `json:"newOptions,omitempty"`
}

// HasChanges reports whether any attribute pair is present.
func (d *FieldUpdatedDetails) HasChanges() bool {
	return d.OldTitle != nil || d.OldPlaceholder != nil || d.OldRequired != nil || d.OldOptions != nil
}

// FieldDeletedDetails snapshots the field so the deletion can be undone.
type FieldDeletedDetails struct {
	FieldID     string   `json:"fieldId"`
	FieldTitle  string   `json:"fieldTitle"`
	FieldType   string   `json:"fieldType"`
	Required    bool     `json:"required"`
	Placeholder *string  `json:"placeholder,omitempty"`
	Options     []string `json:"options,omitempty"`
}

type FieldsReorderedDetails struct {
	FieldIDs []string `json:"fieldIds"`
}

// RestoredDetails points at the entry that was undone and carries the
// pairs describing the reversal itself.
type RestoredDetails struct {
	RestoredFromID string `json:"restoredFromId"`
	RestoredAction string `json:"restoredAction"`

	FieldID    string `json:"fieldId,omitempty"`
	FieldTitle string `json:"fieldTitle,omitempty"`
	FieldType  string `json:"fieldType,omitempty"`

	OldTitle       *string   `json:"oldTitle,omitempty"`
	NewTitle       *string   `json:"newTitle,omitempty"`
	OldDescription *string   `json:"oldDescription,omitempty"`
	NewDescription *string   `json:"newDescription,omitempty"`
	OldStatus      *string   `json:"oldStatus,omitempty"`
	NewStatus      *string   `json:"newStatus,omitempty"`
	OldPlaceholder *string   `json:"oldPlaceholder,omitempty"`
	NewPlaceholder *string   `json:"newPlaceholder,omitempty"`
	OldRequired    *bool     `json:"oldRequired,omitempty"`
	NewRequired    *bool     `json:"newRequired,omitempty"`
	OldOptions     *[]string `json:"oldOptions,omitempty"`
	NewOptions     *[]string `json:"newOptions,omitempty"`
}

func (*FormCreatedDetails) EditType() EditType       { return EditFormCreated }
func (*FormUpdatedDetails) EditType() EditType       { return EditFormUpdated }
func (*FormStatusChangedDetails) EditType() EditType { return EditFormStatusChanged }
func (*FieldCreatedDetails) EditType() EditType      { return EditFieldCreated }
func (*FieldUpdatedDetails) EditType() EditType      { return EditFieldUpdated }
func (*FieldDeletedDetails) EditType() EditType      { return EditFieldDeleted }
func (*FieldsReorderedDetails) EditType() EditType   { return EditFieldsReordered }
func (*RestoredDetails) EditType() EditType          { return EditRestored }

func (*FormCreatedDetails) isChangeDetails()       {}
func (*FormUpdatedDetails) isChangeDetails()       {}
func (*FormStatusChangedDetails) isChangeDetails() {}
func (*FieldCreatedDetails) isChangeDetails()      {}
func (*FieldUpdatedDetails) isChangeDetails()      {}
func (*FieldDeletedDetails) isChangeDetails()      {}
func (*FieldsReorderedDetails) isChangeDetails()   {}
func (*RestoredDetails) isChangeDetails()          {}

// DecodeDetails parses a stored payload into the variant for editType.
func DecodeDetails(editType EditType, raw []byte) (ChangeDetails, error) {
	var d ChangeDetails
	switch editType {
	case EditFormCreated:
		d = &FormCreatedDetails{}
	case EditFormUpdated:
		d = &FormUpdatedDetails{}
	case EditFormStatusChanged:
		d = &FormStatusChangedDetails{}
	case EditFieldCreated:
		d = &FieldCreatedDetails{}
	case EditFieldUpdated:
		d = &FieldUpdatedDetails{}
	case EditFieldDeleted:
		d = &FieldDeletedDetails{}
	case EditFieldsReordered:
		d = &FieldsReorderedDetails{}
	case EditRestored:
		d = &RestoredDetails{}
	default:
		return nil, fmt.Errorf("unknown edit type %q", editType)
	}
	if err := json.Unmarshal(raw, d); err != nil {
		return nil, fmt.Errorf("decode %s details: %w", editType, err)
	}
	return d, nil
}
