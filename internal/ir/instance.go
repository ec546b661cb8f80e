package ir

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"
)

// Status is the lifecycle state of an instance.
type Status string

const (
	StatusDraft    Status = "Draft"
	StatusSent     Status = "Sent"
	StatusReceived Status = "Received"
	StatusClosed   Status = "Closed"
)

// Attachment is a file reference. An empty StepID marks a draft attachment
// bound to the next step to be sent.
type Attachment struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Type    string `json:"type,omitempty"`
	Version string `json:"version,omitempty"`
	Size    int64  `json:"size,omitempty"`
	Status  string `json:"status,omitempty"`
	StepID  string `json:"step_id,omitempty"`
}

// IsDraft reports whether the attachment is not yet bound to a step.
func (a Attachment) IsDraft() bool {
	return a.StepID == ""
}

// AttachmentStatus records the status an attachment had when a gated step was sent.
type AttachmentStatus struct {
	AttachmentID string `json:"attachment_id"`
	Status       string `json:"status"`
}

// Delegation records one additive grant of step access.
type Delegation struct {
	FromGroup string    `json:"from_group"`
	ToGroup   string    `json:"to_group"`
	ByRoleID  string    `json:"by_role_id"`
	At        time.Time `json:"at"`
	Note      string    `json:"note,omitempty"`
}

// Step is the record of one action execution. Only OpenedAt, DelegateGroups
// and DelegationHistory change after creation.
type Step struct {
	ID                       string             `json:"id"`
	ActionID                 string             `json:"action_id"`
	ActionLabel              string             `json:"action_label"`
	FromRoleID               string             `json:"from_role_id"`
	ToGroup                  string             `json:"to_group"`
	ToGroups                 []string           `json:"to_groups"`
	SentAt                   time.Time          `json:"sent_at"`
	OpenedAt                 time.Time          `json:"opened_at,omitzero"`
	DueDate                  time.Time          `json:"due_date,omitzero"`
	LastStep                 bool               `json:"last_step"`
	AllowDelegate            bool               `json:"allow_delegate"`
	RequiresAttachmentStatus bool               `json:"requires_attachment_status"`
	AttachmentStatuses       []AttachmentStatus `json:"attachment_statuses,omitempty"`
	DelegateGroups           []string           `json:"delegate_groups,omitempty"`
	DelegationHistory        []Delegation       `json:"delegation_history,omitempty"`
	CCRoleIDs                []string           `json:"cc_role_ids,omitempty"`
	Message                  string             `json:"message,omitempty"`
}

// IsOpened reports whether a recipient has acknowledged the step.
func (s *Step) IsOpened() bool {
	return !s.OpenedAt.IsZero()
}

// FormHistoryEntry records a change between two non-empty field values.
type FormHistoryEntry struct {
	ID         string     `json:"id"`
	FieldKey   string     `json:"field_key"`
	FieldLabel string     `json:"field_label"`
	From       FieldValue `json:"from"`
	To         FieldValue `json:"to"`
	ByRoleID   string     `json:"by_role_id"`
	StepID     string     `json:"step_id,omitempty"`
	At         time.Time  `json:"at"`
}

// UnmarshalJSON decodes the tagged From and To values.
func (e *FormHistoryEntry) UnmarshalJSON(data []byte) error {
	type entryAlias FormHistoryEntry
	var aux struct {
		entryAlias
		From json.RawMessage `json:"from"`
		To   json.RawMessage `json:"to"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*e = FormHistoryEntry(aux.entryAlias)
	var err error
	if e.From, err = decodeOptionalValue(aux.From); err != nil {
		return fmt.Errorf("form history from: %w", err)
	}
	if e.To, err = decodeOptionalValue(aux.To); err != nil {
		return fmt.Errorf("form history to: %w", err)
	}
	return nil
}

func decodeOptionalValue(raw json.RawMessage) (FieldValue, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	return UnmarshalValue(raw)
}

// ActivityType classifies activity log entries.
type ActivityType string

const (
	ActivityCreate     ActivityType = "create"
	ActivitySend       ActivityType = "send"
	ActivityView       ActivityType = "view"
	ActivityDelegate   ActivityType = "delegate"
	ActivityAttachment ActivityType = "attachment"
	ActivityClose      ActivityType = "close"
)

// ActivityEntry is one append-only audit record.
type ActivityEntry struct {
	ID       string       `json:"id"`
	Type     ActivityType `json:"type"`
	Message  string       `json:"message"`
	ByRoleID string       `json:"by_role_id"`
	StepID   string       `json:"step_id,omitempty"`
	At       time.Time    `json:"at"`
}

// Instance is one document routed through a template's flow.
type Instance struct {
	ID            string             `json:"id"`
	TransmittalNo string             `json:"transmittal_no"`
	TemplateID    string             `json:"template_id"`
	Title         string             `json:"title"`
	Status        Status             `json:"status"`
	CreatedBy     string             `json:"created_by"`
	CreatedAt     time.Time          `json:"created_at"`
	FormData      FormData           `json:"form_data"`
	Attachments   []Attachment       `json:"attachments"`
	Steps         []Step             `json:"steps"`
	FormHistory   []FormHistoryEntry `json:"form_history"`
	ActivityLog   []ActivityEntry    `json:"activity_log"`
	Revision      int64              `json:"revision"`
}

// IsDraft reports whether no step has been sent yet.
func (i *Instance) IsDraft() bool {
	return len(i.Steps) == 0
}

// IsClosed reports whether the instance reached its terminal state.
func (i *Instance) IsClosed() bool {
	return i.Status == StatusClosed
}

// LatestStep returns a pointer to the most recent step, or nil for drafts.
func (i *Instance) LatestStep() *Step {
	if len(i.Steps) == 0 {
		return nil
	}
	return &i.Steps[len(i.Steps)-1]
}

// StepByID returns the step with the given id.
func (i *Instance) StepByID(id string) (*Step, bool) {
	for idx := range i.Steps {
		if i.Steps[idx].ID == id {
			return &i.Steps[idx], true
		}
	}
	return nil, false
}

// AttachmentIndex returns the slice index of an attachment or -1.
func (i *Instance) AttachmentIndex(id string) int {
	return slices.IndexFunc(i.Attachments, func(a Attachment) bool { return a.ID == id })
}

// AttachmentsInScope returns the attachments bound to stepID. An empty
// stepID selects draft attachments.
func (i *Instance) AttachmentsInScope(stepID string) []Attachment {
	var out []Attachment
	for _, a := range i.Attachments {
		if a.StepID == stepID {
			out = append(out, a)
		}
	}
	return out
}

// Clone returns a deep copy so commands can mutate freely and discard on error.
func (i *Instance) Clone() *Instance {
	c := *i
	c.FormData = i.FormData.Clone()
	c.Attachments = slices.Clone(i.Attachments)
	c.Steps = make([]Step, len(i.Steps))
	for idx, s := range i.Steps {
		s.ToGroups = slices.Clone(s.ToGroups)
		s.AttachmentStatuses = slices.Clone(s.AttachmentStatuses)
		s.DelegateGroups = slices.Clone(s.DelegateGroups)
		s.DelegationHistory = slices.Clone(s.DelegationHistory)
		s.CCRoleIDs = slices.Clone(s.CCRoleIDs)
		c.Steps[idx] = s
	}
	c.FormHistory = slices.Clone(i.FormHistory)
	c.ActivityLog = slices.Clone(i.ActivityLog)
	return &c
}
