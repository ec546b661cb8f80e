package ir

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"
)

// Role is an actor identity resolved by the caller. Group is the routing unit.
type Role struct {
	ID    string `json:"id"`
	Label string `json:"label,omitempty"`
	Group string `json:"group,omitempty"`
}

// FieldType enumerates the supported form field kinds.
type FieldType string

const (
	FieldText     FieldType = "text"
	FieldTextarea FieldType = "textarea"
	FieldNumber   FieldType = "number"
	FieldSelect   FieldType = "select"
	FieldBoolean  FieldType = "boolean"
)

// ValidFieldTypes lists every accepted FieldType.
var ValidFieldTypes = []FieldType{FieldText, FieldTextarea, FieldNumber, FieldSelect, FieldBoolean}

// IsText reports whether values of this type are free text.
func (t FieldType) IsText() bool {
	return t == FieldText || t == FieldTextarea
}

// Field is one entry of a template schema.
//
// Empty VisibleRoles, EditableRoles and EditableActionIDs mean unrestricted.
type Field struct {
	Key               string     `json:"key"`
	Label             string     `json:"label,omitempty"`
	Type              FieldType  `json:"type"`
	Required          bool       `json:"required,omitempty"`
	Options           []string   `json:"options,omitempty"`
	Min               *float64   `json:"min,omitempty"`
	Max               *float64   `json:"max,omitempty"`
	MinLength         *int       `json:"min_length,omitempty"`
	MaxLength         *int       `json:"max_length,omitempty"`
	DefaultValue      FieldValue `json:"default_value,omitempty"`
	VisibleRoles      []string   `json:"visible_roles,omitempty"`
	EditableRoles     []string   `json:"editable_roles,omitempty"`
	EditableActionIDs []string   `json:"editable_action_ids,omitempty"`
}

// DisplayLabel returns the label, falling back to the key.
func (f Field) DisplayLabel() string {
	if f.Label != "" {
		return f.Label
	}
	return f.Key
}

// UnmarshalJSON decodes the tagged default value.
func (f *Field) UnmarshalJSON(data []byte) error {
	type fieldAlias Field
	var aux struct {
		fieldAlias
		DefaultValue json.RawMessage `json:"default_value,omitempty"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*f = Field(aux.fieldAlias)
	if len(aux.DefaultValue) > 0 {
		v, err := UnmarshalValue(aux.DefaultValue)
		if err != nil {
			return fmt.Errorf("field %q default_value: %w", f.Key, err)
		}
		f.DefaultValue = v
	}
	return nil
}

// CommonField is a field shared by every template. Common fields are required
// unless Optional is set.
type CommonField struct {
	Field
	Optional bool `json:"optional,omitempty"`
}

// UnmarshalJSON decodes the embedded field and the optional flag.
func (c *CommonField) UnmarshalJSON(data []byte) error {
	if err := c.Field.UnmarshalJSON(data); err != nil {
		return err
	}
	var aux struct {
		Optional bool `json:"optional"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	c.Optional = aux.Optional
	return nil
}

// VisibleWhen guards a layout section on the current value of another field.
type VisibleWhen struct {
	Field  string     `json:"field"`
	Equals FieldValue `json:"equals"`
}

// UnmarshalJSON decodes the tagged comparison value.
func (w *VisibleWhen) UnmarshalJSON(data []byte) error {
	var aux struct {
		Field  string          `json:"field"`
		Equals json.RawMessage `json:"equals"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	w.Field = aux.Field
	w.Equals = nil
	if len(aux.Equals) > 0 && string(aux.Equals) != "null" {
		v, err := UnmarshalValue(aux.Equals)
		if err != nil {
			return fmt.Errorf("visible_when equals: %w", err)
		}
		w.Equals = v
	}
	return nil
}

// Section groups field keys for rendering and conditional visibility.
type Section struct {
	ID          string       `json:"id,omitempty"`
	Title       string       `json:"title,omitempty"`
	Fields      []string     `json:"fields"`
	VisibleWhen *VisibleWhen `json:"visible_when,omitempty"`
}

// Layout is the ordered list of sections of a template.
type Layout struct {
	Sections []Section `json:"sections"`
}

// Action is a named transition of the flow graph.
type Action struct {
	ID                       string   `json:"id"`
	Label                    string   `json:"label"`
	AllowedRoles             []string `json:"allowed_roles,omitempty"`
	ToCandidateGroups        []string `json:"to_candidate_groups,omitempty"`
	CCRoleIDs                []string `json:"cc_role_ids,omitempty"`
	DueDays                  int      `json:"due_days,omitempty"`
	LastStep                 bool     `json:"last_step,omitempty"`
	AllowDelegate            bool     `json:"allow_delegate,omitempty"`
	RequiresAttachmentStatus bool     `json:"requires_attachment_status,omitempty"`
	StatusSet                []string `json:"status_set,omitempty"`
	CloseInstance            bool     `json:"close_instance,omitempty"`
	IsStart                  bool     `json:"is_start,omitempty"`
	NextActionIDs            []string `json:"next_action_ids,omitempty"`
}

// DisplayLabel returns the label, falling back to the id.
func (a Action) DisplayLabel() string {
	if a.Label != "" {
		return a.Label
	}
	return a.ID
}

// DefaultStatusSet is offered when an action declares no status set.
var DefaultStatusSet = []string{"Approved", "Rejected", "AIP", "For Info"}

// Template defines a document type: schema, layout and action flow.
type Template struct {
	ID                string    `json:"id"`
	Code              string    `json:"code,omitempty"`
	Name              string    `json:"name"`
	Published         bool      `json:"published"`
	Schema            []Field   `json:"schema"`
	Layout            Layout    `json:"layout"`
	Actions           []Action  `json:"actions"`
	ActionFlowEnabled bool      `json:"action_flow_enabled"`
	InitiatorRoleIDs  []string  `json:"initiator_role_ids,omitempty"`
	RevisionActionIDs []string  `json:"revision_action_ids,omitempty"`
	CloseOnOpen       bool      `json:"close_on_open,omitempty"`
	Revision          int64     `json:"revision"`
	CreatedAt         time.Time `json:"created_at,omitzero"`
	UpdatedAt         time.Time `json:"updated_at,omitzero"`
}

// FieldByKey finds a schema field.
func (t *Template) FieldByKey(key string) (Field, bool) {
	for _, f := range t.Schema {
		if f.Key == key {
			return f, true
		}
	}
	return Field{}, false
}

// ActionByID finds an action.
func (t *Template) ActionByID(id string) (Action, bool) {
	for _, a := range t.Actions {
		if a.ID == id {
			return a, true
		}
	}
	return Action{}, false
}

// IsRevisionAction reports whether executing the action reopens drafts
// with bumped versions.
func (t *Template) IsRevisionAction(actionID string) bool {
	return slices.Contains(t.RevisionActionIDs, actionID)
}

// KnownStatuses is the union of every action status set and the default set,
// in first-seen order.
func (t *Template) KnownStatuses() []string {
	var out []string
	add := func(s string) {
		if s != "" && !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	for _, a := range t.Actions {
		for _, s := range a.StatusSet {
			add(s)
		}
	}
	for _, s := range DefaultStatusSet {
		add(s)
	}
	return out
}

// Clone returns a deep copy.
func (t *Template) Clone() *Template {
	c := *t
	c.Schema = make([]Field, len(t.Schema))
	for i, f := range t.Schema {
		c.Schema[i] = f.clone()
	}
	c.Layout.Sections = make([]Section, len(t.Layout.Sections))
	for i, s := range t.Layout.Sections {
		s.Fields = slices.Clone(s.Fields)
		if s.VisibleWhen != nil {
			w := *s.VisibleWhen
			s.VisibleWhen = &w
		}
		c.Layout.Sections[i] = s
	}
	c.Actions = make([]Action, len(t.Actions))
	for i, a := range t.Actions {
		c.Actions[i] = a.clone()
	}
	c.InitiatorRoleIDs = slices.Clone(t.InitiatorRoleIDs)
	c.RevisionActionIDs = slices.Clone(t.RevisionActionIDs)
	return &c
}

func (f Field) clone() Field {
	f.Options = slices.Clone(f.Options)
	f.VisibleRoles = slices.Clone(f.VisibleRoles)
	f.EditableRoles = slices.Clone(f.EditableRoles)
	f.EditableActionIDs = slices.Clone(f.EditableActionIDs)
	if f.Min != nil {
		v := *f.Min
		f.Min = &v
	}
	if f.Max != nil {
		v := *f.Max
		f.Max = &v
	}
	if f.MinLength != nil {
		v := *f.MinLength
		f.MinLength = &v
	}
	if f.MaxLength != nil {
		v := *f.MaxLength
		f.MaxLength = &v
	}
	return f
}

func (a Action) clone() Action {
	a.AllowedRoles = slices.Clone(a.AllowedRoles)
	a.ToCandidateGroups = slices.Clone(a.ToCandidateGroups)
	a.CCRoleIDs = slices.Clone(a.CCRoleIDs)
	a.StatusSet = slices.Clone(a.StatusSet)
	a.NextActionIDs = slices.Clone(a.NextActionIDs)
	return a
}

// Catalog is everything authored outside of the engine: roles, shared
// fields and template definitions.
type Catalog struct {
	Roles        []Role        `json:"roles"`
	CommonFields []CommonField `json:"common_fields,omitempty"`
	Templates    []Template    `json:"templates"`
}

// CommonFieldKeys returns the keys of the shared fields.
func (c *Catalog) CommonFieldKeys() []string {
	keys := make([]string, len(c.CommonFields))
	for i, f := range c.CommonFields {
		keys[i] = f.Key
	}
	return keys
}
