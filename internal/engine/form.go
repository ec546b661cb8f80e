package engine

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"unicode/utf8"

	"github.com/tikcccc/Form-demo/internal/access"
	"github.com/tikcccc/Form-demo/internal/ir"
)

// FormContext is the situation submit-time validation runs in.
type FormContext struct {
	access.Context

	// CommonFieldKeys are validated separately and skipped here.
	CommonFieldKeys []string
}

// ValidateFormData checks required and bounds rules for every schema field
// that is in a visible section, not a common field, and editable in ctx.
// The result maps field keys to messages; an empty map means valid.
func ValidateFormData(dir *access.Directory, t *ir.Template, data ir.FormData, ctx FormContext) map[string]string {
	errs := map[string]string{}

	visible := map[string]bool{}
	for _, s := range t.Layout.Sections {
		if s.VisibleWhen != nil && !ir.EqualValues(data[s.VisibleWhen.Field], s.VisibleWhen.Equals) {
			continue
		}
		for _, key := range s.Fields {
			visible[key] = true
		}
	}

	for _, f := range t.Schema {
		if slices.Contains(ctx.CommonFieldKeys, f.Key) {
			continue
		}
		if len(visible) > 0 && !visible[f.Key] {
			continue
		}
		acc := dir.Resolve(f, ctx.Context)
		if !acc.Editable {
			continue
		}
		if msg := checkField(f, data[f.Key], acc.Required); msg != "" {
			errs[f.Key] = msg
		}
	}
	return errs
}

// checkField returns the first failing rule for one value, or "".
func checkField(f ir.Field, v ir.FieldValue, required bool) string {
	label := f.DisplayLabel()
	empty := ir.IsEmptyValue(v)
	if required && empty {
		return fmt.Sprintf("%s is required.", label)
	}

	if f.Type.IsText() {
		n := 0
		if !empty {
			n = utf8.RuneCountInString(ir.ValueString(v))
		}
		if f.MinLength != nil && n < *f.MinLength {
			return fmt.Sprintf("%s must be at least %d characters.", label, *f.MinLength)
		}
		if f.MaxLength != nil && n > *f.MaxLength {
			return fmt.Sprintf("%s must be under %d characters.", label, *f.MaxLength)
		}
	}

	if f.Type == ir.FieldNumber && !empty {
		num, ok := v.(ir.NumberValue)
		if !ok {
			return fmt.Sprintf("%s must be a number.", label)
		}
		if f.Min != nil && float64(num) < *f.Min {
			return fmt.Sprintf("%s must be at least %s.", label, formatNumber(*f.Min))
		}
		if f.Max != nil && float64(num) > *f.Max {
			return fmt.Sprintf("%s must be at most %s.", label, formatNumber(*f.Max))
		}
	}
	return ""
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// ValidateCommonFields reports every required common field left empty.
func ValidateCommonFields(fields []ir.CommonField, data ir.FormData) map[string]string {
	errs := map[string]string{}
	for _, f := range fields {
		if f.Optional {
			continue
		}
		if ir.IsEmptyValue(data[f.Key]) {
			errs[f.Key] = fmt.Sprintf("%s is required.", f.DisplayLabel())
		}
	}
	return errs
}

// defaultValue is the initial value of a field on a new instance.
func defaultValue(f ir.Field) ir.FieldValue {
	if f.DefaultValue != nil {
		return f.DefaultValue
	}
	switch f.Type {
	case ir.FieldBoolean:
		return ir.BoolValue(false)
	case ir.FieldNumber:
		return ir.NumberValue(0)
	case ir.FieldSelect:
		if len(f.Options) > 0 {
			return ir.SelectValue(f.Options[0])
		}
		return ir.SelectValue("")
	default:
		return ir.TextValue("")
	}
}

// BuildDefaultFormData seeds every schema field with its default value.
func BuildDefaultFormData(t *ir.Template) ir.FormData {
	data := make(ir.FormData, len(t.Schema))
	for _, f := range t.Schema {
		data[f.Key] = defaultValue(f)
	}
	return data
}

// BuildDefaultCommonData seeds every common field with its default value.
func BuildDefaultCommonData(fields []ir.CommonField) ir.FormData {
	data := make(ir.FormData, len(fields))
	for _, f := range fields {
		data[f.Key] = defaultValue(f.Field)
	}
	return data
}

// FormPatch is a set of field edits applied in one command.
type FormPatch struct {
	// Values maps field keys to plain values (string, number, bool) or typed
	// ir.FieldValue values.
	Values map[string]any

	// ActionID is the action the actor is preparing, which decides editability
	// of fields restricted to certain actions. When empty and exactly one
	// action is available to the actor, that action is used.
	ActionID string
}

// UpdateFormField edits a single field.
func (e *Engine) UpdateFormField(ctx context.Context, roleID, instanceID, key string, value any, actionID string) (*ir.Instance, error) {
	return e.UpdateFormData(ctx, roleID, instanceID, FormPatch{Values: map[string]any{key: value}, ActionID: actionID})
}

// UpdateFormData applies field edits. Unknown keys and values of the wrong
// type reject the whole patch. Fields the actor may not edit are dropped
// silently. A change between two non-empty values is recorded in the form
// history.
func (e *Engine) UpdateFormData(ctx context.Context, roleID, instanceID string, patch FormPatch) (*ir.Instance, error) {
	return e.mutateInstance(ctx, "update_form", roleID, instanceID, func(m *mutation) error {
		inst, t := m.inst, m.tmpl

		actionID := patch.ActionID
		if actionID == "" {
			if avail := e.AvailableActions(t, roleID, inst); len(avail) == 1 {
				actionID = avail[0].ID
			}
		}
		fctx := access.Context{
			RoleID:          roleID,
			ActionID:        actionID,
			CanEdit:         e.canEdit(t, roleID, inst),
			RequireEditable: !inst.IsDraft(),
		}
		var stepID string
		if latest := inst.LatestStep(); latest != nil {
			stepID = latest.ID
		}

		keys := slices.Sorted(maps.Keys(patch.Values))
		fieldErrs := map[string]string{}
		type change struct {
			field ir.Field
			value ir.FieldValue
		}
		var changes []change
		for _, key := range keys {
			if slices.Contains(e.commonKeys(), key) {
				e.logger.DebugContext(ctx, "common field edit dropped", "instance_id", inst.ID, "field", key)
				continue
			}
			f, ok := t.FieldByKey(key)
			if !ok {
				return notFound(inst.ID, "field %q not found in template %q", key, t.ID)
			}
			v, err := ir.ParseValue(f, patch.Values[key])
			if err != nil {
				fieldErrs[key] = err.Error()
				continue
			}
			if !e.dir.Resolve(f, fctx).Editable {
				e.logger.DebugContext(ctx, "field edit dropped", "instance_id", inst.ID, "field", key, "role_id", roleID)
				continue
			}
			changes = append(changes, change{field: f, value: v})
		}
		if len(fieldErrs) > 0 {
			return validationFailed(inst.ID, fieldErrs)
		}

		changed := false
		for _, c := range changes {
			old := inst.FormData[c.field.Key]
			if ir.EqualValues(old, c.value) {
				continue
			}
			if inst.FormData == nil {
				inst.FormData = ir.FormData{}
			}
			inst.FormData[c.field.Key] = c.value
			changed = true
			if !ir.IsEmptyValue(old) && !ir.IsEmptyValue(c.value) {
				inst.FormHistory = append(inst.FormHistory, ir.FormHistoryEntry{
					ID:         e.ids.Generate(),
					FieldKey:   c.field.Key,
					FieldLabel: e.fieldLabel(t, c.field.Key),
					From:       old,
					To:         c.value,
					ByRoleID:   roleID,
					StepID:     stepID,
					At:         m.now,
				})
			}
			if c.field.Key == "title" {
				inst.Title = ir.ValueString(c.value)
			}
		}
		m.unchanged = !changed
		return nil
	})
}

// fieldLabel prefers the common field label, then the schema label, then the key.
func (e *Engine) fieldLabel(t *ir.Template, key string) string {
	for _, f := range e.common {
		if f.Key == key && f.Label != "" {
			return f.Label
		}
	}
	if f, ok := t.FieldByKey(key); ok && f.Label != "" {
		return f.Label
	}
	return key
}
