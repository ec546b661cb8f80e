package access

import (
	"slices"

	"github.com/tikcccc/Form-demo/internal/ir"
)

// Context describes who is looking at a field and in which situation.
type Context struct {
	RoleID   string
	ActionID string

	// CanEdit is false when the actor may not touch the instance at all.
	CanEdit bool

	// RequireEditable locks fields without an explicit edit policy. It is set
	// once an instance has left its draft stage.
	RequireEditable bool
}

// FieldAccess is the resolved access to one field.
type FieldAccess struct {
	Visible  bool `json:"visible"`
	Editable bool `json:"editable"`
	Required bool `json:"required"`
}

// Resolve computes field access. Rendering, field edits and submit-time
// validation all call this one function.
func (d *Directory) Resolve(field ir.Field, ctx Context) FieldAccess {
	admin := d.IsAdmin(ctx.RoleID)
	visible := admin || allows(field.VisibleRoles, ctx.RoleID)

	configured := len(field.EditableRoles) > 0 || len(field.EditableActionIDs) > 0
	var permitted bool
	switch {
	case admin:
		permitted = true
	case configured:
		permitted = allows(field.EditableRoles, ctx.RoleID) && allowsAction(field.EditableActionIDs, ctx.ActionID)
	default:
		permitted = !ctx.RequireEditable
	}

	editable := ctx.CanEdit && visible && permitted
	return FieldAccess{
		Visible:  visible,
		Editable: editable,
		Required: field.Required && editable,
	}
}

// allows treats an empty list as unrestricted.
func allows(list []string, roleID string) bool {
	return len(list) == 0 || slices.Contains(list, roleID)
}

// allowsAction treats an empty list as unrestricted; a restricted list
// never matches an empty action context.
func allowsAction(list []string, actionID string) bool {
	if len(list) == 0 {
		return true
	}
	return actionID != "" && slices.Contains(list, actionID)
}
