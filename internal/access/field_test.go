package access

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tikcccc/Form-demo/internal/ir"
)

func TestResolve(t *testing.T) {
	d := testDirectory(t)

	open := ir.Field{Key: "notes", Type: ir.FieldText, Required: true}
	hidden := ir.Field{Key: "cost", Type: ir.FieldNumber, Required: true, VisibleRoles: []string{"qa"}}
	byRole := ir.Field{Key: "verdict", Type: ir.FieldText, Required: true, EditableRoles: []string{"qa"}}
	byAction := ir.Field{Key: "reason", Type: ir.FieldText, Required: true, EditableActionIDs: []string{"reject"}}
	both := ir.Field{Key: "sign", Type: ir.FieldText, EditableRoles: []string{"qa"}, EditableActionIDs: []string{"approve"}}

	tests := []struct {
		name  string
		field ir.Field
		ctx   Context
		want  FieldAccess
	}{
		{"unrestricted in draft", open, Context{RoleID: "requester", CanEdit: true},
			FieldAccess{Visible: true, Editable: true, Required: true}},
		{"unconfigured locks after draft", open, Context{RoleID: "requester", CanEdit: true, RequireEditable: true},
			FieldAccess{Visible: true}},
		{"cannot edit instance", open, Context{RoleID: "requester"},
			FieldAccess{Visible: true}},
		{"hidden from other roles", hidden, Context{RoleID: "requester", CanEdit: true},
			FieldAccess{}},
		{"visible to listed role", hidden, Context{RoleID: "qa", CanEdit: true},
			FieldAccess{Visible: true, Editable: true, Required: true}},
		{"admin sees hidden", hidden, Context{RoleID: "project-admin", CanEdit: true, RequireEditable: true},
			FieldAccess{Visible: true, Editable: true, Required: true}},
		{"editable role listed", byRole, Context{RoleID: "qa", CanEdit: true, RequireEditable: true},
			FieldAccess{Visible: true, Editable: true, Required: true}},
		{"editable role not listed", byRole, Context{RoleID: "requester", CanEdit: true},
			FieldAccess{Visible: true}},
		{"action listed", byAction, Context{RoleID: "requester", ActionID: "reject", CanEdit: true, RequireEditable: true},
			FieldAccess{Visible: true, Editable: true, Required: true}},
		{"action context missing", byAction, Context{RoleID: "requester", CanEdit: true},
			FieldAccess{Visible: true}},
		{"role and action both required", both, Context{RoleID: "qa", ActionID: "reject", CanEdit: true},
			FieldAccess{Visible: true}},
		{"role and action both pass", both, Context{RoleID: "qa", ActionID: "approve", CanEdit: true},
			FieldAccess{Visible: true, Editable: true}},
		{"admin still needs CanEdit", byRole, Context{RoleID: "project-admin"},
			FieldAccess{Visible: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, d.Resolve(tt.field, tt.ctx))
		})
	}
}
