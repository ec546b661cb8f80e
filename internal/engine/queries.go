package engine

import (
	"context"
	"time"

	"github.com/tikcccc/Form-demo/internal/access"
	"github.com/tikcccc/Form-demo/internal/ir"
)

// InstanceView is the read model of one instance for one role.
type InstanceView struct {
	Instance *ir.Instance `json:"instance"`

	CurrentTo        string    `json:"current_to"`
	DueDate          time.Time `json:"due_date,omitzero"`
	Overdue          bool      `json:"overdue"`
	Inbox            bool      `json:"inbox"`
	Unread           bool      `json:"unread"`
	Partial          bool      `json:"partial"`
	LoopCount        int       `json:"loop_count"`
	CanEdit          bool      `json:"can_edit"`
	AvailableActions []string  `json:"available_actions"`

	// Fields maps every schema field key to its access in the context of
	// the single available action, if there is exactly one.
	Fields map[string]access.FieldAccess `json:"fields"`
}

// Describe builds the view of an instance for a role that may see it.
func (e *Engine) Describe(ctx context.Context, roleID, instanceID string) (*InstanceView, error) {
	inst, t, err := e.GetInstance(ctx, roleID, instanceID)
	if err != nil {
		return nil, err
	}
	return e.View(t, roleID, inst), nil
}

// View derives the read model from an already loaded instance.
func (e *Engine) View(t *ir.Template, roleID string, inst *ir.Instance) *InstanceView {
	now := e.clock.Now()
	avail := e.AvailableActions(t, roleID, inst)
	ids := make([]string, len(avail))
	for i, a := range avail {
		ids[i] = a.ID
	}
	var actionID string
	if len(avail) == 1 {
		actionID = avail[0].ID
	}

	canEdit := e.canEdit(t, roleID, inst)
	fctx := access.Context{
		RoleID:          roleID,
		ActionID:        actionID,
		CanEdit:         canEdit,
		RequireEditable: !inst.IsDraft(),
	}
	fields := make(map[string]access.FieldAccess, len(t.Schema))
	for _, f := range t.Schema {
		fields[f.Key] = e.dir.Resolve(f, fctx)
	}

	return &InstanceView{
		Instance:         inst,
		CurrentTo:        CurrentTo(inst),
		DueDate:          DueDate(inst),
		Overdue:          IsOverdue(inst, now),
		Inbox:            e.IsInbox(inst, roleID),
		Unread:           e.IsUnread(inst, roleID),
		Partial:          IsPartialForStep(inst, inst.LatestStep()),
		LoopCount:        LoopCount(t, inst),
		CanEdit:          canEdit,
		AvailableActions: ids,
		Fields:           fields,
	}
}
