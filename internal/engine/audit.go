package engine

import (
	"github.com/tikcccc/Form-demo/internal/ir"
)

// appendActivity records an audit entry on the instance being mutated.
// Entries are only ever appended.
func (e *Engine) appendActivity(m *mutation, kind ir.ActivityType, message, stepID string) {
	m.inst.ActivityLog = append(m.inst.ActivityLog, ir.ActivityEntry{
		ID:       e.ids.Generate(),
		Type:     kind,
		Message:  message,
		ByRoleID: m.roleID,
		StepID:   stepID,
		At:       m.now,
	})
}

// hasViewed reports whether the role already has a view entry for the step.
func hasViewed(inst *ir.Instance, roleID, stepID string) bool {
	for _, entry := range inst.ActivityLog {
		if entry.Type == ir.ActivityView && entry.ByRoleID == roleID && entry.StepID == stepID {
			return true
		}
	}
	return false
}
