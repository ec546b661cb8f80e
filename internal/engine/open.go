package engine

import (
	"context"
	"fmt"

	"github.com/tikcccc/Form-demo/internal/ir"
)

// MarkOpened acknowledges the latest step on behalf of a recipient.
//
// Each (role, step) pair is recorded once with a view entry; repeated calls
// return the instance unchanged. The first acknowledgment of a step stamps
// OpenedAt and moves Sent to Received, or closes the instance when the
// template closes on acknowledgment and the opened action closes.
//
// An admin outside the recipient groups only leaves a view entry. A closed
// instance is returned unchanged.
func (e *Engine) MarkOpened(ctx context.Context, roleID, instanceID string) (*ir.Instance, error) {
	return e.mutateInstance(ctx, "mark_opened", roleID, instanceID, func(m *mutation) error {
		inst, t := m.inst, m.tmpl
		if inst.IsClosed() {
			if !e.CanView(t, roleID, inst) {
				return permissionDenied(inst.ID, "role %q cannot view this instance", roleID)
			}
			m.unchanged = true
			return nil
		}
		latest := inst.LatestStep()
		if latest == nil {
			return invalidTransition(inst.ID, "instance has not been sent")
		}
		recipient := e.isRecipient(latest, roleID)
		if !recipient && !e.dir.IsAdmin(roleID) {
			return permissionDenied(inst.ID, "role %q is not a current recipient", roleID)
		}
		if hasViewed(inst, roleID, latest.ID) {
			m.unchanged = true
			return nil
		}

		e.appendActivity(m, ir.ActivityView, fmt.Sprintf("%s viewed the details.", e.dir.LabelOf(roleID)), latest.ID)
		if !recipient || latest.IsOpened() {
			return nil
		}

		latest.OpenedAt = m.now
		action, _ := t.ActionByID(latest.ActionID)
		switch {
		case t.CloseOnOpen && action.CloseInstance:
			inst.Status = ir.StatusClosed
			e.appendActivity(m, ir.ActivityClose, fmt.Sprintf("%s closed the form.", e.dir.LabelOf(roleID)), latest.ID)
		case inst.Status == ir.StatusSent:
			inst.Status = ir.StatusReceived
		}
		return nil
	})
}
