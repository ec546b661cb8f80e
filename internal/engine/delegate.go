package engine

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/tikcccc/Form-demo/internal/ir"
)

// DelegateRequest adds a recipient group to the pending step.
type DelegateRequest struct {
	ToGroup           string
	Note              string
	ExpectedStepCount *int
}

// DelegateStep grants an extra group access to the latest step. Delegation
// is additive: the original recipients keep their access, and every later
// check sees the union of base and delegated groups.
func (e *Engine) DelegateStep(ctx context.Context, roleID, instanceID string, req DelegateRequest) (*ir.Instance, error) {
	return e.mutateInstance(ctx, "delegate_step", roleID, instanceID, func(m *mutation) error {
		inst, t := m.inst, m.tmpl
		admin := e.dir.IsAdmin(roleID)

		if inst.IsClosed() {
			return invalidTransition(inst.ID, "instance is closed")
		}
		latest := inst.LatestStep()
		if latest == nil {
			return invalidTransition(inst.ID, "instance has not been sent")
		}
		if err := checkStepCount(inst, req.ExpectedStepCount); err != nil {
			return err
		}
		if !latest.LastStep {
			return invalidTransition(inst.ID, "step %q does not await a reply", latest.ID)
		}
		if !latest.AllowDelegate {
			return preconditionNotMet(inst.ID, "step %q does not allow delegation", latest.ID)
		}
		recipient := e.isRecipient(latest, roleID)
		if !admin && !recipient {
			return permissionDenied(inst.ID, "role %q is not a current recipient", roleID)
		}

		target := strings.TrimSpace(req.ToGroup)
		if target == "" {
			return validationMessage(inst.ID, "a target group is required")
		}
		if action, ok := t.ActionByID(latest.ActionID); ok && len(action.ToCandidateGroups) > 0 &&
			!slices.Contains(action.ToCandidateGroups, target) {
			return validationMessage(inst.ID, "group %q is not a recipient of action %q", target, action.ID)
		}
		if slices.Contains(CurrentRecipients(latest), target) {
			return preconditionNotMet(inst.ID, "group %q is already a recipient", target)
		}

		from := latest.ToGroup
		if recipient {
			from, _ = e.dir.GroupOfRole(roleID)
		}
		latest.DelegateGroups = append(latest.DelegateGroups, target)
		latest.DelegationHistory = append(latest.DelegationHistory, ir.Delegation{
			FromGroup: from,
			ToGroup:   target,
			ByRoleID:  roleID,
			At:        m.now,
			Note:      strings.TrimSpace(req.Note),
		})
		e.appendActivity(m, ir.ActivityDelegate,
			fmt.Sprintf("%s delegated %s to %s.", e.dir.LabelOf(roleID), latest.ActionLabel, target), latest.ID)
		return nil
	})
}
