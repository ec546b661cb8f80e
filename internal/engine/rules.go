package engine

import (
	"slices"
	"strings"
	"time"

	"github.com/tikcccc/Form-demo/internal/ir"
)

// CurrentRecipients returns the groups a step is addressed to: its base
// groups followed by delegated groups, without duplicates. Every send, open
// and delegate permission check goes through this function.
func CurrentRecipients(step *ir.Step) []string {
	if step == nil {
		return nil
	}
	var groups []string
	add := func(g string) {
		if g != "" && !slices.Contains(groups, g) {
			groups = append(groups, g)
		}
	}
	for _, g := range step.ToGroups {
		add(g)
	}
	add(step.ToGroup)
	for _, g := range step.DelegateGroups {
		add(g)
	}
	return groups
}

// isRecipient reports whether the actor's group is a current recipient.
func (e *Engine) isRecipient(step *ir.Step, roleID string) bool {
	group, ok := e.dir.GroupOfRole(roleID)
	if !ok || step == nil {
		return false
	}
	return slices.Contains(CurrentRecipients(step), group)
}

// ActionsForRole lists the template actions a role may perform at all.
func (e *Engine) ActionsForRole(t *ir.Template, roleID string) []ir.Action {
	if e.dir.IsAdmin(roleID) {
		return slices.Clone(t.Actions)
	}
	var out []ir.Action
	for _, a := range t.Actions {
		if slices.Contains(a.AllowedRoles, roleID) {
			out = append(out, a)
		}
	}
	return out
}

// startActionIDs returns the actions that may open a flow: those marked as
// start, or when none is marked, those no other action links to.
func startActionIDs(t *ir.Template) []string {
	var ids []string
	for _, a := range t.Actions {
		if a.IsStart {
			ids = append(ids, a.ID)
		}
	}
	if len(ids) > 0 {
		return ids
	}
	targeted := make(map[string]bool)
	for _, a := range t.Actions {
		for _, next := range a.NextActionIDs {
			targeted[next] = true
		}
	}
	for _, a := range t.Actions {
		if !targeted[a.ID] {
			ids = append(ids, a.ID)
		}
	}
	return ids
}

// AvailableActions lists the actions the role may execute next on inst.
// Without a flow every permitted action is offered. With a flow, drafts are
// limited to start actions and sent instances to the next actions of the
// latest step, provided that step awaits a reply.
func (e *Engine) AvailableActions(t *ir.Template, roleID string, inst *ir.Instance) []ir.Action {
	allowed := e.ActionsForRole(t, roleID)
	if !t.ActionFlowEnabled {
		return allowed
	}
	var candidates []string
	if inst == nil || inst.IsDraft() {
		candidates = startActionIDs(t)
	} else {
		latest := inst.LatestStep()
		if !latest.LastStep {
			return nil
		}
		from, ok := t.ActionByID(latest.ActionID)
		if !ok {
			return nil
		}
		candidates = from.NextActionIDs
	}
	var out []ir.Action
	for _, a := range allowed {
		if slices.Contains(candidates, a.ID) {
			out = append(out, a)
		}
	}
	return out
}

// CanInitiate reports whether the role may create instances of t.
func (e *Engine) CanInitiate(t *ir.Template, roleID string) bool {
	if e.dir.IsAdmin(roleID) || len(t.InitiatorRoleIDs) == 0 {
		return true
	}
	return slices.Contains(t.InitiatorRoleIDs, roleID)
}

// canStartDraft reports whether the role can send the first step of a draft.
func (e *Engine) canStartDraft(t *ir.Template, roleID string, inst *ir.Instance) bool {
	if e.dir.IsAdmin(roleID) {
		return true
	}
	if !inst.IsDraft() {
		return false
	}
	return len(e.AvailableActions(t, roleID, inst)) > 0
}

// CanView reports whether the role may see the instance.
func (e *Engine) CanView(t *ir.Template, roleID string, inst *ir.Instance) bool {
	if e.dir.IsAdmin(roleID) || inst.CreatedBy == roleID {
		return true
	}
	if t != nil && e.canStartDraft(t, roleID, inst) {
		return true
	}
	group, ok := e.dir.GroupOfRole(roleID)
	if !ok {
		return false
	}
	for i := range inst.Steps {
		step := &inst.Steps[i]
		if step.FromRoleID == roleID ||
			slices.Contains(CurrentRecipients(step), group) ||
			slices.Contains(step.CCRoleIDs, roleID) {
			return true
		}
	}
	return false
}

// IsInbox reports whether the instance awaits a reply from the role's group.
func (e *Engine) IsInbox(inst *ir.Instance, roleID string) bool {
	if inst.IsClosed() {
		return false
	}
	latest := inst.LatestStep()
	if latest == nil || !latest.LastStep {
		return false
	}
	return e.isRecipient(latest, roleID)
}

// IsUnread reports whether an inbox instance has not been opened yet.
func (e *Engine) IsUnread(inst *ir.Instance, roleID string) bool {
	latest := inst.LatestStep()
	return latest != nil && e.IsInbox(inst, roleID) && !latest.IsOpened()
}

// canEdit reports whether the actor may touch the instance's form at all.
func (e *Engine) canEdit(t *ir.Template, roleID string, inst *ir.Instance) bool {
	if inst.IsClosed() {
		return false
	}
	if e.dir.IsAdmin(roleID) {
		return true
	}
	if inst.IsDraft() {
		return inst.CreatedBy == roleID || e.canStartDraft(t, roleID, inst)
	}
	return e.IsInbox(inst, roleID)
}

// CurrentTo formats the current recipients of the latest step.
func CurrentTo(inst *ir.Instance) string {
	groups := CurrentRecipients(inst.LatestStep())
	if len(groups) == 0 {
		return "—"
	}
	return strings.Join(groups, ", ")
}

// DueDate returns the due date of the latest step, zero when none.
func DueDate(inst *ir.Instance) time.Time {
	if latest := inst.LatestStep(); latest != nil {
		return latest.DueDate
	}
	return time.Time{}
}

// IsOverdue reports whether the latest due date lies before today.
func IsOverdue(inst *ir.Instance, now time.Time) bool {
	due := DueDate(inst)
	if due.IsZero() || inst.IsClosed() {
		return false
	}
	return startOfDay(due).Before(startOfDay(now))
}

// LoopCount is the number of times the flow was started on inst, at least 1.
func LoopCount(t *ir.Template, inst *ir.Instance) int {
	if !t.ActionFlowEnabled {
		return 1
	}
	var starts []string
	for _, a := range t.Actions {
		if a.IsStart {
			starts = append(starts, a.ID)
		}
	}
	count := 0
	for _, s := range inst.Steps {
		if slices.Contains(starts, s.ActionID) {
			count++
		}
	}
	return max(count, 1)
}

// IsPartialForStep reports whether a status-gated step carries any
// non-empty status other than Approved. Statuses come from the attachments
// bound to the step, falling back to the snapshot taken when it was sent.
func IsPartialForStep(inst *ir.Instance, step *ir.Step) bool {
	if step == nil || !step.RequiresAttachmentStatus {
		return false
	}
	var statuses []string
	for _, a := range inst.AttachmentsInScope(step.ID) {
		statuses = append(statuses, a.Status)
	}
	if len(statuses) == 0 {
		for _, s := range step.AttachmentStatuses {
			statuses = append(statuses, s.Status)
		}
	}
	return slices.ContainsFunc(statuses, func(s string) bool { return s != "" && s != "Approved" })
}

// AttachmentStatusesComplete reports whether every attachment in the scope
// carries a status. An empty scope is complete.
func AttachmentStatusesComplete(inst *ir.Instance, stepID string) bool {
	for _, a := range inst.AttachmentsInScope(stepID) {
		if a.Status == "" {
			return false
		}
	}
	return true
}
