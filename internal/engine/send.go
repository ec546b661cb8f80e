package engine

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/tikcccc/Form-demo/internal/access"
	"github.com/tikcccc/Form-demo/internal/ir"
)

// SendRequest executes one action on an instance.
type SendRequest struct {
	ActionID string

	// ToGroups are the recipient groups. Empty means the action's first
	// candidate group.
	ToGroups []string

	Message string

	// ExpectedStepCount, when set, rejects the command with Conflict if the
	// instance gained or lost steps since the caller looked at it.
	ExpectedStepCount *int
}

// SendAction appends a step executing req.ActionID. The command is rejected
// as a whole when any check fails:
//
//  1. the instance is closed (InvalidTransition)
//  2. the actor may not perform the action (PermissionDenied)
//  3. a draft is sent by someone who cannot start it, or a reply comes from
//     outside the current recipients (PermissionDenied); no reply is pending
//     (InvalidTransition)
//  4. the flow does not lead to the action (InvalidTransition)
//  5. gated attachments lack a status (PreconditionNotMet)
//  6. a reply carries no message (PreconditionNotMet)
//  7. the form fails validation (ValidationFailed)
func (e *Engine) SendAction(ctx context.Context, roleID, instanceID string, req SendRequest) (*ir.Instance, error) {
	return e.mutateInstance(ctx, "send_action", roleID, instanceID, func(m *mutation) error {
		inst, t := m.inst, m.tmpl
		admin := e.dir.IsAdmin(roleID)

		if inst.IsClosed() {
			return invalidTransition(inst.ID, "instance is closed")
		}
		if err := checkStepCount(inst, req.ExpectedStepCount); err != nil {
			return err
		}
		action, ok := t.ActionByID(req.ActionID)
		if !ok {
			return notFound(inst.ID, "action %q not found in template %q", req.ActionID, t.ID)
		}
		if !admin && !slices.Contains(action.AllowedRoles, roleID) {
			return permissionDenied(inst.ID, "role %q may not perform action %q", roleID, action.ID)
		}

		draft := inst.IsDraft()
		latest := inst.LatestStep()
		if draft {
			if !admin && inst.CreatedBy != roleID && !e.canStartDraft(t, roleID, inst) {
				return permissionDenied(inst.ID, "role %q may not start this instance", roleID)
			}
		} else {
			if !latest.LastStep {
				return invalidTransition(inst.ID, "step %q does not await a reply", latest.ID)
			}
			if !admin && !e.isRecipient(latest, roleID) {
				return permissionDenied(inst.ID, "role %q is not a current recipient", roleID)
			}
		}

		if t.ActionFlowEnabled {
			avail := e.AvailableActions(t, roleID, inst)
			if !slices.ContainsFunc(avail, func(a ir.Action) bool { return a.ID == action.ID }) {
				if draft {
					return invalidTransition(inst.ID, "action %q is not a start action", action.ID)
				}
				return invalidTransition(inst.ID, "action %q does not follow %q", action.ID, latest.ActionID)
			}
		}

		toGroups, err := resolveRecipients(inst.ID, action, req.ToGroups)
		if err != nil {
			return err
		}

		scope := ""
		if !draft {
			scope = latest.ID
		}
		if action.RequiresAttachmentStatus && !AttachmentStatusesComplete(inst, scope) {
			return preconditionNotMet(inst.ID, "every attachment needs a status before %q", action.DisplayLabel())
		}

		message := strings.TrimSpace(req.Message)
		if !draft && latest.LastStep && message == "" {
			return preconditionNotMet(inst.ID, "a reply message is required")
		}

		if canEdit := e.canEdit(t, roleID, inst); canEdit {
			fieldErrs := ValidateFormData(e.dir, t, inst.FormData, FormContext{
				Context: access.Context{
					RoleID:          roleID,
					ActionID:        action.ID,
					CanEdit:         canEdit,
					RequireEditable: !draft,
				},
				CommonFieldKeys: e.commonKeys(),
			})
			if len(fieldErrs) > 0 {
				return validationFailed(inst.ID, fieldErrs)
			}
		}

		step := ir.Step{
			ID:                       e.ids.Generate(),
			ActionID:                 action.ID,
			ActionLabel:              action.Label,
			FromRoleID:               roleID,
			ToGroup:                  toGroups[0],
			ToGroups:                 toGroups,
			SentAt:                   m.now,
			DueDate:                  dueDate(m.now, action.DueDays),
			LastStep:                 action.LastStep,
			AllowDelegate:            action.AllowDelegate,
			RequiresAttachmentStatus: action.RequiresAttachmentStatus,
			CCRoleIDs:                slices.Clone(action.CCRoleIDs),
			Message:                  message,
		}
		if action.RequiresAttachmentStatus {
			for _, a := range inst.AttachmentsInScope(scope) {
				step.AttachmentStatuses = append(step.AttachmentStatuses, ir.AttachmentStatus{AttachmentID: a.ID, Status: a.Status})
			}
		}

		var drafts []ir.Attachment
		for i := range inst.Attachments {
			if inst.Attachments[i].IsDraft() {
				drafts = append(drafts, inst.Attachments[i])
				inst.Attachments[i].StepID = step.ID
			}
		}
		if t.IsRevisionAction(action.ID) {
			for _, a := range drafts {
				a.ID = e.ids.Generate()
				a.Version = BumpVersion(a.Version)
				a.Status = ""
				a.StepID = ""
				inst.Attachments = append(inst.Attachments, a)
			}
		}

		inst.Steps = append(inst.Steps, step)
		inst.Status = ir.StatusSent
		e.appendActivity(m, ir.ActivitySend,
			fmt.Sprintf("%s sent %s to %s.", e.dir.LabelOf(roleID), action.DisplayLabel(), strings.Join(toGroups, ", ")),
			step.ID)

		if action.CloseInstance && !t.CloseOnOpen {
			inst.Status = ir.StatusClosed
			e.appendActivity(m, ir.ActivityClose, fmt.Sprintf("%s closed the form.", e.dir.LabelOf(roleID)), step.ID)
		}
		return nil
	})
}

// resolveRecipients applies the default recipient and checks the chosen
// groups against the action's candidates.
func resolveRecipients(instanceID string, action ir.Action, requested []string) ([]string, error) {
	var groups []string
	for _, g := range requested {
		g = strings.TrimSpace(g)
		if g != "" && !slices.Contains(groups, g) {
			groups = append(groups, g)
		}
	}
	if len(groups) == 0 {
		if len(action.ToCandidateGroups) == 0 {
			return nil, validationMessage(instanceID, "action %q has no recipient group", action.ID)
		}
		return []string{action.ToCandidateGroups[0]}, nil
	}
	if len(action.ToCandidateGroups) > 0 {
		for _, g := range groups {
			if !slices.Contains(action.ToCandidateGroups, g) {
				return nil, validationMessage(instanceID, "group %q is not a recipient of action %q", g, action.ID)
			}
		}
	}
	return groups, nil
}
