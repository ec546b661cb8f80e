package engine

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/tikcccc/Form-demo/internal/ir"
)

// AttachmentInput describes a file reference to add as a draft attachment.
type AttachmentInput struct {
	Name    string
	Type    string
	Version string
	Size    int64
	Status  string
}

// checkAttachmentAccess allows attachment edits on open instances by admins,
// the creator, inbox recipients, or anyone who can start a draft.
func (e *Engine) checkAttachmentAccess(m *mutation) error {
	inst := m.inst
	if inst.IsClosed() {
		return invalidTransition(inst.ID, "instance is closed")
	}
	switch {
	case e.dir.IsAdmin(m.roleID), inst.CreatedBy == m.roleID, e.IsInbox(inst, m.roleID):
		return nil
	case inst.IsDraft() && e.canStartDraft(m.tmpl, m.roleID, inst):
		return nil
	}
	return permissionDenied(inst.ID, "role %q may not change attachments", m.roleID)
}

func checkStatus(instanceID string, t *ir.Template, status string) error {
	if status != "" && !slices.Contains(t.KnownStatuses(), status) {
		return validationMessage(instanceID, "unknown attachment status %q", status)
	}
	return nil
}

// AddAttachment adds a draft attachment bound to the next step to be sent.
// It returns the updated instance and the new attachment id.
func (e *Engine) AddAttachment(ctx context.Context, roleID, instanceID string, in AttachmentInput) (*ir.Instance, string, error) {
	var id string
	inst, err := e.mutateInstance(ctx, "add_attachment", roleID, instanceID, func(m *mutation) error {
		if err := e.checkAttachmentAccess(m); err != nil {
			return err
		}
		name := strings.TrimSpace(in.Name)
		if name == "" {
			return validationMessage(m.inst.ID, "attachment name is required")
		}
		if err := checkStatus(m.inst.ID, m.tmpl, in.Status); err != nil {
			return err
		}
		id = e.ids.Generate()
		m.inst.Attachments = append(m.inst.Attachments, ir.Attachment{
			ID:      id,
			Name:    name,
			Type:    in.Type,
			Version: in.Version,
			Size:    in.Size,
			Status:  in.Status,
		})
		e.appendActivity(m, ir.ActivityAttachment, fmt.Sprintf("%s added %s.", e.dir.LabelOf(roleID), name), "")
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return inst, id, nil
}

// RemoveAttachment deletes a draft attachment. Attachments bound to a sent
// step are history and cannot be removed.
func (e *Engine) RemoveAttachment(ctx context.Context, roleID, instanceID, attachmentID string) (*ir.Instance, error) {
	return e.mutateInstance(ctx, "remove_attachment", roleID, instanceID, func(m *mutation) error {
		if err := e.checkAttachmentAccess(m); err != nil {
			return err
		}
		idx := m.inst.AttachmentIndex(attachmentID)
		if idx < 0 {
			return notFound(m.inst.ID, "attachment %q not found", attachmentID)
		}
		a := m.inst.Attachments[idx]
		if !a.IsDraft() {
			return preconditionNotMet(m.inst.ID, "attachment %q was sent with step %q", a.ID, a.StepID)
		}
		m.inst.Attachments = slices.Delete(m.inst.Attachments, idx, idx+1)
		e.appendActivity(m, ir.ActivityAttachment, fmt.Sprintf("%s removed %s.", e.dir.LabelOf(roleID), a.Name), "")
		return nil
	})
}

// UpdateAttachmentStatus sets the review status of a draft attachment or of
// an attachment sent with the latest step. An empty status clears it.
func (e *Engine) UpdateAttachmentStatus(ctx context.Context, roleID, instanceID, attachmentID, status string) (*ir.Instance, error) {
	return e.mutateInstance(ctx, "update_attachment_status", roleID, instanceID, func(m *mutation) error {
		if err := e.checkAttachmentAccess(m); err != nil {
			return err
		}
		idx := m.inst.AttachmentIndex(attachmentID)
		if idx < 0 {
			return notFound(m.inst.ID, "attachment %q not found", attachmentID)
		}
		a := &m.inst.Attachments[idx]
		latest := m.inst.LatestStep()
		if !a.IsDraft() && (latest == nil || a.StepID != latest.ID) {
			return preconditionNotMet(m.inst.ID, "attachment %q belongs to an earlier step", a.ID)
		}
		status = strings.TrimSpace(status)
		if err := checkStatus(m.inst.ID, m.tmpl, status); err != nil {
			return err
		}
		if a.Status == status {
			m.unchanged = true
			return nil
		}
		a.Status = status
		e.appendActivity(m, ir.ActivityAttachment,
			fmt.Sprintf("%s set %s to %s.", e.dir.LabelOf(roleID), a.Name, statusLabel(status)), a.StepID)
		return nil
	})
}

func statusLabel(s string) string {
	if s == "" {
		return "no status"
	}
	return s
}
