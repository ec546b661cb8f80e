package compiler

import (
	"fmt"
	"slices"
	"strings"

	"github.com/tikcccc/Form-demo/internal/access"
	"github.com/tikcccc/Form-demo/internal/ir"
)

// PublishIssues lists every reason a template cannot be published, in a
// stable order. An empty result means the template is publishable.
//
// Recipient coverage of next actions is checked against the role directory:
// each allowed role of a next action must route to a group the linking action
// can send to.
func PublishIssues(t *ir.Template, dir *access.Directory) []string {
	issues := []string{}

	if len(t.Actions) == 0 {
		issues = append(issues, "At least one action is required.")
	}
	for _, a := range t.Actions {
		if len(a.ToCandidateGroups) == 0 {
			issues = append(issues, fmt.Sprintf("Action %q needs at least one recipient group.", a.Label))
		}
		if a.CloseInstance && a.LastStep {
			issues = append(issues, fmt.Sprintf("Action %q cannot be both close form and require reply.", a.Label))
		}
		if a.RequiresAttachmentStatus && len(a.StatusSet) == 0 {
			issues = append(issues, fmt.Sprintf("Action %q requires attachment statuses.", a.Label))
		}
	}

	if !t.ActionFlowEnabled {
		return issues
	}

	starts := 0
	closes := false
	for _, a := range t.Actions {
		if a.IsStart {
			starts++
		}
		closes = closes || a.CloseInstance
	}
	switch {
	case starts == 0:
		issues = append(issues, "Exactly one start action is required when flow is enabled.")
	case starts > 1:
		issues = append(issues, "Only one start action is allowed when flow is enabled.")
	}
	if !closes {
		issues = append(issues, "At least one action must close the form when flow is enabled.")
	}

	for _, a := range t.Actions {
		if slices.Contains(a.NextActionIDs, a.ID) {
			issues = append(issues, fmt.Sprintf("Action %q cannot link to itself.", a.Label))
		}
		for _, id := range a.NextActionIDs {
			next, ok := t.ActionByID(id)
			if !ok {
				issues = append(issues, fmt.Sprintf("Action %q links to missing action %q.", a.Label, id))
				continue
			}
			var missing []string
			for _, roleID := range next.AllowedRoles {
				if !slices.Contains(a.ToCandidateGroups, groupOrID(dir, roleID)) {
					missing = append(missing, labelOf(dir, roleID))
				}
			}
			if len(missing) > 0 {
				issues = append(issues, fmt.Sprintf("Action %q recipients must include initiators of next action %q (missing: %s).",
					a.Label, next.Label, strings.Join(missing, ", ")))
			}
		}
		if a.CloseInstance && len(a.NextActionIDs) > 0 {
			issues = append(issues, fmt.Sprintf("Action %q closes form so it should not have next actions.", a.Label))
		}
		if a.LastStep && len(a.NextActionIDs) == 0 {
			issues = append(issues, fmt.Sprintf("Action %q requires reply but has no next actions.", a.Label))
		}
		if !a.LastStep && len(a.NextActionIDs) > 0 {
			issues = append(issues, fmt.Sprintf("Action %q does not require reply so it should not have next actions.", a.Label))
		}
	}

	return issues
}

func groupOrID(dir *access.Directory, roleID string) string {
	if dir == nil {
		return roleID
	}
	return dir.GroupOrID(roleID)
}

func labelOf(dir *access.Directory, roleID string) string {
	if dir == nil {
		return roleID
	}
	return dir.LabelOf(roleID)
}
