package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tikcccc/Form-demo/internal/access"
	"github.com/tikcccc/Form-demo/internal/ir"
)

func testDirectory(t *testing.T) *access.Directory {
	t.Helper()
	dir, err := access.NewDirectory([]ir.Role{
		{ID: "project-admin", Label: "Admin"},
		{ID: "requester", Label: "Requester", Group: "Contractor"},
		{ID: "qa", Label: "QA Lead", Group: "QA"},
		{ID: "designer", Label: "Designer", Group: "Design"},
	})
	require.NoError(t, err)
	return dir
}

// flowTemplate is a publishable submit -> respond -> accept flow.
func flowTemplate() *ir.Template {
	return &ir.Template{
		ID:                "rfi",
		Name:              "RFI",
		ActionFlowEnabled: true,
		Actions: []ir.Action{
			{ID: "submit", Label: "Submit", AllowedRoles: []string{"requester"}, ToCandidateGroups: []string{"QA"},
				LastStep: true, IsStart: true, NextActionIDs: []string{"respond"}},
			{ID: "respond", Label: "Respond", AllowedRoles: []string{"qa"}, ToCandidateGroups: []string{"Contractor"},
				LastStep: true, NextActionIDs: []string{"accept"}},
			{ID: "accept", Label: "Accept", AllowedRoles: []string{"requester"}, ToCandidateGroups: []string{"QA"},
				CloseInstance: true},
		},
	}
}

func TestPublishIssues_Valid(t *testing.T) {
	assert.Empty(t, PublishIssues(flowTemplate(), testDirectory(t)))
}

func TestPublishIssues_Each(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ir.Template)
		want   string
	}{
		{"no recipients", func(t *ir.Template) { t.Actions[2].ToCandidateGroups = nil },
			`Action "Accept" needs at least one recipient group.`},
		{"status gate without statuses", func(t *ir.Template) { t.Actions[2].RequiresAttachmentStatus = true },
			`Action "Accept" requires attachment statuses.`},
		{"two starts", func(t *ir.Template) { t.Actions[1].IsStart = true },
			"Only one start action is allowed when flow is enabled."},
		{"self link", func(t *ir.Template) {
			t.Actions[1].NextActionIDs = []string{"accept", "respond"}
			t.Actions[1].ToCandidateGroups = []string{"Contractor", "QA"}
		},
			`Action "Respond" cannot link to itself.`},
		{"missing link", func(t *ir.Template) { t.Actions[1].NextActionIDs = []string{"accept", "ghost"} },
			`Action "Respond" links to missing action "ghost".`},
		{"recipients miss initiators", func(t *ir.Template) { t.Actions[0].ToCandidateGroups = []string{"Design"} },
			`Action "Submit" recipients must include initiators of next action "Respond" (missing: QA Lead).`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpl := flowTemplate()
			tt.mutate(tmpl)
			assert.Equal(t, []string{tt.want}, PublishIssues(tmpl, testDirectory(t)))
		})
	}
}

func TestPublishIssues_NoActions(t *testing.T) {
	tmpl := &ir.Template{ID: "x", ActionFlowEnabled: true}
	assert.Equal(t, []string{
		"At least one action is required.",
		"Exactly one start action is required when flow is enabled.",
		"At least one action must close the form when flow is enabled.",
	}, PublishIssues(tmpl, testDirectory(t)))
}

func TestPublishIssues_CloseAndReply(t *testing.T) {
	tmpl := flowTemplate()
	tmpl.Actions[2].LastStep = true

	assert.Equal(t, []string{
		`Action "Accept" cannot be both close form and require reply.`,
		`Action "Accept" requires reply but has no next actions.`,
	}, PublishIssues(tmpl, testDirectory(t)))
}

func TestPublishIssues_NextActionRules(t *testing.T) {
	tmpl := flowTemplate()
	tmpl.Actions[1].LastStep = false
	tmpl.Actions[2].NextActionIDs = []string{"submit"}

	assert.Equal(t, []string{
		`Action "Respond" does not require reply so it should not have next actions.`,
		`Action "Accept" recipients must include initiators of next action "Submit" (missing: Requester).`,
		`Action "Accept" closes form so it should not have next actions.`,
		`Action "Accept" does not require reply so it should not have next actions.`,
	}, PublishIssues(tmpl, testDirectory(t)))
}

func TestPublishIssues_FlowChecksOnlyWhenEnabled(t *testing.T) {
	tmpl := flowTemplate()
	tmpl.ActionFlowEnabled = false
	tmpl.Actions[0].IsStart = false
	tmpl.Actions[2].CloseInstance = false
	tmpl.Actions[1].NextActionIDs = []string{"ghost"}

	assert.Empty(t, PublishIssues(tmpl, testDirectory(t)))
}

func TestPublishIssues_UnknownRoleFallsBackToID(t *testing.T) {
	tmpl := flowTemplate()
	tmpl.Actions[1].AllowedRoles = []string{"qa", "auditor"}

	assert.Equal(t, []string{
		`Action "Submit" recipients must include initiators of next action "Respond" (missing: auditor).`,
	}, PublishIssues(tmpl, testDirectory(t)))

	tmpl.Actions[0].ToCandidateGroups = []string{"QA", "auditor"}
	assert.Empty(t, PublishIssues(tmpl, testDirectory(t)), "unknown roles route to their own id")
}
