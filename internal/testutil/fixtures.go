package testutil

import (
	"testing"

	"github.com/tikcccc/Form-demo/internal/access"
	"github.com/tikcccc/Form-demo/internal/ir"
)

// Role ids used by the fixtures.
const (
	Admin     = "project-admin"
	Requester = "requester"
	QA        = "qa"
	Reviewer  = "qa-reviewer"
	Designer  = "designer"
	Surveyor  = "surveyor"
)

// Roles returns the fixture role table. QA and Reviewer share the QA group.
func Roles() []ir.Role {
	return []ir.Role{
		{ID: Admin, Label: "Project Admin", Group: "Admin"},
		{ID: Requester, Label: "Requester", Group: "Contractor"},
		{ID: QA, Label: "QA Lead", Group: "QA"},
		{ID: Reviewer, Label: "QA Reviewer", Group: "QA"},
		{ID: Designer, Label: "Designer", Group: "Design"},
		{ID: Surveyor, Label: "Surveyor", Group: "Survey"},
	}
}

// Directory builds the fixture role directory.
func Directory(tb testing.TB) *access.Directory {
	tb.Helper()
	dir, err := access.NewDirectory(Roles())
	if err != nil {
		tb.Fatalf("NewDirectory() failed: %v", err)
	}
	return dir
}

// CommonFields returns a required title and an optional reference.
func CommonFields() []ir.CommonField {
	return []ir.CommonField{
		{Field: ir.Field{Key: "title", Label: "Title", Type: ir.FieldText}},
		{Field: ir.Field{Key: "ref", Label: "Reference", Type: ir.FieldText}, Optional: true},
	}
}

// ReviewTemplate is the minimal start -> approve -> close flow.
func ReviewTemplate() *ir.Template {
	return &ir.Template{
		ID:                "review",
		Code:              "REV",
		Name:              "Review",
		Published:         true,
		ActionFlowEnabled: true,
		Schema:            []ir.Field{},
		Layout:            ir.Layout{Sections: []ir.Section{}},
		Actions: []ir.Action{
			{
				ID: "start", Label: "Start", AllowedRoles: []string{Requester},
				ToCandidateGroups: []string{"QA"}, LastStep: true, IsStart: true,
				NextActionIDs: []string{"approve"},
			},
			{
				ID: "approve", Label: "Approve", AllowedRoles: []string{QA, Reviewer},
				ToCandidateGroups: []string{"Contractor"}, LastStep: true,
				NextActionIDs: []string{"close"},
			},
			{
				ID: "close", Label: "Close", AllowedRoles: []string{Requester},
				ToCandidateGroups: []string{"QA"}, CloseInstance: true,
			},
		},
	}
}

func ptr[T any](v T) *T { return &v }

// RFITemplate is a request-for-information flow with conditional sections,
// restricted reply fields, delegation, an attachment status gate and a
// revision round.
//
//	submit -> answer (closes)
//	submit -> return -> submit
func RFITemplate() *ir.Template {
	return &ir.Template{
		ID:                "rfi",
		Code:              "RFI",
		Name:              "Request for Information",
		Published:         true,
		ActionFlowEnabled: true,
		InitiatorRoleIDs:  []string{Requester},
		RevisionActionIDs: []string{"return"},
		Schema: []ir.Field{
			{Key: "question", Label: "Question", Type: ir.FieldTextarea, Required: true, MinLength: ptr(5), MaxLength: ptr(200)},
			{Key: "discipline", Label: "Discipline", Type: ir.FieldSelect, Options: []string{"Civil", "MEP"}},
			{Key: "cost", Label: "Cost", Type: ir.FieldNumber, Min: ptr(0.0), Max: ptr(1000.0)},
			{Key: "urgent", Label: "Urgent", Type: ir.FieldBoolean},
			{Key: "mep_detail", Label: "MEP Detail", Type: ir.FieldText, Required: true},
			{
				Key: "answer", Label: "Answer", Type: ir.FieldTextarea, Required: true,
				EditableRoles: []string{QA, Designer}, EditableActionIDs: []string{"answer"},
			},
		},
		Layout: ir.Layout{Sections: []ir.Section{
			{ID: "main", Title: "Question", Fields: []string{"question", "discipline", "cost", "urgent"}},
			{ID: "mep", Title: "MEP", Fields: []string{"mep_detail"},
				VisibleWhen: &ir.VisibleWhen{Field: "discipline", Equals: ir.SelectValue("MEP")}},
			{ID: "reply", Title: "Reply", Fields: []string{"answer"}},
		}},
		Actions: []ir.Action{
			{
				ID: "submit", Label: "Submit", AllowedRoles: []string{Requester},
				ToCandidateGroups: []string{"QA", "Design"}, DueDays: 7, LastStep: true,
				AllowDelegate: true, IsStart: true, NextActionIDs: []string{"answer", "return"},
			},
			{
				ID: "answer", Label: "Answer", AllowedRoles: []string{QA, Designer},
				ToCandidateGroups: []string{"Contractor"}, CCRoleIDs: []string{Surveyor}, CloseInstance: true,
			},
			{
				ID: "return", Label: "Return for Revision", AllowedRoles: []string{QA, Designer},
				ToCandidateGroups: []string{"Contractor"}, LastStep: true,
				RequiresAttachmentStatus: true, StatusSet: []string{"Approved", "Rejected", "Revise"},
				NextActionIDs: []string{"submit"},
			},
		},
	}
}

// MemoTemplate has no flow: every allowed action is always available and
// sending closes immediately.
func MemoTemplate() *ir.Template {
	return &ir.Template{
		ID:        "memo",
		Name:      "Memo",
		Published: true,
		Schema:    []ir.Field{{Key: "body", Label: "Body", Type: ir.FieldTextarea}},
		Layout:    ir.Layout{Sections: []ir.Section{{ID: "main", Fields: []string{"body"}}}},
		Actions: []ir.Action{
			{
				ID: "send", Label: "Send", AllowedRoles: []string{Requester, Designer},
				ToCandidateGroups: []string{"QA", "Design"}, CCRoleIDs: []string{Surveyor}, CloseInstance: true,
			},
		},
	}
}
