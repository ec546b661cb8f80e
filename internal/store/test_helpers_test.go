package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/tikcccc/Form-demo/internal/ir"
)

// createTestStore creates a new SQLite store in a temp dir for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var testTime = time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

// createTestTemplate creates a template with one field and one action.
func createTestTemplate(id string) *ir.Template {
	return &ir.Template{
		ID:   id,
		Name: "Request for Information",
		Schema: []ir.Field{
			{Key: "question", Label: "Question", Type: ir.FieldTextarea, Required: true},
		},
		Layout: ir.Layout{Sections: []ir.Section{{ID: "main", Fields: []string{"question"}}}},
		Actions: []ir.Action{
			{ID: "submit", Label: "Submit", AllowedRoles: []string{"requester"}, ToCandidateGroups: []string{"QA"}, CloseInstance: true},
		},
		CreatedAt: testTime,
		UpdatedAt: testTime,
	}
}

// createTestInstance creates a draft instance of templateID.
func createTestInstance(id, transmittalNo, templateID string) *ir.Instance {
	return &ir.Instance{
		ID:            id,
		TransmittalNo: transmittalNo,
		TemplateID:    templateID,
		Title:         "Slab opening",
		Status:        ir.StatusDraft,
		CreatedBy:     "requester",
		CreatedAt:     testTime,
		FormData:      ir.FormData{"question": ir.NewText("Where does the riser go?")},
		Attachments:   []ir.Attachment{{ID: "att-1", Name: "plan.pdf", Version: "A"}},
		Steps:         []ir.Step{},
		FormHistory:   []ir.FormHistoryEntry{},
		ActivityLog: []ir.ActivityEntry{
			{ID: "log-1", Type: ir.ActivityCreate, Message: "Requester created the form.", ByRoleID: "requester", At: testTime},
		},
	}
}
