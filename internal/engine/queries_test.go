package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tikcccc/Form-demo/internal/access"
	"github.com/tikcccc/Form-demo/internal/ir"
	"github.com/tikcccc/Form-demo/internal/testutil"
)

func TestDescribe(t *testing.T) {
	env := newTestEnv(t)
	ctx := env.ctx

	draft := env.create(t, "rfi", testutil.Requester, "Riser location")
	view, err := env.eng.Describe(ctx, testutil.Requester, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, "—", view.CurrentTo)
	assert.True(t, view.DueDate.IsZero())
	assert.True(t, view.CanEdit)
	assert.False(t, view.Inbox)
	assert.Equal(t, 1, view.LoopCount)
	assert.Equal(t, []string{"submit"}, view.AvailableActions)
	assert.Equal(t, access.FieldAccess{Visible: true, Editable: true, Required: true}, view.Fields["question"])
	assert.Equal(t, access.FieldAccess{Visible: true}, view.Fields["answer"])

	inst := env.submittedRFI(t)
	view, err = env.eng.Describe(ctx, testutil.QA, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, "QA", view.CurrentTo)
	assert.True(t, view.Inbox)
	assert.True(t, view.Unread)
	assert.False(t, view.Overdue)
	assert.Equal(t, time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC), view.DueDate)
	assert.Equal(t, []string{"answer", "return"}, view.AvailableActions)
	assert.Equal(t, access.FieldAccess{Visible: true}, view.Fields["question"], "sent forms freeze unrestricted fields")
	assert.Equal(t, access.FieldAccess{Visible: true}, view.Fields["answer"], "two actions are available so no action context applies")

	_, err = env.eng.DelegateStep(ctx, testutil.QA, inst.ID, DelegateRequest{ToGroup: "Design"})
	require.NoError(t, err)
	env.clock.AdvanceDays(8)

	view, err = env.eng.Describe(ctx, testutil.Designer, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, "QA, Design", view.CurrentTo)
	assert.True(t, view.Inbox)
	assert.True(t, view.Overdue)

	view, err = env.eng.Describe(ctx, testutil.Requester, inst.ID)
	require.NoError(t, err)
	assert.False(t, view.Inbox)
	assert.False(t, view.CanEdit)
	assert.Empty(t, view.AvailableActions)

	_, err = env.eng.Describe(ctx, testutil.Surveyor, inst.ID)
	assert.True(t, IsPermissionDenied(err), "got %v", err)
}

func TestDescribe_SingleActionContext(t *testing.T) {
	env := newTestEnv(t)
	inst := env.submittedRFI(t)

	// Narrow the reply to one action so the answer field becomes editable.
	tmpl, err := env.eng.GetTemplate(env.ctx, "rfi")
	require.NoError(t, err)
	tmpl.Actions[0].NextActionIDs = []string{"answer"}
	view := env.eng.View(tmpl, testutil.QA, inst)

	assert.Equal(t, []string{"answer"}, view.AvailableActions)
	assert.Equal(t, access.FieldAccess{Visible: true, Editable: true, Required: true}, view.Fields["answer"])
}

func TestCurrentRecipients(t *testing.T) {
	assert.Nil(t, CurrentRecipients(nil))

	step := &ir.Step{ToGroup: "QA"}
	step.ToGroups = []string{"QA", "Design"}
	step.DelegateGroups = []string{"Design", "Survey"}
	assert.Equal(t, []string{"QA", "Design", "Survey"}, CurrentRecipients(step))

	legacy := &ir.Step{ToGroup: "QA"}
	assert.Equal(t, []string{"QA"}, CurrentRecipients(legacy))
}

func TestIsOverdue(t *testing.T) {
	env := newTestEnv(t)
	inst := env.submittedRFI(t)
	due := DueDate(inst)
	require.False(t, due.IsZero())

	assert.False(t, IsOverdue(inst, due))
	assert.False(t, IsOverdue(inst, due.Add(-time.Hour)))
	assert.True(t, IsOverdue(inst, due.AddDate(0, 0, 1)))

	inst.Status = ir.StatusClosed
	assert.False(t, IsOverdue(inst, due.AddDate(0, 0, 30)), "closed instances are never overdue")
}
