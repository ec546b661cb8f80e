package engine

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tikcccc/Form-demo/internal/ir"
	"github.com/tikcccc/Form-demo/internal/store"
	"github.com/tikcccc/Form-demo/internal/testutil"
)

type testEnv struct {
	eng   *Engine
	repo  Repository
	clock *testutil.DeterministicClock
	ctx   context.Context
}

// newTestEnv builds an engine over an in-memory repository seeded with the
// review, rfi and memo fixtures.
func newTestEnv(t *testing.T, opts ...EngineOption) *testEnv {
	t.Helper()
	return newTestEnvWithRepo(t, store.NewMemory(), opts...)
}

func newTestEnvWithRepo(t *testing.T, repo Repository, opts ...EngineOption) *testEnv {
	t.Helper()
	ctx := context.Background()
	for _, tmpl := range []*ir.Template{testutil.ReviewTemplate(), testutil.RFITemplate(), testutil.MemoTemplate()} {
		require.NoError(t, repo.SaveTemplate(ctx, tmpl, 0))
	}
	clock := testutil.NewDeterministicClock(testutil.Epoch)
	base := []EngineOption{
		WithClock(clock),
		WithIDGenerator(testutil.NewSequenceGenerator("id")),
		WithCommonFields(testutil.CommonFields()),
	}
	return &testEnv{
		eng:   New(repo, testutil.Directory(t), append(base, opts...)...),
		repo:  repo,
		clock: clock,
		ctx:   ctx,
	}
}

func (env *testEnv) create(t *testing.T, templateID, roleID, title string) *ir.Instance {
	t.Helper()
	inst, err := env.eng.CreateInstance(env.ctx, roleID, CreateRequest{TemplateID: templateID, Title: title})
	require.NoError(t, err)
	return inst
}

func (env *testEnv) send(t *testing.T, roleID, id string, req SendRequest) *ir.Instance {
	t.Helper()
	inst, err := env.eng.SendAction(env.ctx, roleID, id, req)
	require.NoError(t, err)
	return inst
}

func (env *testEnv) stored(t *testing.T, id string) *ir.Instance {
	t.Helper()
	inst, err := env.repo.GetInstance(env.ctx, id)
	require.NoError(t, err)
	return inst
}

// submittedRFI creates an RFI with a valid question and sends it to QA.
func (env *testEnv) submittedRFI(t *testing.T) *ir.Instance {
	t.Helper()
	inst := env.create(t, "rfi", testutil.Requester, "Riser location")
	_, err := env.eng.UpdateFormField(env.ctx, testutil.Requester, inst.ID, "question", "Where does the riser go?", "")
	require.NoError(t, err)
	return env.send(t, testutil.Requester, inst.ID, SendRequest{ActionID: "submit", ToGroups: []string{"QA"}})
}

type recordingArchiver struct {
	mu       sync.Mutex
	archived []string
	err      error
}

func (a *recordingArchiver) Archive(_ context.Context, inst *ir.Instance, _ *ir.Template) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.archived = append(a.archived, inst.TransmittalNo)
	return a.err
}

func TestEngine_New(t *testing.T) {
	eng := New(store.NewMemory(), testutil.Directory(t))

	assert.NotNil(t, eng.clock)
	assert.NotNil(t, eng.ids)
	assert.NotNil(t, eng.logger)
	assert.NotNil(t, eng.tracer)
	assert.Empty(t, eng.CommonFields())
	assert.True(t, eng.Directory().IsAdmin(testutil.Admin))
}

func TestEngine_ReviewScenario(t *testing.T) {
	archiver := &recordingArchiver{}
	env := newTestEnv(t, WithArchiver(archiver))
	ctx := env.ctx

	inst := env.create(t, "review", testutil.Requester, "Level 3 pour")
	assert.Equal(t, ir.StatusDraft, inst.Status)
	assert.Equal(t, "REV-2026-0001", inst.TransmittalNo)
	assert.Equal(t, "Level 3 pour", inst.Title)
	assert.Empty(t, inst.Steps)

	inst = env.send(t, testutil.Requester, inst.ID, SendRequest{ActionID: "start"})
	assert.Equal(t, ir.StatusSent, inst.Status)
	require.Len(t, inst.Steps, 1)
	assert.Equal(t, []string{"QA"}, inst.Steps[0].ToGroups)

	inst, err := env.eng.MarkOpened(ctx, testutil.QA, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, ir.StatusReceived, inst.Status)

	inst = env.send(t, testutil.QA, inst.ID, SendRequest{
		ActionID: "approve", ToGroups: []string{"Contractor"}, Message: "Approved as noted",
	})
	assert.Equal(t, ir.StatusSent, inst.Status)
	require.Len(t, inst.Steps, 2)

	inst = env.send(t, testutil.Requester, inst.ID, SendRequest{ActionID: "close", Message: "Thanks"})
	assert.Equal(t, ir.StatusClosed, inst.Status)
	assert.Len(t, inst.Steps, 3)
	assert.Equal(t, []string{"REV-2026-0001"}, archiver.archived)

	_, err = env.eng.SendAction(ctx, testutil.QA, inst.ID, SendRequest{ActionID: "approve", Message: "again"})
	assert.True(t, IsInvalidTransition(err), "got %v", err)
	_, err = env.eng.SendAction(ctx, testutil.Requester, inst.ID, SendRequest{ActionID: "close", Message: "again"})
	assert.True(t, IsInvalidTransition(err), "got %v", err)

	var types []ir.ActivityType
	for _, entry := range env.stored(t, inst.ID).ActivityLog {
		types = append(types, entry.Type)
	}
	assert.Equal(t, []ir.ActivityType{
		ir.ActivityCreate, ir.ActivitySend, ir.ActivityView, ir.ActivitySend, ir.ActivitySend, ir.ActivityClose,
	}, types)
}

func TestEngine_ReviewScenarioOnSQLite(t *testing.T) {
	s, err := store.Open(filepath.Join(t.TempDir(), "formflow.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	env := newTestEnvWithRepo(t, s)

	inst := env.create(t, "review", testutil.Requester, "Level 3 pour")
	inst = env.send(t, testutil.Requester, inst.ID, SendRequest{ActionID: "start"})
	_, err = env.eng.MarkOpened(env.ctx, testutil.QA, inst.ID)
	require.NoError(t, err)
	inst = env.send(t, testutil.QA, inst.ID, SendRequest{ActionID: "approve", Message: "ok"})
	inst = env.send(t, testutil.Requester, inst.ID, SendRequest{ActionID: "close", Message: "done"})

	stored := env.stored(t, inst.ID)
	assert.Equal(t, ir.StatusClosed, stored.Status)
	assert.Len(t, stored.Steps, 3)
	assert.Equal(t, inst.Revision, stored.Revision)
	assert.Equal(t, ir.NewText("Level 3 pour"), stored.FormData["title"])
}

// snapshot captures the parts of an instance a rejected command must not touch.
func snapshot(t *testing.T, inst *ir.Instance) string {
	t.Helper()
	data, err := json.Marshal(struct {
		Steps       []ir.Step
		Attachments []ir.Attachment
		Status      ir.Status
		Revision    int64
	}{inst.Steps, inst.Attachments, inst.Status, inst.Revision})
	require.NoError(t, err)
	return string(data)
}

func TestSendAction_RejectionLeavesInstanceUntouched(t *testing.T) {
	env := newTestEnv(t)
	inst := env.create(t, "rfi", testutil.Requester, "Riser location")
	_, err := env.eng.UpdateFormField(env.ctx, testutil.Requester, inst.ID, "question", "Where does the riser go?", "")
	require.NoError(t, err)
	_, _, err = env.eng.AddAttachment(env.ctx, testutil.Requester, inst.ID, AttachmentInput{Name: "plan.pdf", Version: "A"})
	require.NoError(t, err)
	inst = env.send(t, testutil.Requester, inst.ID, SendRequest{ActionID: "submit", ToGroups: []string{"QA"}})
	before := snapshot(t, env.stored(t, inst.ID))

	tests := []struct {
		name   string
		roleID string
		req    SendRequest
		kind   ErrorKind
	}{
		{"unknown action", testutil.QA, SendRequest{ActionID: "ghost", Message: "x"}, KindNotFound},
		{"role not allowed", testutil.Surveyor, SendRequest{ActionID: "answer", Message: "x"}, KindPermissionDenied},
		{"not a recipient", testutil.Designer, SendRequest{ActionID: "answer", Message: "x"}, KindPermissionDenied},
		{"requester not a recipient", testutil.Requester, SendRequest{ActionID: "submit", Message: "x"}, KindPermissionDenied},
		{"attachment gate", testutil.QA, SendRequest{ActionID: "return", Message: "x"}, KindPreconditionNotMet},
		{"reply message", testutil.QA, SendRequest{ActionID: "answer", Message: "   "}, KindPreconditionNotMet},
		{"form validation", testutil.QA, SendRequest{ActionID: "answer", Message: "x"}, KindValidationFailed},
		{"recipient outside candidates", testutil.QA, SendRequest{ActionID: "answer", ToGroups: []string{"QA"}, Message: "x"}, KindValidationFailed},
		{"stale view", testutil.QA, SendRequest{ActionID: "answer", Message: "x", ExpectedStepCount: ptrTo(0)}, KindConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.eng.SendAction(env.ctx, tt.roleID, inst.ID, tt.req)
			require.Error(t, err)
			assert.Equal(t, tt.kind, KindOf(err), "got %v", err)
			assert.Equal(t, before, snapshot(t, env.stored(t, inst.ID)))
		})
	}
}

func TestSendAction_ValidationReportsFields(t *testing.T) {
	env := newTestEnv(t)
	inst := env.submittedRFI(t)

	_, err := env.eng.SendAction(env.ctx, testutil.QA, inst.ID, SendRequest{ActionID: "answer", Message: "see answer"})
	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, KindValidationFailed, e.Kind)
	assert.Equal(t, map[string]string{"answer": "Answer is required."}, e.Fields)
}

func TestSendAction_ClosedRejectsEverything(t *testing.T) {
	env := newTestEnv(t)
	inst := env.create(t, "memo", testutil.Requester, "Site access")
	inst = env.send(t, testutil.Requester, inst.ID, SendRequest{ActionID: "send", ToGroups: []string{"Design", "QA"}})
	require.Equal(t, ir.StatusClosed, inst.Status)
	assert.Equal(t, "Design", inst.Steps[0].ToGroup)
	assert.Equal(t, []string{"Design", "QA"}, inst.Steps[0].ToGroups)

	_, err := env.eng.SendAction(env.ctx, testutil.Admin, inst.ID, SendRequest{ActionID: "send"})
	assert.True(t, IsInvalidTransition(err))
	_, err = env.eng.MarkOpened(env.ctx, testutil.QA, inst.ID)
	assert.True(t, IsInvalidTransition(err))
	_, _, err = env.eng.AddAttachment(env.ctx, testutil.Admin, inst.ID, AttachmentInput{Name: "late.pdf"})
	assert.True(t, IsInvalidTransition(err))
}

func TestSendAction_ConcurrentRepliesOnlyOneWins(t *testing.T) {
	env := newTestEnv(t)
	inst := env.create(t, "review", testutil.Requester, "Level 3 pour")
	inst = env.send(t, testutil.Requester, inst.ID, SendRequest{ActionID: "start"})

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, roleID := range []string{testutil.QA, testutil.Reviewer} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = env.eng.SendAction(env.ctx, roleID, inst.ID, SendRequest{ActionID: "approve", Message: "ok"})
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		}
	}
	assert.Equal(t, 1, succeeded, "errors: %v", errs)
	assert.Len(t, env.stored(t, inst.ID).Steps, 2)
}

// racingRepo lets another writer save first, as a second process would.
type racingRepo struct {
	*store.Memory
	raced bool
}

func (r *racingRepo) SaveInstance(ctx context.Context, inst *ir.Instance, expectedRevision int64) error {
	if expectedRevision > 0 && !r.raced {
		r.raced = true
		other, err := r.Memory.GetInstance(ctx, inst.ID)
		if err != nil {
			return err
		}
		other.Title = "changed elsewhere"
		if err := r.Memory.SaveInstance(ctx, other, expectedRevision); err != nil {
			return err
		}
	}
	return r.Memory.SaveInstance(ctx, inst, expectedRevision)
}

func TestSendAction_StoreConflict(t *testing.T) {
	repo := &racingRepo{Memory: store.NewMemory()}
	env := newTestEnvWithRepo(t, repo)
	inst := env.create(t, "review", testutil.Requester, "Level 3 pour")

	_, err := env.eng.SendAction(env.ctx, testutil.Requester, inst.ID, SendRequest{ActionID: "start"})
	assert.True(t, IsConflict(err), "got %v", err)

	stored := env.stored(t, inst.ID)
	assert.Equal(t, "changed elsewhere", stored.Title)
	assert.Empty(t, stored.Steps)

	// The caller reloads and retries.
	inst = env.send(t, testutil.Requester, inst.ID, SendRequest{ActionID: "start"})
	assert.Len(t, inst.Steps, 1)
}

func TestSendAction_ArchiveFailureDoesNotFailCommand(t *testing.T) {
	archiver := &recordingArchiver{err: errors.New("disk full")}
	env := newTestEnv(t, WithArchiver(archiver))
	inst := env.create(t, "memo", testutil.Requester, "Site access")

	inst = env.send(t, testutil.Requester, inst.ID, SendRequest{ActionID: "send"})
	assert.Equal(t, ir.StatusClosed, inst.Status)
	assert.Len(t, archiver.archived, 1)
	assert.Equal(t, ir.StatusClosed, env.stored(t, inst.ID).Status)
}

func TestSendAction_CloseOnOpen(t *testing.T) {
	env := newTestEnv(t)
	closeOnOpen := true
	_, err := env.eng.UpdateTemplate(env.ctx, testutil.Admin, "memo", TemplatePatch{CloseOnOpen: &closeOnOpen})
	require.NoError(t, err)

	inst := env.create(t, "memo", testutil.Requester, "Site access")
	inst = env.send(t, testutil.Requester, inst.ID, SendRequest{ActionID: "send"})
	assert.Equal(t, ir.StatusSent, inst.Status, "closing waits for acknowledgment")

	inst, err = env.eng.MarkOpened(env.ctx, testutil.QA, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, ir.StatusClosed, inst.Status)
	assert.False(t, inst.Steps[0].OpenedAt.IsZero())
}

func TestMutateInstance_ExpectedHash(t *testing.T) {
	env := newTestEnv(t)
	inst := env.create(t, "review", testutil.Requester, "Level 3 pour")
	hash, err := ir.InstanceHash(inst)
	require.NoError(t, err)

	// Another writer changes the instance after the caller read it.
	_, _, err = env.eng.AddAttachment(env.ctx, testutil.Requester, inst.ID, AttachmentInput{Name: "plan.pdf"})
	require.NoError(t, err)
	before := env.stored(t, inst.ID)

	_, err = env.eng.SendAction(WithExpectedHash(env.ctx, hash), testutil.Requester, inst.ID, SendRequest{ActionID: "start"})
	require.True(t, IsConflict(err), "got %v", err)
	assert.Equal(t, before.Revision, env.stored(t, inst.ID).Revision, "stale command is not applied")

	current, err := ir.InstanceHash(before)
	require.NoError(t, err)
	sent, err := env.eng.SendAction(WithExpectedHash(env.ctx, current), testutil.Requester, inst.ID, SendRequest{ActionID: "start"})
	require.NoError(t, err)
	assert.Equal(t, ir.StatusSent, sent.Status)

	_, ok := ExpectedHash(WithExpectedHash(env.ctx, ""))
	assert.False(t, ok, "an empty hash disables the check")
}

func ptrTo[T any](v T) *T { return &v }
