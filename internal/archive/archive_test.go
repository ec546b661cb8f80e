package archive

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/afs"

	"github.com/tikcccc/Form-demo/internal/ir"
	"github.com/tikcccc/Form-demo/internal/testutil"
)

func closedInstance(transmittalNo string) *ir.Instance {
	at := testutil.Epoch
	return &ir.Instance{
		ID:            "inst-" + transmittalNo,
		TransmittalNo: transmittalNo,
		TemplateID:    "review",
		Title:         "Level 3 pour",
		Status:        ir.StatusClosed,
		CreatedBy:     testutil.Requester,
		CreatedAt:     at,
		Revision:      4,
		FormData:      ir.FormData{"title": ir.NewText("Level 3 pour")},
		Attachments:   []ir.Attachment{{ID: "att-1", Name: "plan.pdf", Version: "A", StepID: "step-1", Status: "Approved"}},
		Steps: []ir.Step{{
			ID: "step-1", ActionID: "start", ActionLabel: "Start", FromRoleID: testutil.Requester,
			ToGroup: "QA", ToGroups: []string{"QA"}, SentAt: at, LastStep: true,
		}},
		FormHistory: []ir.FormHistoryEntry{},
		ActivityLog: []ir.ActivityEntry{{ID: "log-1", Type: ir.ActivityCreate, Message: "Requester created the form.", ByRoleID: testutil.Requester, At: at}},
	}
}

func memURL(t *testing.T) string {
	return "mem://localhost/archive/" + strings.ReplaceAll(t.Name(), "/", "_")
}

func newExporter(t *testing.T, baseURL string) *Exporter {
	t.Helper()
	exported := time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)
	e, err := New(context.Background(), baseURL, WithNow(func() time.Time { return exported }))
	require.NoError(t, err)
	return e
}

func TestExporter_ArchiveAndLoad(t *testing.T) {
	ctx := context.Background()
	e := newExporter(t, memURL(t))
	inst := closedInstance("REV-2026-0001")

	require.NoError(t, e.Archive(ctx, inst, testutil.ReviewTemplate()))

	b, err := e.Load(ctx, "REV-2026-0001")
	require.NoError(t, err)
	assert.Equal(t, ir.SchemaVersion, b.SchemaVersion)
	assert.Equal(t, time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC), b.ExportedAt)
	assert.Equal(t, inst.ID, b.Instance.ID)
	assert.Equal(t, ir.StatusClosed, b.Instance.Status)
	assert.Equal(t, ir.TextValue("Level 3 pour"), b.Instance.FormData["title"])
	assert.Equal(t, "review", b.Template.ID)
	assert.Len(t, b.Hash, 64)

	ok, err := b.Verify()
	require.NoError(t, err)
	assert.True(t, ok)

	b.Instance.Title = "tampered"
	ok, err = b.Verify()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExporter_LoadMissing(t *testing.T) {
	e := newExporter(t, memURL(t))
	_, err := e.Load(context.Background(), "REV-2026-0404")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExporter_ListAndReplace(t *testing.T) {
	ctx := context.Background()
	e := newExporter(t, memURL(t))

	empty, err := e.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty)

	for _, no := range []string{"RFI-2026-0002", "REV-2026-0001", "RFI-2026-0001"} {
		require.NoError(t, e.Archive(ctx, closedInstance(no), testutil.ReviewTemplate()))
	}
	replaced := closedInstance("RFI-2026-0001")
	replaced.Title = "Second export"
	require.NoError(t, e.Archive(ctx, replaced, testutil.ReviewTemplate()))

	numbers, err := e.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"REV-2026-0001", "RFI-2026-0001", "RFI-2026-0002"}, numbers)

	b, err := e.Load(ctx, "RFI-2026-0001")
	require.NoError(t, err)
	assert.Equal(t, "Second export", b.Instance.Title)
}

func TestExporter_FileURL(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "archive")
	e := newExporter(t, dir)
	assert.True(t, strings.HasPrefix(e.BaseURL(), "file://"), e.BaseURL())

	require.NoError(t, e.Archive(ctx, closedInstance("MEMO-2026-0001"), testutil.MemoTemplate()))

	exists, err := afs.New().Exists(ctx, filepath.Join(dir, "MEMO-2026-0001.json"))
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestExporter_Rejections(t *testing.T) {
	_, err := New(context.Background(), "  ")
	assert.Error(t, err)

	e := newExporter(t, memURL(t))
	err = e.Archive(context.Background(), &ir.Instance{ID: "no-number"}, testutil.ReviewTemplate())
	assert.Error(t, err)
}
