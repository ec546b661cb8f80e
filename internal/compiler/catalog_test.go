package compiler

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tikcccc/Form-demo/internal/ir"
)

func TestLoadCatalog(t *testing.T) {
	cat, err := LoadCatalog("testdata/catalog")
	require.NoError(t, err)

	require.Len(t, cat.Roles, 4)
	assert.Equal(t, ir.Role{ID: "qa", Label: "QA Lead", Group: "QA"}, cat.Roles[2])

	require.Len(t, cat.CommonFields, 2)
	assert.False(t, cat.CommonFields[0].Optional)
	assert.True(t, cat.CommonFields[1].Optional)
	assert.Equal(t, []string{"title", "ref"}, cat.CommonFieldKeys())

	require.Len(t, cat.Templates, 2)
	assert.Equal(t, "memo-v2", cat.Templates[0].ID, "explicit id wins over the struct label")
	rfi := cat.Templates[1]
	assert.Equal(t, "rfi", rfi.ID)
	assert.Equal(t, "RFI", rfi.Code)
	assert.True(t, rfi.Published)
	assert.True(t, rfi.ActionFlowEnabled)
	assert.Equal(t, []string{"revise"}, rfi.RevisionActionIDs)

	priority, ok := rfi.FieldByKey("priority")
	require.True(t, ok)
	assert.Equal(t, ir.SelectValue("Low"), priority.DefaultValue)

	cost, ok := rfi.FieldByKey("cost")
	require.True(t, ok)
	require.NotNil(t, cost.Max)
	assert.InDelta(t, 1000.0, *cost.Max, 0)

	question, ok := rfi.FieldByKey("question")
	require.True(t, ok)
	require.NotNil(t, question.MinLength)
	assert.Equal(t, 5, *question.MinLength)

	require.Len(t, rfi.Layout.Sections, 2)
	guard := rfi.Layout.Sections[1].VisibleWhen
	require.NotNil(t, guard)
	assert.Equal(t, ir.SelectValue("High"), guard.Equals, "guard takes the type of the watched field")

	submit, ok := rfi.ActionByID("submit")
	require.True(t, ok)
	assert.True(t, submit.IsStart)
	assert.Equal(t, 7, submit.DueDays)
	assert.Equal(t, []string{"respond"}, submit.NextActionIDs)

	assert.Empty(t, Validate(cat))
}

func TestLoadCatalog_SchemaViolation(t *testing.T) {
	_, err := LoadCatalog("testdata/broken")
	require.Error(t, err)

	var compileErr *CompileError
	require.True(t, errors.As(err, &compileErr))
	assert.Equal(t, "cue", compileErr.Field)
}

func TestLoadCatalog_MissingDir(t *testing.T) {
	_, err := LoadCatalog("testdata/nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "catalog directory not found")
}

func TestLoadCatalog_EmptyDir(t *testing.T) {
	_, err := LoadCatalog(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no CUE files found")
}

func TestCompileCatalogString_DefaultValueMismatch(t *testing.T) {
	src := `
templates: t: {
	name: "T"
	schema: [{key: "n", type: "number", default_value: "ten"}]
}
`
	_, err := CompileCatalogString("inline.cue", src)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "default_value")
}

func TestCompileCatalogString_UnknownGuardFieldInfersKind(t *testing.T) {
	src := `
templates: t: {
	name: "T"
	layout: sections: [{fields: [], visible_when: {field: "ghost", equals: true}}]
}
`
	cat, err := CompileCatalogString("inline.cue", src)
	require.NoError(t, err)
	require.Len(t, cat.Templates, 1)
	assert.Equal(t, ir.BoolValue(true), cat.Templates[0].Layout.Sections[0].VisibleWhen.Equals)

	errs := Validate(cat)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrUnknownFieldRef, errs[0].Code)
}

func TestCompileCatalogString_ClosedSchema(t *testing.T) {
	src := `
templates: t: {
	name: "T"
	colour: "red"
}
`
	_, err := CompileCatalogString("inline.cue", src)
	require.Error(t, err)
}
