package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeScenario writes a scenario file that uses the shared test catalog.
func writeScenario(t *testing.T, content string) string {
	t.Helper()
	catalog, err := filepath.Abs("testdata/catalog")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte("catalog: "+catalog+"\n"+content), 0o644))
	return path
}

func TestLoadScenario_ValidFile(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/review_round_trip.yaml")
	require.NoError(t, err)

	assert.Equal(t, "review_round_trip", s.Name)
	assert.Equal(t, filepath.Join("testdata", "catalog"), s.Catalog)
	require.Len(t, s.Steps, 8)
	assert.Equal(t, CmdCreate, s.Steps[0].Command)
	assert.Equal(t, "doc", s.Steps[0].Instance)
	assert.Equal(t, "review", s.Steps[0].Args["template_id"])
	assert.Equal(t, "PERMISSION_DENIED", s.Steps[1].Expect)
	require.Len(t, s.Assertions, 4)
	assert.Equal(t, AssertFinalState, s.Assertions[3].Type)
}

func TestLoadScenario_UnknownField(t *testing.T) {
	_, err := LoadScenario("testdata/invalid/unknown_field.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario("testdata/scenarios/nope.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_Validation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing name",
			content: "description: d\nsteps: [{command: open, role: qa, instance: a}]\nassertions: [{type: trace_order, commands: [open]}]\n",
			wantErr: "name is required",
		},
		{
			name:    "no steps",
			content: "name: n\ndescription: d\nassertions: [{type: trace_order, commands: [open]}]\n",
			wantErr: "steps list is required",
		},
		{
			name:    "unknown command",
			content: "name: n\ndescription: d\nsteps: [{command: approve, role: qa, instance: a}]\nassertions: [{type: trace_order, commands: [open]}]\n",
			wantErr: `unknown command "approve"`,
		},
		{
			name:    "missing role",
			content: "name: n\ndescription: d\nsteps: [{command: open, instance: a}]\nassertions: [{type: trace_order, commands: [open]}]\n",
			wantErr: "role is required",
		},
		{
			name:    "missing attachment alias",
			content: "name: n\ndescription: d\nsteps: [{command: add_attachment, role: qa, instance: a}]\nassertions: [{type: trace_order, commands: [open]}]\n",
			wantErr: "attachment alias is required",
		},
		{
			name:    "final_state without expect",
			content: "name: n\ndescription: d\nsteps: [{command: open, role: qa, instance: a}]\nassertions: [{type: final_state, instance: a}]\n",
			wantErr: "expect is required for final_state",
		},
		{
			name:    "unknown assertion",
			content: "name: n\ndescription: d\nsteps: [{command: open, role: qa, instance: a}]\nassertions: [{type: eventually}]\n",
			wantErr: `unknown assertion type "eventually"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadScenario(writeScenario(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadScenario_MissingCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	content := "name: n\ndescription: d\ncatalog: ./nowhere\nsteps: [{command: open, role: qa, instance: a}]\nassertions: [{type: trace_order, commands: [open]}]\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "catalog directory not found")
}
