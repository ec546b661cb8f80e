package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTestCommandMissingArgs(t *testing.T) {
	_, err := execute(t, "test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestTestCommandNonExistentScenariosDir(t *testing.T) {
	out, err := execute(t, "test", "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "scenarios directory not found")
}

func TestTestCommandPassesWithGolden(t *testing.T) {
	out, err := execute(t, "test", scenariosDir, "--golden", goldenDir)
	require.NoError(t, err, out)

	assert.Contains(t, out, "✓ review_round_trip")
	assert.Contains(t, out, "✓ rfi_overdue")
	assert.Contains(t, out, "✓ rfi_revision_round")
	assert.Contains(t, out, "Test Summary: 3 passed, 0 failed, 3 total")
}

func TestTestCommandJSON(t *testing.T) {
	resp, err := executeJSON(t, "test", scenariosDir, "--golden", goldenDir, "--filter", "rfi_*")
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
	assert.EqualValues(t, 2, field(t, resp.Data, "total"))
	assert.EqualValues(t, 2, field(t, resp.Data, "passed"))

	scenarios, ok := field(t, resp.Data, "scenarios").([]any)
	require.True(t, ok)
	for _, s := range scenarios {
		assert.Equal(t, "match", field(t, s, "golden"))
	}
}

func TestTestCommandUpdateWritesGolden(t *testing.T) {
	golden := filepath.Join(t.TempDir(), "golden")

	out, err := execute(t, "test", scenariosDir, "--golden", golden, "--update", "--filter", "review_*")
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ review_round_trip (golden updated)")

	written, err := os.ReadFile(filepath.Join(golden, "review_round_trip.golden"))
	require.NoError(t, err)
	want, err := os.ReadFile(filepath.Join(goldenDir, "review_round_trip.golden"))
	require.NoError(t, err)
	assert.JSONEq(t, string(want), string(written))

	resp, err := executeJSON(t, "test", scenariosDir, "--golden", golden, "--filter", "review_*")
	require.NoError(t, err)
	scenarios := field(t, resp.Data, "scenarios").([]any)
	require.Len(t, scenarios, 1)
	assert.Equal(t, "match", field(t, scenarios[0], "golden"))
}

func TestTestCommandMissingGoldenStillRunsAssertions(t *testing.T) {
	resp, err := executeJSON(t, "test", scenariosDir, "--golden", t.TempDir(), "--filter", "rfi_overdue")
	require.NoError(t, err)
	scenarios := field(t, resp.Data, "scenarios").([]any)
	require.Len(t, scenarios, 1)
	assert.Equal(t, true, field(t, scenarios[0], "pass"))
	assert.Equal(t, "missing", field(t, scenarios[0], "golden"))
}

func TestTestCommandFailingScenario(t *testing.T) {
	dir := t.TempDir()
	catalog, err := filepath.Abs(catalogDir)
	require.NoError(t, err)
	src := fmt.Sprintf(`name: wrong_expectation
description: "QA cannot start a review, but the scenario expects it to succeed"
catalog: %s
steps:
  - command: create
    role: requester
    instance: doc
    args: { template_id: review, title: "Level 3 pour" }
  - command: send
    role: qa
    instance: doc
    args: { action_id: start }
assertions:
  - type: trace_count
    command: send
    count: 1
`, catalog)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wrong.yaml"), []byte(src), 0o644))

	out, err := execute(t, "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ wrong_expectation")
	assert.Contains(t, out, "expected ok, got PERMISSION_DENIED")
	assert.Contains(t, out, "Test Summary: 0 passed, 1 failed, 1 total")
}

func TestTestCommandEmptyDirectory(t *testing.T) {
	out, err := execute(t, "test", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found.")
}

func TestFindScenarioFiles(t *testing.T) {
	files, err := findScenarioFiles(scenariosDir, "")
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.Equal(t, "review_round_trip.yaml", filepath.Base(files[0]))

	_, err = findScenarioFiles(scenariosDir, "[")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid filter pattern")
}
