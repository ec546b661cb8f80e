package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

var (
	catalogDir   = filepath.Join("..", "harness", "testdata", "catalog")
	scenariosDir = filepath.Join("..", "harness", "testdata", "scenarios")
	goldenDir    = filepath.Join("..", "harness", "testdata", "golden")
)

// writeConfig writes a config file backed by a fresh SQLite database and
// the harness catalog.
func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	catalog, err := filepath.Abs(catalogDir)
	require.NoError(t, err)

	path := filepath.Join(dir, "formflow.yaml")
	body := fmt.Sprintf(`log:
  level: warn
  format: text
store:
  driver: sqlite
  path: %s
catalog:
  dir: %s
`, filepath.Join(dir, "formflow.db"), catalog)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

// execute runs the root command and returns stdout and the command error.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

// executeJSON runs the root command with --format json and decodes the
// response.
func executeJSON(t *testing.T, args ...string) (CLIResponse, error) {
	t.Helper()
	out, err := execute(t, append(args, "--format", "json")...)
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), "output: %s", out)
	return resp, err
}

// field walks a decoded JSON object along keys.
func field(t *testing.T, v any, keys ...string) any {
	t.Helper()
	for _, k := range keys {
		m, ok := v.(map[string]any)
		require.True(t, ok, "expected an object at %q, got %T", k, v)
		v = m[k]
	}
	return v
}
