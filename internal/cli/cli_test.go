package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// setupConfig writes a config file using the SQLite engine in a temp data
// directory and returns its path.
func setupConfig(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "synmem.json")
	content := fmt.Sprintf(`{
  "data_dir": %q,
  "storage": {"engine": "sqlite"},
  "embedding": {"provider": "hash", "dimension": 64, "api_key": "sk-supersecretvalue"},
  "metrics": {"enabled": false},
  "audit": {"enabled": false}
}`, dir)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// run executes the command line with args and returns its stdout.
func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()

	cmd := NewRootCmd()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)

	err := cmd.Execute()
	return out.String(), err
}

func decode(t *testing.T, data string, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal([]byte(data), v), "output: %s", data)
}
