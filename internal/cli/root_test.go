package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/recline/internal/ir"
	"github.com/roach88/recline/internal/store"
)

const chainTopology = `vertex:
  A: {}
  B:
    upstream: [A]
  C:
    upstream: [B]
checkpoint:
  protocol: %s
`

// execute runs the root command with args and returns its stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// seedStore writes records into a new database and returns its path.
func seedStore(t *testing.T, recs ...ir.CheckpointRecord) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "recline.db")
	s, err := store.Open(path)
	require.NoError(t, err)
	require.NoError(t, s.WriteCheckpoints(context.Background(), recs))
	require.NoError(t, s.Close())
	return path
}

func record(owner string, index int, id string, deps map[string]string) ir.CheckpointRecord {
	return ir.CheckpointRecord{
		ID:           id,
		Owner:        owner,
		Index:        index,
		Dependencies: deps,
		CreatedAt:    time.Date(2026, 3, 1, 12, 0, index, 0, time.UTC),
	}
}

func TestRootCommand_Subcommands(t *testing.T) {
	cmd := NewRootCommand()
	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"validate", "history", "recover", "simulate", "test"}, names)
}

func TestRootCommand_InvalidFormat(t *testing.T) {
	path := writeFile(t, t.TempDir(), "deploy.yaml", "vertex:\n  A: {}\n")

	_, err := execute(t, "validate", path, "--format", "xml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), `invalid format "xml"`)
}

func TestParseNames(t *testing.T) {
	assert.Equal(t, []string{"A", "B#1"}, parseNames(" A, ,B#1 "))
	assert.Nil(t, parseNames(""))
	assert.Equal(t, []string{"café"}, parseNames("café"), "names are NFC-normalized")
}
