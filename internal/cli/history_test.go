package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistory_Text(t *testing.T) {
	db := seedStore(t,
		record("A", 0, "A0", nil),
		record("B", 0, "B0", nil),
		record("B", 1, "B1", map[string]string{"A": "A0"}),
	)

	out, err := execute(t, "history", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "A\n  #0   A0\n")
	assert.Contains(t, out, "  #1   B1  after A=A0")
	assert.NotContains(t, out, "Recovery episodes")
}

func TestHistory_OwnerJSON(t *testing.T) {
	db := seedStore(t,
		record("A", 0, "A0", nil),
		record("B", 0, "B0", nil),
		record("B", 1, "B1", map[string]string{"A": "A0"}),
	)

	out, err := execute(t, "history", "--db", db, "--owner", "B", "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Data HistoryResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data.Checkpoints, 2)
	assert.Equal(t, "B0", resp.Data.Checkpoints[0].ID)
	assert.Equal(t, map[string]string{"A": "A0"}, resp.Data.Checkpoints[1].Dependencies)
	assert.Empty(t, resp.Data.Episodes)
}

func TestHistory_Empty(t *testing.T) {
	db := seedStore(t)

	out, err := execute(t, "history", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "No checkpoints recorded.")
}

func TestHistory_DatabaseNotFound(t *testing.T) {
	_, err := execute(t, "history", "--db", filepath.Join(t.TempDir(), "missing.db"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
