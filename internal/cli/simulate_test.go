package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/recline/internal/store"
)

func TestSimulate_CoordinatedWithFailure(t *testing.T) {
	dir := t.TempDir()
	topo := writeFile(t, dir, "deploy.yaml", fmt.Sprintf(chainTopology, "coordinated"))
	db := filepath.Join(dir, "sim.db")

	out, err := execute(t, "simulate", topo, "--db", db, "--rounds", "1", "--fail", "B", "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Data SimulateResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "coordinated", resp.Data.Protocol)
	assert.Equal(t, 6, resp.Data.Stats.Checkpoints)
	assert.Equal(t, 4, resp.Data.Stats.Delivered, "two data hops and two barriers")
	assert.Equal(t, 3, resp.Data.Stats.Restores)
	require.NotNil(t, resp.Data.Episode)
	assert.Equal(t, map[string]string{"A": "A-1", "B": "B-1", "C": "C-1"}, resp.Data.Episode.Line.RecoveryMap)

	s, err := store.Open(db)
	require.NoError(t, err)
	defer s.Close()
	counts, err := s.CountCheckpoints(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"A": 2, "B": 2, "C": 2}, counts)
}

func TestSimulate_CICText(t *testing.T) {
	dir := t.TempDir()
	topo := writeFile(t, dir, "deploy.yaml", fmt.Sprintf(chainTopology, "cic"))

	out, err := execute(t, "simulate", topo, "--db", filepath.Join(dir, "sim.db"), "--rounds", "2", "--metrics")
	require.NoError(t, err)
	assert.Contains(t, out, "Simulated 2 round(s) of cic checkpointing")
	assert.Contains(t, out, "(0 forced)", "a chain has no Z-cycles")
	assert.Contains(t, out, "recline_")
}

func TestSimulate_RejectsUsedDatabase(t *testing.T) {
	db := seedStore(t, record("A", 0, "A0", nil))
	topo := writeFile(t, t.TempDir(), "deploy.yaml", fmt.Sprintf(chainTopology, "cic"))

	_, err := execute(t, "simulate", topo, "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "already holds checkpoints")
}

func TestSimulate_CoordinatedLoopRejected(t *testing.T) {
	dir := t.TempDir()
	topo := writeFile(t, dir, "loop.yaml", `vertex:
  A:
    upstream: [B]
  B:
    upstream: [A]
`)

	out, err := execute(t, "simulate", topo, "--db", filepath.Join(dir, "sim.db"))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, ErrCodeSimulation)
}

func TestSimulate_InvalidArgs(t *testing.T) {
	dir := t.TempDir()
	topo := writeFile(t, dir, "deploy.yaml", fmt.Sprintf(chainTopology, "cic"))

	_, err := execute(t, "simulate", topo, "--db", filepath.Join(dir, "sim.db"), "--ttl", "0")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
