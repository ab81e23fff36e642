package recovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/recline/internal/ir"
)

func TestHistory_AppendEnforcesOrder(t *testing.T) {
	h := NewHistory()
	require.NoError(t, h.Append(ir.CheckpointRecord{ID: "A0", Owner: "A", Index: 0}))

	err := h.Append(ir.CheckpointRecord{ID: "A2", Owner: "A", Index: 2})
	assert.True(t, IsContractError(err, ErrCodeIndexGap))

	err = h.Append(ir.CheckpointRecord{ID: "A0", Owner: "B", Index: 0})
	assert.True(t, IsContractError(err, ErrCodeDuplicateID))

	err = h.Append(ir.CheckpointRecord{Owner: "B", Index: 0})
	assert.True(t, IsContractError(err, ErrCodeDuplicateID))

	assert.Equal(t, 1, h.Total())
}

func TestBuildHistory_AnyOrder(t *testing.T) {
	h, err := BuildHistory([]ir.CheckpointRecord{
		{ID: "B1", Owner: "B", Index: 1},
		{ID: "A0", Owner: "A", Index: 0},
		{ID: "B0", Owner: "B", Index: 0},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "B"}, h.Owners())
	assert.Equal(t, 2, h.Len("B"))
	latest, ok := h.Latest("B")
	require.True(t, ok)
	assert.Equal(t, "B1", latest.ID)

	_, ok = h.Latest("Z")
	assert.False(t, ok)
}

func TestHistory_RecordsAreCopies(t *testing.T) {
	h := NewHistory()
	deps := map[string]string{"X": "X0"}
	require.NoError(t, h.Append(ir.CheckpointRecord{ID: "A0", Owner: "A", Dependencies: deps}))

	deps["X"] = "mutated"
	got := h.Records("A")
	assert.Equal(t, "X0", got[0].Dependencies["X"])

	got[0].Dependencies["X"] = "again"
	rec, ok := h.Lookup("A0")
	require.True(t, ok)
	assert.Equal(t, "X0", rec.Dependencies["X"])
}

func TestHistory_Snapshot(t *testing.T) {
	h := NewHistory()
	require.NoError(t, h.Append(ir.CheckpointRecord{ID: "A0", Owner: "A"}))
	snap := h.Snapshot()
	require.NoError(t, h.Append(ir.CheckpointRecord{ID: "A1", Owner: "A", Index: 1}))

	assert.Equal(t, 1, snap.Len("A"))
	assert.Equal(t, 2, h.Len("A"))
	_, ok := snap.Lookup("A1")
	assert.False(t, ok)
}

func TestHistory_CheckDoesNotAppend(t *testing.T) {
	h := NewHistory()
	rec := ir.CheckpointRecord{ID: "A0", Owner: "A", Index: 0}

	require.NoError(t, h.Check(rec))
	assert.Equal(t, 0, h.Total())
	assert.True(t, IsContractError(h.Check(ir.CheckpointRecord{ID: "A1", Owner: "A", Index: 1}), ErrCodeIndexGap))

	require.NoError(t, h.Append(rec))
	assert.True(t, IsContractError(h.Check(rec), ErrCodeDuplicateID))
}
