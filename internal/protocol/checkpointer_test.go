package protocol

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/recline/internal/ir"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return epoch }

type failingStorage struct{}

func (failingStorage) TakeCheckpoint(context.Context, string, bool) (string, error) {
	return "", errors.New("disk full")
}

// recordingNotifier keeps every published record.
type recordingNotifier struct {
	records []ir.CheckpointRecord
}

func (n *recordingNotifier) Notify(rec ir.CheckpointRecord) bool {
	n.records = append(n.records, rec)
	return true
}

func TestCheckpointer_TakeBuildsRecords(t *testing.T) {
	notes := &recordingNotifier{}
	cp := NewCheckpointer("B", ir.ProtocolCIC, []string{"A"}, NewSequentialStorage(),
		WithNow(fixedNow), WithNotifier(notes))

	first, err := cp.Take(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "B-0", first.ID)
	assert.Equal(t, 0, first.Index)
	assert.Nil(t, first.Dependencies, "no delivery yet, no dependency")
	assert.Equal(t, epoch, first.CreatedAt)

	require.NoError(t, cp.Observe("A", "A-0"))
	second, err := cp.Take(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 1, second.Index)
	assert.True(t, second.Forced)
	assert.Equal(t, map[string]string{"A": "A-0"}, second.Dependencies)

	assert.Equal(t, "B-1", cp.Current())
	assert.Equal(t, 2, cp.Taken())
	require.Len(t, notes.records, 2)
	assert.Equal(t, second, notes.records[1])
}

func TestCheckpointer_DependencySnapshotIsolated(t *testing.T) {
	cp := NewCheckpointer("B", ir.ProtocolCIC, []string{"A"}, NewSequentialStorage())

	require.NoError(t, cp.Observe("A", "A-0"))
	rec, err := cp.Take(context.Background(), false)
	require.NoError(t, err)

	require.NoError(t, cp.Observe("A", "A-1"))
	assert.Equal(t, "A-0", rec.Dependencies["A"], "later deliveries must not alter a taken record")
}

func TestCheckpointer_ObserveRejectsNonUpstream(t *testing.T) {
	cp := NewCheckpointer("B", ir.ProtocolCIC, []string{"A"}, NewSequentialStorage())

	err := cp.Observe("C", "C-0")
	require.Error(t, err)
	assert.True(t, IsConfigError(err, ErrCodeUnknownConnection))
}

func TestCheckpointer_ObserveIgnoresEmptyID(t *testing.T) {
	cp := NewCheckpointer("B", ir.ProtocolCIC, []string{"A"}, NewSequentialStorage())

	require.NoError(t, cp.Observe("A", ""))
	rec, err := cp.Take(context.Background(), false)
	require.NoError(t, err)
	assert.Empty(t, rec.Dependencies)
}

func TestCheckpointer_StorageErrorPropagates(t *testing.T) {
	cp := NewCheckpointer("B", ir.ProtocolInterval, nil, failingStorage{})

	_, err := cp.Take(context.Background(), false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, 0, cp.Taken(), "failed checkpoint must not consume an index")
}

func TestUUIDv7Generator_Unique(t *testing.T) {
	gen := UUIDv7Generator{}
	a, b := gen.Generate(), gen.Generate()
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 36)
}

func TestFixedGenerator_PanicsWhenExhausted(t *testing.T) {
	gen := NewFixedGenerator("x")
	assert.Equal(t, "x", gen.Generate())
	assert.Panics(t, func() { gen.Generate() })
}

func TestGeneratedStorage_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := GeneratedStorage{}.TakeCheckpoint(ctx, "A", false)
	assert.ErrorIs(t, err, context.Canceled)
}
