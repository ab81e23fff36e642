package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstanceName(t *testing.T) {
	assert.Equal(t, "join", InstanceName("join", 0, 1))
	assert.Equal(t, "join", InstanceName("join", 0, 0))
	assert.Equal(t, "join#2", InstanceName("join", 2, 3))
}

func TestCheckpointRecord_CloneDoesNotAlias(t *testing.T) {
	rec := CheckpointRecord{
		ID:           "B-1",
		Owner:        "B",
		Index:        1,
		Dependencies: map[string]string{"A": "A-0"},
	}

	clone := rec.Clone()
	clone.Dependencies["A"] = "A-9"

	dep, ok := rec.DependencyOn("A")
	require.True(t, ok)
	assert.Equal(t, "A-0", dep, "mutating the clone must not touch the original")
}

func TestNewRecoveryLine_DerivesAffected(t *testing.T) {
	line := NewRecoveryLine(false, map[string]string{
		"D": "D-0",
		"A": NoRollback,
		"B": "B-1",
		"C": NoRollback,
	})

	assert.Equal(t, []string{"B", "D"}, line.AffectedInstances)
	assert.False(t, line.IsAffected("A"))
	assert.True(t, line.IsAffected("B"))

	id, ok := line.Target("D")
	require.True(t, ok)
	assert.Equal(t, "D-0", id)

	_, ok = line.Target("missing")
	assert.False(t, ok)
}

func TestRecoveryLine_Instructions(t *testing.T) {
	line := NewRecoveryLine(true, map[string]string{"B": "B-0", "A": "A-0"})

	assert.Equal(t, []RestoreInstruction{
		{Instance: "A", CheckpointID: "A-0"},
		{Instance: "B", CheckpointID: "B-0"},
	}, line.Instructions())
}

func TestParseProtocolKind(t *testing.T) {
	tests := []struct {
		in          string
		want        ProtocolKind
		coordinated bool
		wantErr     bool
	}{
		{in: "coordinated", want: ProtocolCoordinated, coordinated: true},
		{in: "cic", want: ProtocolCIC},
		{in: "interval", want: ProtocolInterval},
		{in: "chandy-lamport", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseProtocolKind(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.coordinated, got.Coordinated())
		})
	}
}

func TestEnvelope_Connection(t *testing.T) {
	env := Envelope{From: "src#1", Vertex: "src", Shard: 1, Kind: EnvelopeBarrier}
	assert.Equal(t, Connection{Vertex: "src", Shard: 1}, env.Connection())
	assert.Equal(t, "src/1", env.Connection().String())
	assert.Equal(t, "barrier", env.Kind.String())
}
