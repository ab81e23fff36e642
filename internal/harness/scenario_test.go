package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadScenario_Valid(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/line_graph.yaml")
	require.NoError(t, err)

	assert.Equal(t, "line_graph", s.Name)
	assert.Len(t, s.Topology.Vertices, 3)
	assert.Equal(t, []string{"B"}, s.Topology.Vertices["C"].Upstream)
	require.Len(t, s.Checkpoints, 7)
	assert.Equal(t, map[string]string{"A": "A1"}, s.Checkpoints[6].Dependencies)
	require.Len(t, s.Recover, 4)
	assert.True(t, s.Recover[3].Coordinated)
	assert.Equal(t, "-", s.Recover[1].Expect["A"])
}

func TestLoadScenario_FileNotFound(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_FromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: disk
description: "single instance"
topology:
  vertex:
    A: {}
checkpoints:
  - {id: A0, owner: A}
recover:
  - failed: [A]
    expect: {A: A0}
`), 0o644))

	s, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, "disk", s.Name)
}

func TestParseScenario_Invalid(t *testing.T) {
	base := `
name: x
description: "d"
topology:
  vertex:
    A: {}
`
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "unknown field",
			yaml: base + "recovr: []\n",
			want: "failed to parse YAML",
		},
		{
			name: "missing name",
			yaml: "description: d\ntopology: {vertex: {A: {}}}\nrecover: [{failed: [A], expect: {A: A0}}]\n",
			want: "name is required",
		},
		{
			name: "missing description",
			yaml: "name: x\ntopology: {vertex: {A: {}}}\nrecover: [{failed: [A], expect: {A: A0}}]\n",
			want: "description is required",
		},
		{
			name: "no vertices",
			yaml: "name: x\ndescription: d\nrecover: [{failed: [A], expect: {A: A0}}]\n",
			want: "at least one vertex",
		},
		{
			name: "no recover cases",
			yaml: base,
			want: "recover list is required",
		},
		{
			name: "checkpoint without owner",
			yaml: base + "checkpoints: [{id: A0}]\nrecover: [{failed: [A], expect: {A: A0}}]\n",
			want: "checkpoints[0]: owner is required",
		},
		{
			name: "duplicate checkpoint id",
			yaml: base + "checkpoints: [{id: A0, owner: A}, {id: A0, owner: A}]\nrecover: [{failed: [A], expect: {A: A0}}]\n",
			want: `checkpoints[1]: duplicate id "A0"`,
		},
		{
			name: "no expectation",
			yaml: base + "recover: [{failed: [A]}]\n",
			want: "one of expect or error is required",
		},
		{
			name: "expect and error",
			yaml: base + "recover: [{failed: [A], expect: {A: A0}, error: NO_VALID_CHECKPOINT}]\n",
			want: "mutually exclusive",
		},
		{
			name: "unknown error code",
			yaml: base + "recover: [{failed: [A], error: BOOM}]\n",
			want: `unknown error code "BOOM"`,
		},
		{
			name: "affected with error",
			yaml: base + "recover: [{failed: [A], error: NO_VALID_CHECKPOINT, affected: [A]}]\n",
			want: "affected cannot be combined with error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
