package harness

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/recline/internal/topology"
)

func TestScenarios_Golden(t *testing.T) {
	files, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, file := range files {
		scenario, err := LoadScenario(file)
		require.NoError(t, err, file)

		t.Run(scenario.Name, func(t *testing.T) {
			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestRun_Deterministic(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/line_graph.yaml")
	require.NoError(t, err)

	first, err := Run(scenario)
	require.NoError(t, err)
	second, err := Run(scenario)
	require.NoError(t, err)

	a, err := Snapshot(scenario.Name, first)
	require.NoError(t, err)
	b, err := Snapshot(scenario.Name, second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

const chainYAML = `
name: chain
description: "two instances"
topology:
  vertex:
    A: {}
    B: {upstream: [A]}
checkpoints:
  - {id: A0, owner: A}
  - {id: B0, owner: B}
  - {id: B1, owner: B, dependencies: {A: A0}}
recover:
`

func TestRun_ReportsMismatches(t *testing.T) {
	scenario, err := ParseScenario([]byte(chainYAML + `
  - failed: [A]
    expect: {A: A0, B: B1}
    affected: [A]
  - failed: [B]
    error: NO_VALID_CHECKPOINT
`))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Equal(t, []string{
		"recover[0]: instance B: expected B1, got B0",
		"recover[0]: affected: expected [A], got [A B]",
		"recover[1]: expected error NO_VALID_CHECKPOINT, got success",
	}, result.Errors)
}

func TestRun_UnexpectedError(t *testing.T) {
	scenario, err := ParseScenario([]byte(strings.Replace(chainYAML, "{id: B0, owner: B}", "{id: B0, owner: B, dependencies: {A: A0}}", 1) + `
  - failed: [A]
    expect: {A: A0, B: B0}
`))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.Equal(t, []string{"recover[0]: expected success, got error NO_VALID_CHECKPOINT"}, result.Errors)
}

func TestRun_UnknownExpectInstance(t *testing.T) {
	scenario, err := ParseScenario([]byte(chainYAML + `
  - failed: [B]
    expect: {B: B1, Z: "-"}
`))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.Equal(t, []string{"recover[0]: expect names unknown instance Z"}, result.Errors)
}

func TestRun_InvalidTopology(t *testing.T) {
	scenario := &Scenario{
		Name:        "bad",
		Description: "unknown upstream",
		Recover:     []RecoverCase{{Failed: []string{"A"}, Expect: map[string]string{}}},
	}
	scenario.Topology.Vertices = map[string]topology.VertexSpec{"A": {Upstream: []string{"missing"}}}

	_, err := Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid topology")
}

func TestRun_EpisodesPersisted(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/oldest_checkpoint_dependency.yaml")
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}
