package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/recline/internal/recovery"
	"github.com/roach88/recline/internal/topology"
)

// Scenario is a recovery-line contract test: a topology, a checkpoint
// history over it and the recovery lines expected for some failures.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Topology is the deployment graph, in the same shape as a topology file.
	Topology topology.Spec `yaml:"topology"`

	// Checkpoints is the metadata history, oldest first.
	Checkpoints []CheckpointStep `yaml:"checkpoints"`

	// Recover lists the failures to compute recovery lines for.
	Recover []RecoverCase `yaml:"recover"`
}

// CheckpointStep declares one checkpoint record. Its index is its position
// among the records of the same owner.
type CheckpointStep struct {
	ID           string            `yaml:"id"`
	Owner        string            `yaml:"owner"`
	Dependencies map[string]string `yaml:"dependencies,omitempty"`
	Forced       bool              `yaml:"forced,omitempty"`
}

// RecoverCase is one recovery-line computation and its expected outcome.
// Exactly one of Expect and Error must be set.
type RecoverCase struct {
	Failed      []string `yaml:"failed"`
	Coordinated bool     `yaml:"coordinated,omitempty"`

	// Expect maps instances to checkpoint IDs; "-" or omission means no rollback.
	Expect map[string]string `yaml:"expect,omitempty"`

	// Affected, when set, must equal the line's affected instances.
	Affected []string `yaml:"affected,omitempty"`

	// Error is an expected contract error code such as NO_VALID_CHECKPOINT.
	Error string `yaml:"error,omitempty"`
}

// knownCodes are the error codes a scenario may expect.
var knownCodes = map[string]bool{
	string(recovery.ErrCodeUnknownInstance):      true,
	string(recovery.ErrCodeMissingHistory):       true,
	string(recovery.ErrCodeIndexGap):             true,
	string(recovery.ErrCodeDuplicateID):          true,
	string(recovery.ErrCodeUndeclaredDependency): true,
	string(recovery.ErrCodeDanglingDependency):   true,
	string(recovery.ErrCodeNoValidCheckpoint):    true,
	string(recovery.ErrCodeNoConsistentRound):    true,
}

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected so typos surface as errors.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Topology.Vertices) == 0 {
		return fmt.Errorf("topology must declare at least one vertex")
	}
	if len(s.Recover) == 0 {
		return fmt.Errorf("recover list is required and must be non-empty")
	}

	ids := make(map[string]bool, len(s.Checkpoints))
	for i, c := range s.Checkpoints {
		if c.ID == "" {
			return fmt.Errorf("checkpoints[%d]: id is required", i)
		}
		if c.Owner == "" {
			return fmt.Errorf("checkpoints[%d]: owner is required", i)
		}
		if ids[c.ID] {
			return fmt.Errorf("checkpoints[%d]: duplicate id %q", i, c.ID)
		}
		ids[c.ID] = true
	}

	for i, rc := range s.Recover {
		switch {
		case rc.Expect == nil && rc.Error == "":
			return fmt.Errorf("recover[%d]: one of expect or error is required", i)
		case rc.Expect != nil && rc.Error != "":
			return fmt.Errorf("recover[%d]: expect and error are mutually exclusive", i)
		case rc.Error != "" && !knownCodes[rc.Error]:
			return fmt.Errorf("recover[%d]: unknown error code %q", i, rc.Error)
		case rc.Error != "" && len(rc.Affected) > 0:
			return fmt.Errorf("recover[%d]: affected cannot be combined with error", i)
		}
	}
	return nil
}
