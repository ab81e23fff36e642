package topology

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"gopkg.in/yaml.v3"

	"github.com/roach88/recline/internal/ir"
)

// DefaultInterval applies when the interval protocol is selected without an interval.
const DefaultInterval = 30 * time.Second

// Deployment is a validated topology together with its checkpoint settings.
type Deployment struct {
	Graph    *Graph
	Protocol ir.ProtocolKind
	Interval time.Duration // zero unless Protocol is interval
}

// Resolve validates the checkpoint settings of a Spec and builds its graph.
// An empty protocol defaults to coordinated.
func Resolve(spec Spec) (*Deployment, error) {
	g, err := Build(spec)
	if err != nil {
		return nil, err
	}

	proto := spec.Checkpoint.Protocol
	if proto == "" {
		proto = string(ir.ProtocolCoordinated)
	}
	kind, err := ir.ParseProtocolKind(proto)
	if err != nil {
		return nil, err
	}

	d := &Deployment{Graph: g, Protocol: kind}
	if kind == ir.ProtocolInterval {
		d.Interval = DefaultInterval
		if spec.Checkpoint.Interval != "" {
			iv, err := time.ParseDuration(spec.Checkpoint.Interval)
			if err != nil {
				return nil, fmt.Errorf("checkpoint.interval: %w", err)
			}
			if iv <= 0 {
				return nil, fmt.Errorf("checkpoint.interval must be positive, got %s", iv)
			}
			d.Interval = iv
		}
	} else if spec.Checkpoint.Interval != "" {
		return nil, fmt.Errorf("checkpoint.interval is only valid with the interval protocol")
	}

	return d, nil
}

// Load reads a deployment from a path. Directories and .cue files are loaded
// as CUE; .yaml and .yml files as YAML.
func Load(path string) (*Deployment, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("topology not found: %s", path)
	}
	if err != nil {
		return nil, fmt.Errorf("error accessing topology: %w", err)
	}

	var spec *Spec
	switch {
	case info.IsDir():
		spec, err = LoadCUE(path)
	case filepath.Ext(path) == ".cue":
		spec, err = LoadCUE(path)
	case filepath.Ext(path) == ".yaml", filepath.Ext(path) == ".yml":
		spec, err = LoadYAML(path)
	default:
		return nil, fmt.Errorf("unsupported topology file %s: want a directory, .cue, .yaml or .yml", path)
	}
	if err != nil {
		return nil, err
	}
	return Resolve(*spec)
}

// LoadCUE evaluates the CUE package in dir (or the single .cue file) and
// decodes its "vertex" and "checkpoint" fields.
func LoadCUE(path string) (*Spec, error) {
	ctx := cuecontext.New()

	var cfg *load.Config
	args := []string{"."}
	if filepath.Ext(path) == ".cue" {
		cfg = &load.Config{Dir: filepath.Dir(path)}
		args = []string{filepath.Base(path)}
	} else {
		cfg = &load.Config{Dir: path}
	}

	instances := load.Instances(args, cfg)
	if len(instances) == 0 {
		return nil, fmt.Errorf("no CUE instances loaded from %s", path)
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, fmt.Errorf("loading CUE files: %w", inst.Err)
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, fmt.Errorf("building CUE value: %w", err)
	}
	return decodeCUE(value)
}

// ParseCUE evaluates CUE source text. Used by tests and inline topologies.
func ParseCUE(src []byte) (*Spec, error) {
	value := cuecontext.New().CompileBytes(src)
	if err := value.Err(); err != nil {
		return nil, fmt.Errorf("compiling CUE: %w", err)
	}
	return decodeCUE(value)
}

func decodeCUE(value cue.Value) (*Spec, error) {
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("topology is not concrete: %w", err)
	}
	if !value.LookupPath(cue.ParsePath("vertex")).Exists() {
		return nil, fmt.Errorf("topology has no vertex field")
	}

	var spec Spec
	if err := value.Decode(&spec); err != nil {
		return nil, fmt.Errorf("decoding topology: %w", err)
	}
	return &spec, nil
}

// LoadYAML reads a YAML topology file.
func LoadYAML(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read topology file: %w", err)
	}
	return ParseYAML(data)
}

// ParseYAML decodes a YAML topology, rejecting unknown fields.
func ParseYAML(data []byte) (*Spec, error) {
	var spec Spec
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&spec); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &spec, nil
}
