package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/recline/internal/topology"
)

// ValidationResult describes a resolved deployment.
type ValidationResult struct {
	Valid         bool                    `json:"valid"`
	Protocol      string                  `json:"protocol"`
	Interval      string                  `json:"interval,omitempty"`
	Vertices      []string                `json:"vertices"`
	Instances     []string                `json:"instances"`
	Edges         [][2]string             `json:"edges"`
	FeedbackLoops []topology.FeedbackLoop `json:"feedback_loops,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <topology>",
		Short: "Validate a deployment topology",
		Long: `Load a CUE package, .cue file or YAML topology, expand vertices into
instances and report the instance graph and any feedback loops.

Feedback loops are warnings, except under the coordinated protocol, whose
barriers cannot align across a loop.

Exit codes:
  0 - Topology is valid
  1 - Topology is invalid
  2 - Command error (file not found, etc.)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd.OutOrStdout())
	if err := requireFile(f, "topology", path); err != nil {
		return err
	}

	d, err := topology.Load(path)
	if err != nil {
		return f.Fail(ExitFailure, ErrCodeInvalidTopology, "topology is invalid", err, nil)
	}

	result := describe(d)
	if d.Protocol.Coordinated() && len(result.FeedbackLoops) > 0 {
		result.Valid = false
		return f.Fail(ExitFailure, ErrCodeInvalidTopology,
			"coordinated protocol cannot run across feedback loops", nil, result)
	}

	return f.Success(result, func(w io.Writer) {
		printDeployment(w, result)
		fmt.Fprintln(w, "✓ Topology is valid")
	})
}

func describe(d *topology.Deployment) ValidationResult {
	r := ValidationResult{
		Valid:         true,
		Protocol:      string(d.Protocol),
		Vertices:      d.Graph.Vertices(),
		Instances:     d.Graph.Instances(),
		Edges:         d.Graph.Edges(),
		FeedbackLoops: d.Graph.FeedbackLoops(),
	}
	if r.Edges == nil {
		r.Edges = [][2]string{}
	}
	if d.Interval > 0 {
		r.Interval = d.Interval.String()
	}
	return r
}

func printDeployment(w io.Writer, r ValidationResult) {
	proto := r.Protocol
	if r.Interval != "" {
		proto += " every " + r.Interval
	}
	fmt.Fprintf(w, "Protocol:  %s\n", proto)
	fmt.Fprintf(w, "Instances: %s\n", strings.Join(r.Instances, ", "))
	for _, e := range r.Edges {
		fmt.Fprintf(w, "  %s -> %s\n", e[0], e[1])
	}
	for _, loop := range r.FeedbackLoops {
		fmt.Fprintf(w, "⚠ %s\n", loop.Message)
	}
}
