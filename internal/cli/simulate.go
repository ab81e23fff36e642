package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/recline/internal/coordinator"
	"github.com/roach88/recline/internal/ir"
	"github.com/roach88/recline/internal/protocol"
	"github.com/roach88/recline/internal/recovery"
	"github.com/roach88/recline/internal/sim"
	"github.com/roach88/recline/internal/store"
	"github.com/roach88/recline/internal/topology"
)

// SimulateOptions holds flags for the simulate command.
type SimulateOptions struct {
	*RootOptions
	Database string
	Rounds   int
	Fail     string // comma-separated instances to fail after the last round
	TTL      int
	UUID     bool
	Metrics  bool
}

// SimulateResult summarizes a simulation run.
type SimulateResult struct {
	Protocol string             `json:"protocol"`
	Rounds   int                `json:"rounds"`
	Stats    sim.Stats          `json:"stats"`
	Episode  *ir.Episode        `json:"episode,omitempty"`
	Metrics  map[string]float64 `json:"metrics,omitempty"`
}

// NewSimulateCommand creates the simulate command.
func NewSimulateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SimulateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "simulate <topology>",
		Short: "Run the checkpoint protocol over a topology in process",
		Long: `Simulate a deployment: every instance runs the topology's checkpoint
protocol, sources emit data each round and the coordinator records every
checkpoint in the database. With --fail, the listed instances fail after
the last round and the resulting recovery line is computed and applied.

Per round:
  coordinated - sources emit, a barrier round is injected, all envelopes drain
  cic         - sources emit and drain, then every other instance checkpoints
  interval    - sources emit and drain, then one interval elapses

The database must be new or empty.

Examples:
  recline simulate ./deploy.yaml --db ./sim.db --rounds 5
  recline simulate ./deploy --db ./sim.db --rounds 3 --fail B --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(cmd.Context(), opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().IntVar(&opts.Rounds, "rounds", 3, "number of rounds to run")
	cmd.Flags().StringVar(&opts.Fail, "fail", "", "comma-separated instances to fail at the end")
	cmd.Flags().IntVar(&opts.TTL, "ttl", sim.DefaultTTL, "hop limit of data envelopes")
	cmd.Flags().BoolVar(&opts.UUID, "uuid", false, "mint UUIDv7 checkpoint identifiers")
	cmd.Flags().BoolVar(&opts.Metrics, "metrics", false, "include metric totals in the output")

	return cmd
}

func runSimulate(ctx context.Context, opts *SimulateOptions, path string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd.OutOrStdout())
	if opts.Rounds < 0 || opts.TTL < 1 {
		return f.Fail(ExitCommandError, ErrCodeInvalidArgs, "--rounds must be >= 0 and --ttl >= 1", nil, nil)
	}
	if err := requireFile(f, "topology", path); err != nil {
		return err
	}

	d, err := topology.Load(path)
	if err != nil {
		return f.Fail(ExitFailure, ErrCodeInvalidTopology, "topology is invalid", err, nil)
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeStore, "failed to open database", err, nil)
	}
	defer st.Close()

	counts, err := st.CountCheckpoints(ctx)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeStore, "failed to inspect database", err, nil)
	}
	if len(counts) > 0 {
		return f.Fail(ExitCommandError, ErrCodeStore, "database already holds checkpoints; use a new --db", nil, nil)
	}

	var cluster *sim.Cluster
	coord := coordinator.New(st, d.Graph, d.Protocol,
		coordinator.WithDispatcher(coordinator.DispatcherFunc(func(ctx context.Context, in ir.RestoreInstruction) error {
			return cluster.Restore(ctx, in)
		})),
	)

	simOpts := []sim.Option{sim.WithNotifier(coord), sim.WithTTL(opts.TTL)}
	if opts.UUID {
		simOpts = append(simOpts, sim.WithStorage(protocol.GeneratedStorage{Gen: protocol.UUIDv7Generator{}}))
	}
	cluster, err = sim.New(d, simOpts...)
	if err != nil {
		return f.Fail(ExitFailure, ErrCodeSimulation, "cannot simulate this deployment", err, nil)
	}

	failed := parseNames(opts.Fail)
	var ep *ir.Episode

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return coord.Run(gctx)
	})
	g.Go(func() error {
		defer coord.Stop()
		if err := drive(gctx, cluster, d, opts.Rounds); err != nil {
			return err
		}
		if len(failed) == 0 {
			return nil
		}
		e, err := coord.HandleFailure(gctx, failed)
		if err != nil {
			return err
		}
		ep = &e
		return nil
	})

	if err := g.Wait(); err != nil {
		var ce *recovery.ContractError
		if errors.As(err, &ce) {
			return f.Fail(ExitFailure, string(ce.Code), "no recovery line", err, nil)
		}
		return f.Fail(ExitFailure, ErrCodeSimulation, "simulation failed", err, nil)
	}

	result := SimulateResult{
		Protocol: string(d.Protocol),
		Rounds:   opts.Rounds,
		Stats:    cluster.Stats(),
		Episode:  ep,
	}
	if opts.Metrics {
		if result.Metrics, err = metricTotals(); err != nil {
			return f.Fail(ExitCommandError, ErrCodeSimulation, "failed to gather metrics", err, nil)
		}
	}

	return f.Success(result, func(w io.Writer) {
		printSimulation(w, d.Graph, result)
	})
}

// drive runs the protocol-specific rounds.
func drive(ctx context.Context, c *sim.Cluster, d *topology.Deployment, rounds int) error {
	if err := c.Start(ctx); err != nil {
		return err
	}
	instances := d.Graph.Instances()

	for r := 0; r < rounds; r++ {
		if err := c.EmitSources(ctx); err != nil {
			return err
		}
		switch d.Protocol {
		case ir.ProtocolCoordinated:
			if err := c.InjectBarrier(ctx); err != nil {
				return err
			}
			if err := c.Drain(ctx); err != nil {
				return err
			}
		case ir.ProtocolCIC:
			if err := c.Drain(ctx); err != nil {
				return err
			}
			// Staggered local schedule: half of the instances each round.
			for i, name := range instances {
				if (i+r)%2 == 0 {
					if err := c.Checkpoint(ctx, name); err != nil {
						return err
					}
				}
			}
		case ir.ProtocolInterval:
			if err := c.Drain(ctx); err != nil {
				return err
			}
			if err := c.Advance(ctx, d.Interval); err != nil {
				return err
			}
		}
	}
	return nil
}

// metricTotals sums every recline_* series: counter values and histogram sample counts.
func metricTotals() (map[string]float64, error) {
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64)
	for _, mf := range families {
		name := mf.GetName()
		if !strings.HasPrefix(name, "recline_") {
			continue
		}
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				out[name] += m.GetCounter().GetValue()
			case m.GetHistogram() != nil:
				out[name+"_count"] += float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	return out, nil
}

func printSimulation(w io.Writer, graph *topology.Graph, r SimulateResult) {
	fmt.Fprintf(w, "Simulated %d round(s) of %s checkpointing\n", r.Rounds, r.Protocol)
	fmt.Fprintf(w, "  delivered:   %d\n", r.Stats.Delivered)
	fmt.Fprintf(w, "  checkpoints: %d (%d forced)\n", r.Stats.Checkpoints, r.Stats.Forced)
	if r.Episode != nil {
		fmt.Fprintln(w)
		printEpisode(w, graph, RecoverResult{Episode: *r.Episode})
	}
	if len(r.Metrics) > 0 {
		names := make([]string, 0, len(r.Metrics))
		for n := range r.Metrics {
			names = append(names, n)
		}
		sort.Strings(names)
		fmt.Fprintln(w)
		for _, n := range names {
			fmt.Fprintf(w, "  %-48s %g\n", n, r.Metrics[n])
		}
	}
}
