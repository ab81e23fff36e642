package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/recline/internal/coordinator"
	"github.com/roach88/recline/internal/ir"
	"github.com/roach88/recline/internal/recovery"
	"github.com/roach88/recline/internal/store"
	"github.com/roach88/recline/internal/topology"
)

// RecoverOptions holds flags for the recover command.
type RecoverOptions struct {
	*RootOptions
	Database    string
	Topology    string
	Failed      string // comma-separated instance names
	Coordinated bool
}

// RecoverResult is one computed failure episode.
type RecoverResult struct {
	Episode      ir.Episode              `json:"episode"`
	Instructions []ir.RestoreInstruction `json:"instructions"`
}

// instructionLog is a Dispatcher that only records what it was asked to restore.
type instructionLog struct {
	mu  sync.Mutex
	got []ir.RestoreInstruction
}

func (l *instructionLog) Restore(_ context.Context, in ir.RestoreInstruction) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.got = append(l.got, in)
	return nil
}

func (l *instructionLog) instructions() []ir.RestoreInstruction {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]ir.RestoreInstruction{}, l.got...)
}

// NewRecoverCommand creates the recover command.
func NewRecoverCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RecoverOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "recover",
		Short: "Compute the recovery line for a failure",
		Long: `Replay the checkpoint metadata in a database, compute the recovery line
for the given failed instances and record it as a recovery episode.

The mode follows the topology's protocol: coordinated deployments restore
the latest consistent round, every other protocol rolls back only what the
failure reaches. --coordinated forces coordinated mode.

Exit codes:
  0 - Recovery line computed
  1 - Metadata violates the calculator contract
  2 - Command error (missing files, etc.)

Examples:
  recline recover --db ./recline.db --topology ./deploy.yaml --failed B
  recline recover --db ./recline.db --topology ./deploy --failed "B#0,B#1" --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecover(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.Topology, "topology", "", "path to topology (required)")
	cmd.Flags().StringVar(&opts.Failed, "failed", "", "comma-separated failed instances")
	cmd.Flags().BoolVar(&opts.Coordinated, "coordinated", false, "force coordinated mode")
	_ = cmd.MarkFlagRequired("db")
	_ = cmd.MarkFlagRequired("topology")

	return cmd
}

func runRecover(ctx context.Context, opts *RecoverOptions, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd.OutOrStdout())
	if err := requireFile(f, "topology", opts.Topology); err != nil {
		return err
	}
	if err := requireFile(f, "database", opts.Database); err != nil {
		return err
	}

	d, err := topology.Load(opts.Topology)
	if err != nil {
		return f.Fail(ExitFailure, ErrCodeInvalidTopology, "topology is invalid", err, nil)
	}
	kind := d.Protocol
	if opts.Coordinated {
		kind = ir.ProtocolCoordinated
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeStore, "failed to open database", err, nil)
	}
	defer st.Close()

	log := &instructionLog{}
	coord := coordinator.New(st, d.Graph, kind, coordinator.WithDispatcher(log))
	if err := coord.Replay(ctx); err != nil {
		return f.Fail(ExitCommandError, ErrCodeStore, "failed to replay metadata", err, nil)
	}

	var ep ir.Episode
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return coord.Run(gctx)
	})
	g.Go(func() error {
		defer coord.Stop()
		var err error
		ep, err = coord.HandleFailure(gctx, parseNames(opts.Failed))
		return err
	})
	if err := g.Wait(); err != nil {
		var ce *recovery.ContractError
		if errors.As(err, &ce) {
			return f.Fail(ExitFailure, string(ce.Code), "no recovery line", err, nil)
		}
		return f.Fail(ExitCommandError, ErrCodeStore, "recovery failed", err, nil)
	}

	result := RecoverResult{Episode: ep, Instructions: log.instructions()}
	return f.Success(result, func(w io.Writer) {
		printEpisode(w, d.Graph, result)
	})
}

func printEpisode(w io.Writer, graph *topology.Graph, r RecoverResult) {
	ep := r.Episode
	fmt.Fprintf(w, "Episode %d (%s)\n", ep.Seq, modeName(ep.Line.Coordinated))
	for _, inst := range graph.Instances() {
		if id, ok := ep.Line.Target(inst); ok {
			fmt.Fprintf(w, "  %-12s restore %s\n", inst, id)
		} else {
			fmt.Fprintf(w, "  %-12s keep state\n", inst)
		}
	}
	fmt.Fprintf(w, "%d of %d instance(s) roll back\n", len(ep.Line.AffectedInstances), len(graph.Instances()))
}
