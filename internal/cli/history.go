package cli

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/recline/internal/ir"
	"github.com/roach88/recline/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Database string
	Owner    string // optional - one instance only
}

// HistoryResult is the stored metadata.
type HistoryResult struct {
	Checkpoints []ir.CheckpointRecord `json:"checkpoints"`
	Episodes    []ir.Episode          `json:"episodes"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show stored checkpoint metadata and recovery episodes",
		Long: `List the checkpoint records and recovery episodes held in a metadata
database, oldest first.

Examples:
  recline history --db ./recline.db
  recline history --db ./recline.db --owner B
  recline history --db ./recline.db --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Owner, "owner", "", "show one instance only")

	return cmd
}

func runHistory(ctx context.Context, opts *HistoryOptions, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd.OutOrStdout())
	if err := requireFile(f, "database", opts.Database); err != nil {
		return err
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeStore, "failed to open database", err, nil)
	}
	defer st.Close()

	var result HistoryResult
	if opts.Owner != "" {
		result.Checkpoints, err = st.ReadOwnerHistory(ctx, opts.Owner)
	} else {
		result.Checkpoints, err = st.ReadCheckpoints(ctx)
	}
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeStore, "failed to read checkpoints", err, nil)
	}
	result.Episodes, err = st.ReadEpisodes(ctx)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeStore, "failed to read episodes", err, nil)
	}

	return f.Success(result, func(w io.Writer) {
		printHistory(w, result)
	})
}

func printHistory(w io.Writer, r HistoryResult) {
	if len(r.Checkpoints) == 0 {
		fmt.Fprintln(w, "No checkpoints recorded.")
	}
	owner := ""
	for _, rec := range r.Checkpoints {
		if rec.Owner != owner {
			owner = rec.Owner
			fmt.Fprintf(w, "%s\n", owner)
		}
		line := fmt.Sprintf("  #%-3d %s", rec.Index, rec.ID)
		if deps := formatDependencies(rec.Dependencies); deps != "" {
			line += "  after " + deps
		}
		if rec.Forced {
			line += "  (forced)"
		}
		fmt.Fprintln(w, line)
	}

	if len(r.Episodes) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Recovery episodes:")
	}
	for _, ep := range r.Episodes {
		fmt.Fprintf(w, "  %d  %s  failed=[%s]  restored %d instance(s)\n",
			ep.Seq, modeName(ep.Line.Coordinated), strings.Join(ep.Failed, ","), len(ep.Line.AffectedInstances))
	}
}

func formatDependencies(deps map[string]string) string {
	keys := make([]string, 0, len(deps))
	for k := range deps {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + deps[k]
	}
	return strings.Join(parts, ",")
}

func modeName(coordinated bool) string {
	if coordinated {
		return "coordinated"
	}
	return "independent"
}
