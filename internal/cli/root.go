package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/recline/internal/ir"
	"github.com/roach88/recline/internal/topology"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the recline CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:     "recline",
		Version: ir.Version,
		Short:   "recline - checkpoint recovery lines for stream processing",
		Long: `Validate deployment topologies, inspect checkpoint metadata and compute
recovery lines: the checkpoint every instance of a streaming deployment
restores after a failure.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				f := &OutputFormatter{Format: "text", Writer: cmd.OutOrStdout()}
				return f.Fail(ExitCommandError, ErrCodeInvalidArgs,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats), nil, nil)
			}
			configureLogging(cmd.ErrOrStderr(), opts.Verbose)
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging on stderr")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewRecoverCommand(opts))
	cmd.AddCommand(NewSimulateCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// configureLogging installs the process-wide slog handler.
func configureLogging(w io.Writer, verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// parseNames splits a comma-separated instance list, normalizing each name.
func parseNames(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if n := topology.Normalize(part); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// requireFile maps a missing path to a command error.
func requireFile(f *OutputFormatter, what, path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return f.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("%s not found: %s", what, path), nil, nil)
		}
		return f.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("cannot access %s %s", what, path), err, nil)
	}
	return nil
}
