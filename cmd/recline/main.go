// Command recline validates deployment topologies, simulates checkpoint
// protocols and computes recovery lines.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/roach88/recline/internal/cli"
)

func main() {
	err := cli.NewRootCommand().Execute()
	// Commands report their own failures; cobra's flag and argument errors
	// are not ExitErrors and are printed here.
	var exitErr *cli.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(cli.GetExitCode(err))
}
