// Command entitysync manages the keys, destinations and sources of a
// configuration workspace.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/roach88/entitysync/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		// Commands that already rendered a JSON error envelope return a
		// bare ExitError; everything else is reported here.
		var exitErr *cli.ExitError
		if !errors.As(err, &exitErr) || exitErr.Err != nil || exitErr.Code == cli.ExitCommandError {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(cli.GetExitCode(err))
	}
}
