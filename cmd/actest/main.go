// Command actest runs integration tests and fixture suites against actors
// on an in-process message bus.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/actest/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
