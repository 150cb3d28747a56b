// Command retrievalstat aggregates archive retrieval status transitions into
// per-workflow-run counters.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/retrievalstat/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
