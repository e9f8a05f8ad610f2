// Command selftest runs the phased firmware API self-test.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/roach88/selftest/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
