// Command meshroomctl is meshroom's dev-tooling CLI: schema linting and
// dumping, and local identity bootstrap. It is not the application host
// CLI (spec.md §6 leaves that to the embedding program).
package main

import (
	"fmt"
	"os"

	"github.com/roach88/meshroom/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
