// Command weft validates schemas, prints and applies migrations, and
// seeds datasets into any of the supported stores.
package main

import (
	"os"

	"github.com/weftdb/weft/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		os.Exit(cli.GetExitCode(err))
	}
}
