// toolpilot routes a user's request to the right connected tools, runs them and
// answers with one reply. The console is the only interface; connectors come from config.
package main

import (
	"fmt"
	"os"

	"github.com/hattiebot/toolpilot/cmd/toolpilot/commands"
)

// version is set at build time via ldflags.
var version = "dev"

func main() {
	if err := commands.NewRootCmd(version).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
