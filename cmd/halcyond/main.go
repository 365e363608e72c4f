// halcyond is the Halcyon server daemon and its management CLI.
package main

import (
	"fmt"
	"os"

	"github.com/halcyonline/halcyon/cmd/halcyond/commands"
)

// Build-time variables injected via ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.Version = version
	commands.Commit = commit
	commands.Date = date

	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
