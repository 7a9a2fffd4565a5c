// Command miner is the CLI front-end for the filesystem miner and archive
// engine: it exposes subcommands to index configured roots, query
// decorator backlog status, and compress/extract archives, matching the
// teacher's cmd/mutagen command-tree shape (one file per subcommand, a
// package-level configuration struct bound to Cobra flags in init).
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCommand = &cobra.Command{
	Use:   "miner",
	Short: "miner indexes filesystem content and manages archive compression/extraction",
	Run: func(command *cobra.Command, arguments []string) {
		command.Help()
	},
}

func init() {
	cobra.EnableCommandSorting = false

	rootCommand.AddCommand(
		indexCommand,
		statusCommand,
		compressCommand,
		extractCommand,
		demoCommand,
	)
}

func main() {
	if err := rootCommand.Execute(); err != nil {
		os.Exit(1)
	}
}
