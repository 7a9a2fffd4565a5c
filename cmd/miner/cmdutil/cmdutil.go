// Package cmdutil provides small helpers shared by every cmd/miner
// subcommand: a standard (error-returning) Cobra entry point wrapper and
// colorized error/warning printers, matching the teacher's cmd.Mainify/
// cmd.Fatal/cmd.Warning helpers.
package cmdutil

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// Mainify wraps a Cobra entry point that returns an error (so it can rely
// on defer-based cleanup) into the standard Cobra Run signature.
func Mainify(entry func(command *cobra.Command, arguments []string) error) func(*cobra.Command, []string) {
	return func(command *cobra.Command, arguments []string) {
		if err := entry(command, arguments); err != nil {
			Fatal(err)
		}
	}
}

// Warning prints a warning message to standard error.
func Warning(message string) {
	fmt.Fprintln(color.Error, color.YellowString("Warning:"), message)
}

// Error prints an error message to standard error.
func Error(err error) {
	fmt.Fprintln(os.Stderr, color.RedString("Error:"), err)
}

// Fatal prints an error message to standard error and terminates the
// process with an error exit code.
func Fatal(err error) {
	Error(err)
	os.Exit(1)
}

// Info prints an informational message to standard output.
func Info(message string) {
	fmt.Println(color.GreenString("==>"), message)
}
