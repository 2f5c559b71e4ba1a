// Package commands provides the CLI commands for the go-commit-miner tool.
package commands

import (
	"github.com/spf13/cobra"
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "gcm",
	Short: "go-commit-miner - Change-sensitive dataflow facts for bug-fix commits",
	Long: `go-commit-miner compares the buggy and repaired versions of JavaScript
files and reports the statements whose data or control dependencies changed.

Commands:
  analyze     Mine facts from one buggy/repaired file pair
  batch       Mine facts from a buggy and a repaired source tree
  cfg         Display the control flow graph of a function
  diff        Show the control flow changes between two versions
  init        Create a configuration file interactively
  doctor      Check configuration and components

Use "gcm [command] --help" for more information about a command.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() error {
	return RootCmd.Execute()
}

func init() {
	RootCmd.PersistentFlags().String("config", "", "Config file path (default: project then global config)")
	RootCmd.PersistentFlags().Bool("verbose", false, "Verbose logging")
	RootCmd.PersistentFlags().Bool("json-logs", false, "Log as JSON")
	RootCmd.PersistentFlags().Bool("path-sensitive", false, "Analyze every path separately")
	RootCmd.PersistentFlags().Int("ceiling", 0, "Edge visits per function before the analysis stops (0: config value)")
}
