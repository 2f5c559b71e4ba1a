// Package main implements the go-commit-miner CLI (gcm).
// It mines change-sensitive dataflow facts from buggy and repaired
// versions of JavaScript files.
package main

import (
	"os"

	"github.com/l3aro/go-commit-miner/cmd/gcm/commands"
)

var (
	version   = "dev"
	buildTime = ""
)

func main() {
	commands.RootCmd.Flags().BoolP("version", "v", false, "Print version information")
	commands.RootCmd.SetVersionTemplate(`gcm version {{.Version}}
`)
	commands.RootCmd.Version = version
	if buildTime != "" {
		commands.RootCmd.Version = version + " (" + buildTime + ")"
	}

	if err := commands.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
