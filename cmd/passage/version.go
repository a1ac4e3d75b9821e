package main

import (
	"github.com/spf13/cobra"
)

// NewVersionCmd creates the version subcommand.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("passage %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}
