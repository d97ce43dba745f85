package root

import (
	"github.com/spf13/cobra"
)

// rootCmd is the base command for the Enrolly admin CLI. Subcommands
// (bootstrap, seed) are attached here.
var rootCmd = &cobra.Command{
	Use:           "enrolly",
	Short:         "Enrolly admin CLI",
	Long:          "Administrative utilities for Enrolly (schema bootstrap, school/user/role seeding).",
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

// Root returns the mutable root command for wiring from subpackages.
func Root() *cobra.Command {
	return rootCmd
}
