// Package commands implements the toolpilot CLI with cobra.
package commands

import (
	"github.com/spf13/cobra"
)

// NewRootCmd builds the root command with every subcommand registered.
func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "toolpilot",
		Short: "Route requests to connected tools and answer in one reply",
		Long: `toolpilot picks the right tools from the connected services for a request,
runs them in parallel and turns the results into a single answer.

Examples:
  toolpilot ask "what's on my calendar tomorrow?"
  toolpilot chat
  toolpilot tools
  toolpilot log --failed`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		newAskCmd(),
		newChatCmd(),
		newToolsCmd(),
		newLogCmd(),
		newHealthCmd(),
	)

	rootCmd.PersistentFlags().StringP("config", "c", "", "path to config.yaml (default <config-dir>/config.yaml)")
	rootCmd.PersistentFlags().String("config-dir", "", "config directory (default .toolpilot or ~/.config/toolpilot)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logs")

	return rootCmd
}
