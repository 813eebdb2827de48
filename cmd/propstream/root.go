package main

import (
	"github.com/spf13/cobra"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the PropStream CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "propstream",
		Short: "PropStream - real-time notification fan-out for property platforms",
		Long: `PropStream delivers real-time alerts, market updates and property
changes to connected clients over WebSocket, bridged across instances
through a message bus with a durable offline fallback.`,
	}

	// Global flag for config file path
	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")

	// Add subcommands
	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(newStatusCmd())

	return cmd
}
