package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fleetworks/fleetgate/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "fleetgate",
	Short: "Fleet access API server",
	Long: `Fleetgate is the access-control API for a shared robot fleet.
It manages users, groups, robot ownership, delegated permissions, and
per-user robot settings over an HTTP REST interface.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		return nil
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().String("db-url", "", "Database connection URL (env: DATABASE_URL)")
	rootCmd.PersistentFlags().String("server-addr", "", "Server bind address (env: SERVER_ADDR)")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging (env: DEBUG)")
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
