package main

import (
	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/passage/internal/auth/app"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the passage CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "passage",
		Short: "passage - account credentials and sessions",
		Long: `passage registers accounts, verifies email addresses, signs users in
with bearer tokens and runs the password reset flow.

Configuration comes from PASSAGE_* environment variables, then an optional
YAML file (--config), then flags.`,
		SilenceUsage: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "config file path")
	flags.String("store.driver", "sqlite", "store driver (sqlite, postgres, redis)")
	flags.String("store.sqlite-path", "passage.db", "sqlite database file")
	flags.String("store.postgres-url", "", "postgres connection URL")
	flags.String("store.redis-addr", "", "redis address or redis:// URL")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "json", "log format (json, text)")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewSweepCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// loadConfig resolves the layered configuration for cmd.
func loadConfig(cmd *cobra.Command) (app.Config, error) {
	return app.Load(configFile, cmd.Flags())
}
