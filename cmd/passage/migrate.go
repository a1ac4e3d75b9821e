package main

import (
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/passage/internal/auth/app"
)

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run store migrations",
		Long:  `Apply all pending schema migrations for the configured store. Redis has no schema.`,
		RunE:  runMigrate,
	}
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	cmd.Printf("Running %s migrations...\n", cfg.Store.Driver)
	if err := app.Migrate(cmd.Context(), cfg, app.NewLogger(cfg)); err != nil {
		return oops.Code("MIGRATION_FAILED").With("driver", cfg.Store.Driver).Wrap(err)
	}

	cmd.Println("Migrations completed successfully")
	return nil
}
