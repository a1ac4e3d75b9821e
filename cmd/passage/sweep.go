package main

import (
	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/passage/internal/auth/app"
)

// NewSweepCmd creates the sweep subcommand.
func NewSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Purge expired records once",
		Long: `Delete unverified accounts whose verification window has passed,
expired password reset tokens and session nonces older than the token TTL,
then exit. Useful from cron when the server's own housekeeping loop is not
wanted.`,
		RunE: runSweep,
	}
}

func runSweep(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	res, err := app.Sweep(cmd.Context(), cfg, app.NewLogger(cfg))
	if err != nil {
		return err
	}

	cmd.Printf("deleted %d unverified users, %d reset tokens, %d session nonces\n",
		res.Users, res.ResetTokens, res.SessionNonces)
	return nil
}
