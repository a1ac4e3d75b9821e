package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/passage/internal/auth/app"
	"github.com/aussiebroadwan/passage/pkg/errutil"
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Apply migrations, then serve the HTTP API and the housekeeping loop
until interrupted.`,
		RunE: runServe,
	}

	cmd.Flags().String("http-addr", ":8080", "listen address")
	cmd.Flags().Duration("sweep-interval", 0, "housekeeping interval")
	cmd.Flags().StringSlice("trusted-proxies", nil, "CIDRs whose X-Forwarded-For is believed")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := app.NewLogger(cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, app.WithLogger(logger))
	if err != nil {
		errutil.LogError(logger, "failed to initialize application", err)
		return oops.Code("STARTUP_FAILED").Wrap(err)
	}

	if err := application.Run(ctx); err != nil {
		errutil.LogError(logger, "application error", err)
		return err
	}
	return nil
}
