package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/masakoww/jambistore-app-sub000/cmd/fulfillment/app"
	"github.com/masakoww/jambistore-app-sub000/internal/logging"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, notification worker and queue consumers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, cleanup, err := app.InitWithConfig(ctx, cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			logging.Base().Info("fulfillment starting", "env", envName, "addr", cfg.App.HTTPAddr)
			return a.Run(ctx)
		},
	}
}
