package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	appLog "calview/internal/log"
	"calview/internal/sources"
	"calview/internal/web"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Fetch calendars on a schedule and serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			// --listen overrides the config file.
			if listen != "" {
				cfg.Listen = listen
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			loader := newLoader(cfg)
			if _, err := loader.Refresh(ctx); err != nil {
				appLog.Warn("initial refresh incomplete; serving what loaded", "err", err)
			}
			if _, err := sources.Schedule(ctx, loader, cfg.RefreshCron); err != nil {
				return err
			}

			err = web.StartServer(ctx, cfg, loader)
			appLog.Info("calview exiting")
			return err
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (overrides config if set)")
	return cmd
}
