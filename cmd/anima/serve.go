package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/thesecretlab-dev/anima-dashboard/internal/config"
	"github.com/thesecretlab-dev/anima-dashboard/internal/gateway"
	"github.com/thesecretlab-dev/anima-dashboard/internal/observability"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			logger := observability.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
			server := gateway.NewServer(cfg, logger, gateway.ServerOptions{Version: version})

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger.Info("starting gateway", "version", version, "addr", cfg.Gateway.Addr(), "sandbox", cfg.Sandbox.Enabled)
			return server.Start(ctx)
		},
	}
}
