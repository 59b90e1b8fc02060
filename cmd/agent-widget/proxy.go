package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"agent-widget/internal/config"
	"agent-widget/internal/logging"
	"agent-widget/internal/proxy"

	"github.com/spf13/cobra"
)

func newProxyCmd(loader *config.Loader) *cobra.Command {
	return &cobra.Command{
		Use:   "proxy",
		Short: "Serve the local webhook proxy",
		Long:  "Forwards requests under the proxy prefix to the public agent host with the prefix stripped.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loader.Load()
			if err != nil {
				return err
			}
			logger, err := logging.NewConsole(cmd.ErrOrStderr(), cfg.LogLevel)
			if err != nil {
				return err
			}

			srv, err := proxy.NewServer(cfg.Rewriter(), logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start(cfg.ProxyListen) }()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			logger.Info().Msg("shutting down proxy")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return err
			}
			return <-errCh
		},
	}
}
