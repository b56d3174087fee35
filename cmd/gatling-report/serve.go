package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"gatling-report/pkg/server"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve stored summaries and diffs over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runServe(cmd.Context())
		},
	}
}

func (a *app) runServe(ctx context.Context) error {
	m, err := a.manager(ctx, nil, true, true)
	if err != nil {
		return err
	}

	srv := server.New(a.cfg.ListenAddr, m, a.logger)
	a.logger.Info().Str("storage_path", a.cfg.StoragePath).Msg("serving stored summaries")

	errs := make(chan error, 1)
	go func() {
		errs <- srv.ListenAndServe()
	}()

	quit, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errs:
		return err
	case <-quit.Done():
	}

	a.logger.Info().Msg("shutting down server")

	// Give in-flight requests 30 seconds to finish
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error().Err(err).Msg("server forced to shutdown")
		return err
	}

	a.logger.Info().Msg("server exited")
	return nil
}
