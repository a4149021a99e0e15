package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	httpapi "github.com/fyrsmithlabs/ragguard/internal/http"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the HTTP API serving /api/v1/ask, /api/v1/ingest, /api/v1/roles,
/health and /metrics. The process exits on SIGINT or SIGTERM after draining
in-flight requests.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) (err error) {
	a, err := newApp(ctx, appOptions{longRunning: true, needIndex: true, needLLM: true})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout.Duration())
		defer cancel()
		err = errors.Join(err, a.close(shutdownCtx))
	}()

	emb, err := a.embedder()
	if err != nil {
		return err
	}
	idx, err := a.indexClient(ctx, emb.Dimension())
	if err != nil {
		return err
	}
	enforcer, err := a.enforcer(idx, emb)
	if err != nil {
		return err
	}
	pipeline, err := a.pipeline(idx, emb)
	if err != nil {
		return err
	}

	srv, err := httpapi.NewServer(enforcer, pipeline, a.policy, a.logger.Named("http"), &httpapi.Config{
		Host: a.cfg.Server.Host,
		Port: a.cfg.Server.Port,
	})
	if err != nil {
		return fmt.Errorf("creating http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
		a.logger.Info(context.Background(), "shutdown signal received", zap.Error(context.Cause(ctx)))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
