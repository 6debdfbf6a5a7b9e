package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/gazette-watch/internal/dashboard"
	"github.com/JakeFAU/gazette-watch/internal/metrics"
)

func (c *cli) newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serves the run history dashboard",
		Args:  cobra.NoArgs,
		RunE:  c.serve,
	}
}

func (c *cli) serve(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b, err := c.buildBackends(ctx)
	if err != nil {
		return err
	}
	if err := b.ensureSchema(ctx); err != nil {
		return err
	}
	clock, err := c.clock()
	if err != nil {
		return err
	}

	metrics.Init()
	registry := prometheus.NewRegistry()
	registry.MustRegister(metrics.NewLedgerCollector(b.ledger, clock, dashboard.DefaultRunLimit, c.logger.Named("metrics")))

	server := dashboard.NewServer(b.ledger, clock, registry, dashboard.Config{
		APIKey:         c.cfg.Dashboard.APIKey,
		RequestTimeout: time.Duration(c.cfg.Dashboard.RequestTimeoutSeconds) * time.Second,
	}, c.logger)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", c.cfg.Server.Port),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		c.logger.Info("http server started", zap.Int("port", c.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}
	c.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(c.cfg.Server.ShutdownTimeoutSeconds)*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		c.logger.Error("server shutdown error", zap.Error(err))
	}
	c.logger.Info("shutdown complete")
	return nil
}
