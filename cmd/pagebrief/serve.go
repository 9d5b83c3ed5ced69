package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	httpAdapter "github.com/cwygoda/pagebrief/internal/adapter/http"
)

const shutdownTimeout = 10 * time.Second

// Run executes the serve command until the context is cancelled.
func (c *ServeCmd) Run(deps *Dependencies) error {
	cfg := deps.Config
	srv := httpAdapter.NewServer(deps.Service, deps.Poller, cfg.Addr(),
		httpAdapter.WithLogger(deps.Logger),
		httpAdapter.WithRateLimit(cfg.RateLimit.PerIPRPS, cfg.RateLimit.Burst),
	)

	g, ctx := errgroup.WithContext(deps.Ctx)

	g.Go(func() error {
		deps.Logger.Info("HTTP server listening", "addr", srv.Addr())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		deps.Logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	deps.Logger.Info("shutdown complete")
	return nil
}
