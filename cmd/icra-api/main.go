package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/icra-risk-service/internal/adapter/httpadapter"
	"github.com/couchcryptid/icra-risk-service/internal/app"
	"github.com/couchcryptid/icra-risk-service/internal/config"
	"github.com/couchcryptid/icra-risk-service/internal/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	c, err := app.Build(cfg, metrics, logger)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}

	// A nil predictor must stay an untyped nil so the API can detect it.
	var predictor httpadapter.Predictor
	if c.Predictor != nil {
		predictor = c.Predictor
	}
	api := httpadapter.NewAPI(c.Orchestrator, predictor, c.Bundle, httpadapter.APIOptions{
		BatchTimeout: cfg.BatchTimeout,
		MapMaxPoints: cfg.MapMaxPoints,
	}, logger)

	srv := httpadapter.NewServer(cfg.HTTPAddr, api, c.Orchestrator, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}
