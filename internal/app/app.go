// Package app assembles the service components from configuration.
package app

import (
	"fmt"
	"log/slog"

	"github.com/couchcryptid/icra-risk-service/internal/adapter/kafka"
	"github.com/couchcryptid/icra-risk-service/internal/adapter/openmeteo"
	"github.com/couchcryptid/icra-risk-service/internal/adapter/scorer"
	"github.com/couchcryptid/icra-risk-service/internal/artifacts"
	"github.com/couchcryptid/icra-risk-service/internal/climate"
	"github.com/couchcryptid/icra-risk-service/internal/config"
	"github.com/couchcryptid/icra-risk-service/internal/inference"
	"github.com/couchcryptid/icra-risk-service/internal/observability"
	"github.com/couchcryptid/icra-risk-service/internal/pipeline"
	"github.com/couchcryptid/icra-risk-service/internal/registry"
)

const primaryProvider = "open-meteo"

// Components are the long-lived pieces shared by the API and the CLI.
type Components struct {
	Registry     *registry.Registry
	Bundle       *artifacts.Bundle
	Scorer       *inference.Client
	Gateway      *climate.Gateway
	Orchestrator *pipeline.Orchestrator
	// Predictor scores caller-supplied vectors with the local model. It is
	// nil when the bundle has no model document.
	Predictor *inference.Client
}

// Build loads the registry and bundle and wires the evaluation pipeline.
func Build(cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) (*Components, error) {
	reg, err := registry.Load(cfg.PointsCSV)
	if err != nil {
		return nil, err
	}
	logger.Info("point registry loaded", "path", cfg.PointsCSV, "points", reg.Len())

	bundle, err := artifacts.Load(cfg.ModelDir, cfg.ModelVersion, cfg.ScorerMode == config.ScorerLocal)
	if err != nil {
		return nil, err
	}
	logger.Info("model bundle loaded", "dir", cfg.ModelDir, "version", bundle.Version,
		"features", len(bundle.Schema), "local_model", bundle.Model != nil)

	c := &Components{Registry: reg, Bundle: bundle}
	if bundle.Model != nil {
		c.Predictor = inference.NewClient(bundle.Model, metrics, logger)
	}

	switch cfg.ScorerMode {
	case config.ScorerRemote:
		remote := scorer.NewClient(cfg.ScorerURL, bundle.Schema, cfg.ScorerTimeout, logger)
		c.Scorer = inference.NewClient(remote, metrics, logger)
		logger.Info("remote scoring enabled", "url", cfg.ScorerURL, "timeout", cfg.ScorerTimeout)
	default:
		c.Scorer = c.Predictor
	}
	if c.Scorer == nil {
		return nil, fmt.Errorf("scorer mode %q has no backend", cfg.ScorerMode)
	}

	c.Gateway = climate.NewGateway(Providers(cfg, metrics, logger), climate.RetryPolicy{
		MaxAttempts: cfg.ClimateMaxAttempts,
		Backoff:     cfg.ClimateBackoff,
		MaxBackoff:  cfg.ClimateMaxBackoff,
	}, cfg.ClimateCacheSize, metrics, logger)

	c.Orchestrator = pipeline.NewOrchestrator(reg, c.Gateway, c.Scorer, bundle, pipeline.Options{
		HistoryDays: cfg.HistoryDays,
		Concurrency: cfg.BatchConcurrency,
		MaxPoints:   cfg.MapMaxPoints,
	}, metrics, logger)

	return c, nil
}

// Providers returns the primary Open-Meteo client followed by one client per
// fallback mirror. A mirror serves both archive and forecast requests.
func Providers(cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) []climate.Provider {
	providers := []climate.Provider{
		openmeteo.NewClient(primaryProvider, cfg.ClimateForecastURL, cfg.ClimateArchiveURL, cfg.ClimateTimeout, metrics, logger),
	}
	for i, u := range cfg.ClimateFallbacks {
		name := fmt.Sprintf("mirror-%d", i+1)
		providers = append(providers, openmeteo.NewClient(name, u, u, cfg.ClimateTimeout, metrics, logger))
	}
	return providers
}

// NewPublisher returns the Kafka assessment writer, or nil when publishing
// is disabled.
func NewPublisher(cfg *config.Config, logger *slog.Logger) *kafka.Writer {
	if !cfg.KafkaEnabled() {
		return nil
	}
	logger.Info("assessment publishing enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	return kafka.NewWriter(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
}
