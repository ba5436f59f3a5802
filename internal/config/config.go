package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Scorer modes.
const (
	ScorerLocal  = "local"
	ScorerRemote = "remote"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string `validate:"required"`
	LogLevel        string `validate:"oneof=debug info warn warning error"`
	LogFormat       string `validate:"oneof=json text"`
	ShutdownTimeout time.Duration

	// Point registry and model artifact bundle.
	PointsCSV    string `validate:"required"`
	ModelDir     string `validate:"required"`
	ModelVersion string `validate:"required"`

	// Scoring backend.
	ScorerMode    string `validate:"oneof=local remote"`
	ScorerURL     string `validate:"omitempty,url"`
	ScorerTimeout time.Duration

	// Climate provider.
	ClimateForecastURL string   `validate:"required,url"`
	ClimateArchiveURL  string   `validate:"required,url"`
	ClimateFallbacks   []string `validate:"dive,url"`
	ClimateTimeout     time.Duration
	ClimateMaxAttempts int `validate:"min=1,max=10"`
	ClimateBackoff     time.Duration
	ClimateMaxBackoff  time.Duration `validate:"gtefield=ClimateBackoff"`
	ClimateCacheSize   int

	// Orchestration.
	HistoryDays      int `validate:"min=0,max=365"`
	BatchConcurrency int `validate:"min=1,max=64"`
	BatchTimeout     time.Duration
	MapMaxPoints     int `validate:"min=1"`

	// Assessment sink. Publishing is disabled when no brokers are set.
	KafkaBrokers []string
	KafkaTopic   string `validate:"required_with=KafkaBrokers"`
}

// KafkaEnabled reports whether batch results should be published.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// Load reads configuration from environment variables, applying defaults where unset.
// A .env file in the working directory is read first when present; real
// environment variables take precedence.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        strings.ToLower(sharedcfg.EnvOrDefault("LOG_LEVEL", "info")),
		LogFormat:       strings.ToLower(sharedcfg.EnvOrDefault("LOG_FORMAT", "json")),
		ShutdownTimeout: shutdownTimeout,

		PointsCSV:    sharedcfg.EnvOrDefault("POINTS_CSV", "data/pontos_criticos.csv"),
		ModelDir:     sharedcfg.EnvOrDefault("MODEL_DIR", "models/icra"),
		ModelVersion: sharedcfg.EnvOrDefault("MODEL_VERSION", "v1"),

		ScorerMode: strings.ToLower(sharedcfg.EnvOrDefault("SCORER_MODE", ScorerLocal)),
		ScorerURL:  os.Getenv("SCORER_URL"),

		ClimateForecastURL: sharedcfg.EnvOrDefault("CLIMATE_FORECAST_URL", "https://api.open-meteo.com/v1/forecast"),
		ClimateArchiveURL:  sharedcfg.EnvOrDefault("CLIMATE_ARCHIVE_URL", "https://archive-api.open-meteo.com/v1/archive"),
		ClimateFallbacks:   parseList(os.Getenv("CLIMATE_FALLBACK_URLS")),

		KafkaTopic: sharedcfg.EnvOrDefault("KAFKA_TOPIC", "icra-assessments"),
	}

	durations := []struct {
		key string
		def string
		dst *time.Duration
	}{
		{"SCORER_TIMEOUT", "30s", &cfg.ScorerTimeout},
		{"CLIMATE_TIMEOUT", "20s", &cfg.ClimateTimeout},
		{"CLIMATE_BACKOFF", "500ms", &cfg.ClimateBackoff},
		{"CLIMATE_MAX_BACKOFF", "5s", &cfg.ClimateMaxBackoff},
		{"BATCH_TIMEOUT", "60s", &cfg.BatchTimeout},
	}
	for _, d := range durations {
		v, err := parseDuration(d.key, d.def)
		if err != nil {
			return nil, err
		}
		*d.dst = v
	}

	ints := []struct {
		key string
		def int
		dst *int
	}{
		{"CLIMATE_MAX_ATTEMPTS", 3, &cfg.ClimateMaxAttempts},
		{"CLIMATE_CACHE_SIZE", 20000, &cfg.ClimateCacheSize},
		{"HISTORY_DAYS", 30, &cfg.HistoryDays},
		{"BATCH_CONCURRENCY", 8, &cfg.BatchConcurrency},
		{"MAP_MAX_POINTS", 120, &cfg.MapMaxPoints},
	}
	for _, i := range ints {
		v, err := parseInt(i.key, i.def)
		if err != nil {
			return nil, err
		}
		*i.dst = v
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); strings.TrimSpace(brokers) != "" {
		cfg.KafkaBrokers = sharedcfg.ParseBrokers(brokers)
	}

	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.ScorerMode == ScorerRemote && cfg.ScorerURL == "" {
		return nil, errors.New("SCORER_URL is required when SCORER_MODE is remote")
	}
	return cfg, nil
}

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}

func parseList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
