//go:build openmeteo

package openmeteo

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/couchcryptid/icra-risk-service/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests hit the real Open-Meteo API.
// Run with: go test -tags=openmeteo ./internal/adapter/openmeteo/ -v -count=1

func smokeClient() *Client {
	return NewClient("open-meteo",
		"https://api.open-meteo.com/v1/forecast",
		"https://archive-api.open-meteo.com/v1/archive",
		20*time.Second,
		observability.NewMetricsForTesting(),
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
}

func TestSmoke_FetchArchive(t *testing.T) {
	c := smokeClient()
	date := time.Now().UTC().AddDate(0, 0, -30)

	sample, err := c.FetchDaily(context.Background(), recifeLat, recifeLon, date)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, sample.PrecipitationMM, 0.0)
	assert.InDelta(t, 26, sample.TempMeanC, 10, "Recife mean temperature")
}

func TestSmoke_FetchForecast(t *testing.T) {
	c := smokeClient()

	sample, err := c.FetchDaily(context.Background(), recifeLat, recifeLon, time.Now().UTC())
	require.NoError(t, err)

	assert.GreaterOrEqual(t, sample.PrecipitationMM, 0.0)
	assert.InDelta(t, 26, sample.TempMeanC, 10, "Recife mean temperature")
}
