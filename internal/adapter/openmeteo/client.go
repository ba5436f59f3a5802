package openmeteo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/couchcryptid/icra-risk-service/internal/domain"
	"github.com/couchcryptid/icra-risk-service/internal/observability"
	"github.com/jonboulle/clockwork"
)

const dailyFields = "precipitation_sum,temperature_2m_mean,apparent_temperature_mean"

// Client implements domain.ClimateProvider using the Open-Meteo forecast and
// archive APIs.
type Client struct {
	name        string
	forecastURL string
	archiveURL  string
	httpClient  *http.Client
	clock       clockwork.Clock
	metrics     *observability.Metrics
	logger      *slog.Logger
}

// NewClient creates an Open-Meteo client. name identifies the provider in
// errors and logs, which matters when mirrors are configured.
func NewClient(name, forecastURL, archiveURL string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		name:        name,
		forecastURL: forecastURL,
		archiveURL:  archiveURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		clock:   clockwork.NewRealClock(),
		metrics: metrics,
		logger:  logger,
	}
}

// Name identifies the provider.
func (c *Client) Name() string { return c.name }

// FetchDaily reads one day of climate data. Days before today (UTC) come from
// the archive endpoint; today and later from the forecast endpoint.
func (c *Client) FetchDaily(ctx context.Context, lat, lon float64, date time.Time) (domain.ClimateSample, error) {
	day := domain.DayOf(date)
	endpoint, base := "forecast", c.forecastURL
	if day.Before(domain.DayOf(c.clock.Now())) {
		endpoint, base = "archive", c.archiveURL
	}

	d := day.Format(domain.DateLayout)
	params := url.Values{
		"latitude":   {strconv.FormatFloat(lat, 'f', -1, 64)},
		"longitude":  {strconv.FormatFloat(lon, 'f', -1, 64)},
		"daily":      {dailyFields},
		"timezone":   {"UTC"},
		"start_date": {d},
		"end_date":   {d},
	}

	start := time.Now()
	sample, err := c.doRequest(ctx, base+"?"+params.Encode(), day)
	c.metrics.ClimateAPIDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.ClimateRequests.WithLabelValues(endpoint, "error").Inc()
		return domain.ClimateSample{}, err
	}
	c.metrics.ClimateRequests.WithLabelValues(endpoint, "success").Inc()
	return sample, nil
}

func (c *Client) doRequest(ctx context.Context, fullURL string, day time.Time) (domain.ClimateSample, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return domain.ClimateSample{}, c.fail(0, false, fmt.Errorf("create request: %w", err))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Cancellation by the caller is final; anything else on the wire is worth retrying.
		return domain.ClimateSample{}, c.fail(0, ctx.Err() == nil, fmt.Errorf("climate request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
		transient := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError
		return domain.ClimateSample{}, c.fail(resp.StatusCode, transient, fmt.Errorf("open-meteo API error: %s", body))
	}

	var r response
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return domain.ClimateSample{}, c.fail(resp.StatusCode, false, fmt.Errorf("decode response: %w", err))
	}

	sample, err := r.firstDay(day)
	if err != nil {
		return domain.ClimateSample{}, c.fail(resp.StatusCode, false, err)
	}
	return sample, nil
}

func (c *Client) fail(status int, transient bool, err error) error {
	return &domain.ClimateProviderError{Provider: c.name, Status: status, Transient: transient, Err: err}
}

// Open-Meteo API response types.

type response struct {
	Daily *daily `json:"daily"`
}

type daily struct {
	Time                    []string   `json:"time"`
	PrecipitationSum        []*float64 `json:"precipitation_sum"`
	Temperature2mMean       []*float64 `json:"temperature_2m_mean"`
	ApparentTemperatureMean []*float64 `json:"apparent_temperature_mean"`
}

var errMalformedDaily = errors.New("malformed daily block")

// firstDay reduces the parallel daily arrays to their first entry.
func (r response) firstDay(day time.Time) (domain.ClimateSample, error) {
	if r.Daily == nil {
		return domain.ClimateSample{}, fmt.Errorf("%w: missing", errMalformedDaily)
	}
	d := r.Daily
	n := len(d.PrecipitationSum)
	if n == 0 || len(d.Temperature2mMean) != n || len(d.ApparentTemperatureMean) != n {
		return domain.ClimateSample{}, fmt.Errorf("%w: array lengths %d/%d/%d",
			errMalformedDaily, n, len(d.Temperature2mMean), len(d.ApparentTemperatureMean))
	}
	return domain.ClimateSample{
		Date:              day,
		PrecipitationMM:   valueOrZero(d.PrecipitationSum[0]),
		TempMeanC:         valueOrZero(d.Temperature2mMean[0]),
		ApparentTempMeanC: valueOrZero(d.ApparentTemperatureMean[0]),
	}, nil
}

func valueOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
