// Package climate provides cached, retrying access to daily climate data
// across a primary provider and optional mirrors.
package climate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/icra-risk-service/internal/domain"
	"github.com/couchcryptid/icra-risk-service/internal/observability"
	"golang.org/x/sync/singleflight"
)

// Provider is a named upstream climate source.
type Provider interface {
	domain.ClimateProvider
	Name() string
}

// RetryPolicy bounds per-provider retries of transient failures. The wait
// before retry n is Backoff * 2^(n-1), capped at MaxBackoff.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
	MaxBackoff  time.Duration
}

// DefaultRetryPolicy is three attempts starting at 500ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Backoff: 500 * time.Millisecond, MaxBackoff: 5 * time.Second}
}

// Gateway fetches daily samples through a cache, trying each provider in
// order with retries before giving up.
type Gateway struct {
	providers []Provider
	policy    RetryPolicy
	cache     *sampleCache
	inflight  singleflight.Group
	sleep     func(context.Context, time.Duration) bool
	metrics   *observability.Metrics
	logger    *slog.Logger
}

// NewGateway creates a gateway over providers, primary first. cacheSize <= 0
// keeps every successful sample for the life of the process.
func NewGateway(providers []Provider, policy RetryPolicy, cacheSize int, metrics *observability.Metrics, logger *slog.Logger) *Gateway {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	return &Gateway{
		providers: providers,
		policy:    policy,
		cache:     newSampleCache(cacheSize),
		sleep:     sleepWithContext,
		metrics:   metrics,
		logger:    logger,
	}
}

// FetchDailyStrict returns the sample for (lat, lon, date) or a
// *domain.ClimateProviderError once every provider has failed. It returns
// ctx.Err() as soon as ctx is done, even while a fetch shared with other
// callers is still running.
func (g *Gateway) FetchDailyStrict(ctx context.Context, lat, lon float64, date time.Time) (domain.ClimateSample, error) {
	day := domain.DayOf(date)
	key := cacheKey(lat, lon, day)

	if s, ok := g.cache.get(key); ok {
		g.metrics.ClimateCache.WithLabelValues("hit").Inc()
		return s, nil
	}
	g.metrics.ClimateCache.WithLabelValues("miss").Inc()

	if err := ctx.Err(); err != nil {
		return domain.ClimateSample{}, err
	}

	// The shared fetch outlives any one caller, so it runs detached from the
	// caller's cancellation. Provider timeouts and the retry policy bound it.
	ch := g.inflight.DoChan(key, func() (any, error) {
		if s, ok := g.cache.get(key); ok {
			return s, nil
		}
		s, err := g.fetchUpstream(context.WithoutCancel(ctx), lat, lon, day)
		if err != nil {
			return nil, err
		}
		g.cache.put(key, s)
		return s, nil
	})

	select {
	case <-ctx.Done():
		return domain.ClimateSample{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return domain.ClimateSample{}, res.Err
		}
		return res.Val.(domain.ClimateSample), nil
	}
}

// FetchDaily is the degrade-safe variant: when every provider fails it
// returns a zero-filled sample for the day instead of an error.
func (g *Gateway) FetchDaily(ctx context.Context, lat, lon float64, date time.Time) domain.ClimateSample {
	s, err := g.FetchDailyStrict(ctx, lat, lon, date)
	if err != nil {
		if ctx.Err() == nil {
			g.metrics.ClimateDefaults.Inc()
			g.logger.Warn("climate data unavailable, using zero-filled sample",
				"lat", lat, "lon", lon, "date", domain.DayOf(date).Format(domain.DateLayout), "error", err)
		}
		return domain.ZeroSample(date)
	}
	return s
}

// FetchHistory returns the days preceding end (exclusive), oldest first.
// Unavailable days are zero-filled. It stops early with the context error
// when ctx is done.
func (g *Gateway) FetchHistory(ctx context.Context, lat, lon float64, end time.Time, days int) (domain.ClimateHistory, error) {
	end = domain.DayOf(end)
	history := make(domain.ClimateHistory, 0, days)
	for i := days; i >= 1; i-- {
		if err := ctx.Err(); err != nil {
			return history, err
		}
		history = append(history, g.FetchDaily(ctx, lat, lon, end.AddDate(0, 0, -i)))
	}
	return history, nil
}

func (g *Gateway) fetchUpstream(ctx context.Context, lat, lon float64, day time.Time) (domain.ClimateSample, error) {
	if len(g.providers) == 0 {
		return domain.ClimateSample{}, &domain.ClimateProviderError{Provider: "none", Err: errors.New("no climate providers configured")}
	}

	var lastErr error
	for i, p := range g.providers {
		s, err := g.fetchWithRetry(ctx, p, lat, lon, day)
		if err == nil {
			return s, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		if i < len(g.providers)-1 {
			g.logger.Warn("climate provider failed, trying next",
				"provider", p.Name(), "next", g.providers[i+1].Name(), "error", err)
		}
	}

	var cpe *domain.ClimateProviderError
	if errors.As(lastErr, &cpe) {
		return domain.ClimateSample{}, lastErr
	}
	return domain.ClimateSample{}, &domain.ClimateProviderError{Provider: g.providers[len(g.providers)-1].Name(), Err: lastErr}
}

func (g *Gateway) fetchWithRetry(ctx context.Context, p Provider, lat, lon float64, day time.Time) (domain.ClimateSample, error) {
	backoff := g.policy.Backoff
	for attempt := 1; ; attempt++ {
		s, err := p.FetchDaily(ctx, lat, lon, day)
		if err == nil {
			return s, nil
		}
		if !isTransient(err) || attempt >= g.policy.MaxAttempts {
			return domain.ClimateSample{}, fmt.Errorf("after %d attempt(s): %w", attempt, err)
		}

		g.metrics.ClimateRetries.WithLabelValues(p.Name()).Inc()
		g.logger.Debug("retrying climate fetch",
			"provider", p.Name(), "attempt", attempt, "backoff", backoff, "error", err)
		if !g.sleep(ctx, backoff) {
			return domain.ClimateSample{}, fmt.Errorf("after %d attempt(s): %w", attempt, err)
		}
		backoff = nextBackoff(backoff, g.policy.MaxBackoff)
	}
}

// isTransient treats provider errors by their classification and anything
// unclassified as retryable.
func isTransient(err error) bool {
	var cpe *domain.ClimateProviderError
	if errors.As(err, &cpe) {
		return cpe.Transient
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if maxBackoff > 0 && next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
