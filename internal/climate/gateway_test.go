package climate

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/couchcryptid/icra-risk-service/internal/domain"
	"github.com/couchcryptid/icra-risk-service/internal/observability"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDay = time.Date(2024, 4, 26, 0, 0, 0, 0, time.UTC)

// scriptedProvider returns errs in order, then succeeds with sample.
type scriptedProvider struct {
	name   string
	mu     sync.Mutex
	errs   []error
	calls  int
	delay  time.Duration
	sample func(date time.Time) domain.ClimateSample
}

func (p *scriptedProvider) Name() string { return p.name }

func (p *scriptedProvider) FetchDaily(_ context.Context, _, _ float64, date time.Time) (domain.ClimateSample, error) {
	p.mu.Lock()
	i := p.calls
	p.calls++
	p.mu.Unlock()

	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	if i < len(p.errs) {
		return domain.ClimateSample{}, p.errs[i]
	}
	if p.sample != nil {
		return p.sample(date), nil
	}
	return domain.ClimateSample{Date: date, PrecipitationMM: 7.5, TempMeanC: 27}, nil
}

func (p *scriptedProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func transient(status int) error {
	return &domain.ClimateProviderError{Provider: "fake", Status: status, Transient: true, Err: errors.New("try later")}
}

func permanent(status int) error {
	return &domain.ClimateProviderError{Provider: "fake", Status: status, Err: errors.New("bad request")}
}

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) bool {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return ctx.Err() == nil
}

func newTestGateway(cacheSize int, policy RetryPolicy, providers ...Provider) (*Gateway, *sleepRecorder) {
	g := NewGateway(providers, policy, cacheSize,
		observability.NewMetricsForTesting(),
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	rec := &sleepRecorder{}
	g.sleep = rec.sleep
	return g, rec
}

func TestGateway_RetriesTransientWithBackoff(t *testing.T) {
	p := &scriptedProvider{name: "primary", errs: []error{transient(429), transient(503)}}
	g, rec := newTestGateway(0, RetryPolicy{MaxAttempts: 3, Backoff: 100 * time.Millisecond, MaxBackoff: time.Second}, p)

	s, err := g.FetchDailyStrict(context.Background(), -8.05, -34.9, testDay)
	require.NoError(t, err)
	assert.Equal(t, 7.5, s.PrecipitationMM)
	assert.Equal(t, 3, p.callCount())
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, rec.delays)
	assert.Equal(t, 2.0, testutil.ToFloat64(g.metrics.ClimateRetries.WithLabelValues("primary")))
}

func TestGateway_BackoffIsCapped(t *testing.T) {
	p := &scriptedProvider{name: "primary", errs: []error{transient(429), transient(429), transient(429), transient(429)}}
	g, rec := newTestGateway(0, RetryPolicy{MaxAttempts: 5, Backoff: time.Second, MaxBackoff: 3 * time.Second}, p)

	_, err := g.FetchDailyStrict(context.Background(), 0, 0, testDay)
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 3 * time.Second, 3 * time.Second}, rec.delays)
}

func TestGateway_StrictExhaustsAttempts(t *testing.T) {
	p := &scriptedProvider{name: "primary", errs: []error{transient(429), transient(429), transient(429)}}
	g, _ := newTestGateway(0, RetryPolicy{MaxAttempts: 3, Backoff: time.Millisecond}, p)

	_, err := g.FetchDailyStrict(context.Background(), 0, 0, testDay)
	require.Error(t, err)

	var cpe *domain.ClimateProviderError
	require.True(t, errors.As(err, &cpe))
	assert.Equal(t, 429, cpe.Status)
	assert.Equal(t, 3, p.callCount())
	assert.Contains(t, err.Error(), "after 3 attempt(s)")
}

func TestGateway_NonTransientIsNotRetried(t *testing.T) {
	p := &scriptedProvider{name: "primary", errs: []error{permanent(400)}}
	g, rec := newTestGateway(0, RetryPolicy{MaxAttempts: 3, Backoff: time.Millisecond}, p)

	_, err := g.FetchDailyStrict(context.Background(), 0, 0, testDay)
	require.Error(t, err)
	assert.Equal(t, 1, p.callCount())
	assert.Empty(t, rec.delays)
}

func TestGateway_FallsBackToMirror(t *testing.T) {
	primary := &scriptedProvider{name: "primary", errs: []error{transient(500), transient(500)}}
	mirror := &scriptedProvider{name: "mirror", sample: func(d time.Time) domain.ClimateSample {
		return domain.ClimateSample{Date: d, PrecipitationMM: 42}
	}}
	g, _ := newTestGateway(0, RetryPolicy{MaxAttempts: 2, Backoff: time.Millisecond}, primary, mirror)

	s, err := g.FetchDailyStrict(context.Background(), 0, 0, testDay)
	require.NoError(t, err)
	assert.Equal(t, 42.0, s.PrecipitationMM)
	assert.Equal(t, 2, primary.callCount())
	assert.Equal(t, 1, mirror.callCount())
}

func TestGateway_DegradeReturnsZeroSample(t *testing.T) {
	p := &scriptedProvider{name: "primary", errs: []error{transient(429), transient(429), transient(429)}}
	g, _ := newTestGateway(0, RetryPolicy{MaxAttempts: 3, Backoff: time.Millisecond}, p)

	s := g.FetchDaily(context.Background(), 0, 0, testDay.Add(5*time.Hour))
	assert.Equal(t, domain.ZeroSample(testDay), s)
	assert.Equal(t, 1.0, testutil.ToFloat64(g.metrics.ClimateDefaults))
}

func TestGateway_CachesSuccessOnly(t *testing.T) {
	p := &scriptedProvider{name: "primary", errs: []error{permanent(400)}}
	g, _ := newTestGateway(0, RetryPolicy{MaxAttempts: 1}, p)
	ctx := context.Background()

	_ = g.FetchDaily(ctx, 1, 2, testDay)
	assert.Equal(t, 0, g.cache.len(), "defaults must not be cached")

	s1, err := g.FetchDailyStrict(ctx, 1, 2, testDay)
	require.NoError(t, err)
	s2, err := g.FetchDailyStrict(ctx, 1, 2, testDay)
	require.NoError(t, err)

	assert.Equal(t, s1, s2)
	assert.Equal(t, 2, p.callCount(), "second success served from cache")
	assert.Equal(t, 1.0, testutil.ToFloat64(g.metrics.ClimateCache.WithLabelValues("hit")))
}

func TestGateway_CacheKeyIsExact(t *testing.T) {
	p := &scriptedProvider{name: "primary"}
	g, _ := newTestGateway(0, DefaultRetryPolicy(), p)
	ctx := context.Background()

	_, _ = g.FetchDailyStrict(ctx, 1, 2, testDay)
	_, _ = g.FetchDailyStrict(ctx, 1, 2.000001, testDay)
	_, _ = g.FetchDailyStrict(ctx, 1, 2.0000004, testDay)
	_, _ = g.FetchDailyStrict(ctx, 1, 2, testDay.AddDate(0, 0, 1))
	_, _ = g.FetchDailyStrict(ctx, 1, 2, testDay.Add(13*time.Hour))
	_, _ = g.FetchDailyStrict(ctx, 1, 2.0000004, testDay)

	assert.Equal(t, 4, p.callCount())
}

func TestGateway_ConcurrentMissesShareOneRequest(t *testing.T) {
	p := &scriptedProvider{name: "primary", delay: 50 * time.Millisecond}
	g, _ := newTestGateway(0, DefaultRetryPolicy(), p)

	var wg sync.WaitGroup
	var ok atomic.Int32
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := g.FetchDailyStrict(context.Background(), 3, 4, testDay); err == nil {
				ok.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(10), ok.Load())
	assert.Equal(t, 1, p.callCount())
}

// gatedProvider blocks every fetch until release is closed or the fetch
// context is done.
type gatedProvider struct {
	calls   atomic.Int32
	once    sync.Once
	started chan struct{}
	release chan struct{}
}

func newGatedProvider() *gatedProvider {
	return &gatedProvider{started: make(chan struct{}), release: make(chan struct{})}
}

func (p *gatedProvider) Name() string { return "primary" }

func (p *gatedProvider) FetchDaily(ctx context.Context, _, _ float64, date time.Time) (domain.ClimateSample, error) {
	p.calls.Add(1)
	p.once.Do(func() { close(p.started) })
	select {
	case <-ctx.Done():
		return domain.ClimateSample{}, ctx.Err()
	case <-p.release:
	}
	return domain.ClimateSample{Date: date, PrecipitationMM: 9}, nil
}

func TestGateway_SharedFetchSurvivesCallerCancellation(t *testing.T) {
	p := newGatedProvider()
	g, _ := newTestGateway(0, DefaultRetryPolicy(), p)

	ctxA, cancelA := context.WithCancel(context.Background())
	defer cancelA()
	errA := make(chan error, 1)
	go func() {
		_, err := g.FetchDailyStrict(ctxA, 1, 2, testDay)
		errA <- err
	}()
	<-p.started

	sampleB := make(chan domain.ClimateSample, 1)
	go func() {
		sampleB <- g.FetchDaily(context.Background(), 1, 2, testDay)
	}()
	time.Sleep(20 * time.Millisecond)

	cancelA()
	select {
	case err := <-errA:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller did not return while the shared fetch was pending")
	}

	close(p.release)
	select {
	case s := <-sampleB:
		assert.Equal(t, 9.0, s.PrecipitationMM)
	case <-time.After(time.Second):
		t.Fatal("live caller did not receive the shared sample")
	}
	assert.Equal(t, int32(1), p.calls.Load())
	assert.Equal(t, 0.0, testutil.ToFloat64(g.metrics.ClimateDefaults))
}

func TestGateway_StrictReturnsOnCancelledContext(t *testing.T) {
	p := &scriptedProvider{name: "primary"}
	g, _ := newTestGateway(0, DefaultRetryPolicy(), p)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.FetchDailyStrict(ctx, 1, 2, testDay)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, p.callCount())
}

func TestGateway_FetchHistoryOrder(t *testing.T) {
	p := &scriptedProvider{name: "primary", sample: func(d time.Time) domain.ClimateSample {
		return domain.ClimateSample{Date: d, PrecipitationMM: float64(d.Day())}
	}}
	g, _ := newTestGateway(0, DefaultRetryPolicy(), p)

	h, err := g.FetchHistory(context.Background(), 0, 0, testDay, 3)
	require.NoError(t, err)
	require.Len(t, h, 3)
	assert.Equal(t, []float64{23, 24, 25}, h.Precipitation())
	assert.Equal(t, testDay.AddDate(0, 0, -3), h[0].Date)
}

func TestGateway_FetchHistoryZeroDays(t *testing.T) {
	g, _ := newTestGateway(0, DefaultRetryPolicy(), &scriptedProvider{name: "primary"})

	h, err := g.FetchHistory(context.Background(), 0, 0, testDay, 0)
	require.NoError(t, err)
	assert.Empty(t, h)
}

func TestGateway_FetchHistoryCancelled(t *testing.T) {
	g, _ := newTestGateway(0, DefaultRetryPolicy(), &scriptedProvider{name: "primary"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.FetchHistory(ctx, 0, 0, testDay, 30)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGateway_NoProviders(t *testing.T) {
	g, _ := newTestGateway(0, DefaultRetryPolicy())

	_, err := g.FetchDailyStrict(context.Background(), 0, 0, testDay)
	var cpe *domain.ClimateProviderError
	require.True(t, errors.As(err, &cpe))
}

func TestNextBackoff(t *testing.T) {
	assert.Equal(t, 400*time.Millisecond, nextBackoff(200*time.Millisecond, 5*time.Second))
	assert.Equal(t, 5*time.Second, nextBackoff(4*time.Second, 5*time.Second))
}

func TestSleepWithContext(t *testing.T) {
	assert.True(t, sleepWithContext(context.Background(), 0))
	assert.True(t, sleepWithContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, sleepWithContext(ctx, time.Second))
}
