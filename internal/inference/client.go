// Package inference scores feature vectors through a pluggable backend and
// derives the uncertainty of the result.
package inference

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"slices"
	"time"

	"github.com/couchcryptid/icra-risk-service/internal/domain"
	"github.com/couchcryptid/icra-risk-service/internal/observability"
)

// ScoreRequest is one vector to score.
type ScoreRequest struct {
	Date     time.Time
	PointID  string
	Features domain.FeatureVector
}

// Prediction is a backend's answer. Std is set only by backends that report
// their own uncertainty.
type Prediction struct {
	Score float64
	Std   *float64
}

// Backend produces a point estimate.
type Backend interface {
	Name() string
	ExpectedFeatures() []string
	Predict(ctx context.Context, req ScoreRequest) (Prediction, error)
}

// EnsembleBackend additionally exposes per-member predictions, from which the
// client derives the ensemble spread.
type EnsembleBackend interface {
	Backend
	MemberPredictions(ctx context.Context, req ScoreRequest) ([]float64, error)
}

// Result is a validated score with its optional uncertainty.
type Result struct {
	Score       float64
	Uncertainty *float64
}

// Client validates vectors against the backend schema and dispatches them.
type Client struct {
	backend Backend
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewClient creates an inference client over backend.
func NewClient(backend Backend, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{backend: backend, metrics: metrics, logger: logger}
}

// Backend returns the wrapped backend.
func (c *Client) Backend() Backend { return c.backend }

// CheckReadiness delegates to the backend when it reports readiness.
func (c *Client) CheckReadiness(ctx context.Context) error {
	if rc, ok := c.backend.(interface{ CheckReadiness(context.Context) error }); ok {
		return rc.CheckReadiness(ctx)
	}
	return nil
}

// Infer scores req. A vector whose names differ from the backend's expected
// set in any way is rejected with *domain.ValidationError before dispatch.
func (c *Client) Infer(ctx context.Context, req ScoreRequest) (Result, error) {
	name := c.backend.Name()
	if err := ValidateFeatures(req.Features.Names(), c.backend.ExpectedFeatures()); err != nil {
		c.metrics.InferenceRequests.WithLabelValues(name, "invalid").Inc()
		return Result{}, err
	}

	start := time.Now()
	res, err := c.dispatch(ctx, req)
	c.metrics.InferenceDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.InferenceRequests.WithLabelValues(name, "error").Inc()
		var ie *domain.InferenceError
		if !errors.As(err, &ie) {
			err = &domain.InferenceError{Backend: name, Err: err}
		}
		return Result{}, err
	}

	c.metrics.InferenceRequests.WithLabelValues(name, "success").Inc()
	return res, nil
}

func (c *Client) dispatch(ctx context.Context, req ScoreRequest) (Result, error) {
	switch b := c.backend.(type) {
	case EnsembleBackend:
		members, err := b.MemberPredictions(ctx, req)
		if err != nil {
			return Result{}, err
		}
		if len(members) == 0 {
			return Result{}, errors.New("ensemble returned no member predictions")
		}
		mean, std := meanStd(members)
		return Result{Score: mean, Uncertainty: &std}, nil
	default:
		p, err := b.Predict(ctx, req)
		if err != nil {
			return Result{}, err
		}
		return Result{Score: p.Score, Uncertainty: p.Std}, nil
	}
}

// ValidateFeatures compares names against expected as sets.
func ValidateFeatures(names, expected []string) error {
	have := make(map[string]struct{}, len(names))
	for _, n := range names {
		have[n] = struct{}{}
	}
	want := make(map[string]struct{}, len(expected))
	for _, n := range expected {
		want[n] = struct{}{}
	}

	var missing, unexpected []string
	for n := range want {
		if _, ok := have[n]; !ok {
			missing = append(missing, n)
		}
	}
	for n := range have {
		if _, ok := want[n]; !ok {
			unexpected = append(unexpected, n)
		}
	}
	if len(missing) == 0 && len(unexpected) == 0 {
		return nil
	}
	slices.Sort(missing)
	slices.Sort(unexpected)
	return &domain.ValidationError{Missing: missing, Unexpected: unexpected}
}

// meanStd returns the mean and population standard deviation.
func meanStd(xs []float64) (float64, float64) {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))

	var sq float64
	for _, x := range xs {
		d := x - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / float64(len(xs)))
}
