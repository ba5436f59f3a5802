package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/couchcryptid/icra-risk-service/internal/artifacts"
	"github.com/couchcryptid/icra-risk-service/internal/domain"
	"github.com/couchcryptid/icra-risk-service/internal/inference"
	"github.com/couchcryptid/icra-risk-service/internal/observability"
	"golang.org/x/sync/errgroup"
)

// Evaluation modes, used as metric labels.
const (
	modeBatch    = "batch"
	modeOnDemand = "on_demand"
)

// PointSource looks up monitored points.
type PointSource interface {
	All() []domain.Point
	Get(id string) (domain.Point, error)
}

// ClimateGateway supplies the day's sample and the preceding history. Both
// zero-fill days no provider could serve.
type ClimateGateway interface {
	FetchDaily(ctx context.Context, lat, lon float64, date time.Time) domain.ClimateSample
	FetchHistory(ctx context.Context, lat, lon float64, end time.Time, days int) (domain.ClimateHistory, error)
}

// Scorer turns a feature vector into a score.
type Scorer interface {
	Infer(ctx context.Context, req inference.ScoreRequest) (inference.Result, error)
}

type readinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// Options tune evaluation.
type Options struct {
	// HistoryDays is the length of the history window before the target day.
	HistoryDays int
	// Concurrency bounds simultaneous point evaluations in a batch.
	Concurrency int
	// MaxPoints caps EvaluateAll. Zero means no cap.
	MaxPoints int
}

// DefaultOptions is a 30-day window with 8 concurrent evaluations.
func DefaultOptions() Options {
	return Options{HistoryDays: 30, Concurrency: 8, MaxPoints: 120}
}

// Orchestrator runs the per-point evaluation
// load_point -> fetch_today -> fetch_history -> build_features -> infer -> classify.
type Orchestrator struct {
	points     PointSource
	climate    ClimateGateway
	scorer     Scorer
	schema     domain.FeatureSchema
	thresholds domain.Thresholds
	opts       Options
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewOrchestrator wires an orchestrator. The bundle supplies the feature
// schema and thresholds.
func NewOrchestrator(points PointSource, climate ClimateGateway, scorer Scorer, bundle *artifacts.Bundle, opts Options, metrics *observability.Metrics, logger *slog.Logger) *Orchestrator {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Orchestrator{
		points:     points,
		climate:    climate,
		scorer:     scorer,
		schema:     bundle.Schema,
		thresholds: bundle.Thresholds,
		opts:       opts,
		metrics:    metrics,
		logger:     logger,
	}
}

// Points returns the monitored points in registry order.
func (o *Orchestrator) Points() []domain.Point {
	return o.points.All()
}

// CheckReadiness fails when no points are loaded or the scorer reports
// itself unavailable.
func (o *Orchestrator) CheckReadiness(ctx context.Context) error {
	if len(o.points.All()) == 0 {
		return errors.New("no monitored points loaded")
	}
	if rc, ok := o.scorer.(readinessChecker); ok {
		return rc.CheckReadiness(ctx)
	}
	return nil
}

// Evaluate assesses one point on demand. Any failure is returned as
// *domain.OrchestrationError; an unknown id wraps domain.ErrPointNotFound.
func (o *Orchestrator) Evaluate(ctx context.Context, pointID string, date time.Time) (domain.RiskAssessment, error) {
	p, err := o.points.Get(pointID)
	if err != nil {
		o.metrics.Assessments.WithLabelValues(modeOnDemand, "error").Inc()
		return domain.RiskAssessment{}, &domain.OrchestrationError{PointID: pointID, Stage: domain.StageLoadPoint, Err: err}
	}
	return o.EvaluatePoint(ctx, p, date)
}

// EvaluatePoint assesses an already-loaded point on demand.
func (o *Orchestrator) EvaluatePoint(ctx context.Context, p domain.Point, date time.Time) (domain.RiskAssessment, error) {
	a, err := o.evaluate(ctx, p, date)
	if err != nil {
		o.metrics.Assessments.WithLabelValues(modeOnDemand, "error").Inc()
		o.logger.Warn("point evaluation failed", "point_id", p.ID, "error", err)
		return domain.RiskAssessment{}, err
	}
	o.record(modeOnDemand, a)
	return a, nil
}

// EvaluateBatch assesses points concurrently and always returns one
// assessment per input point, in input order. Failed points come back
// degraded. If ctx is cancelled, finished assessments are kept and the
// remaining points are degraded with the cancellation reason.
func (o *Orchestrator) EvaluateBatch(ctx context.Context, points []domain.Point, date time.Time) []domain.RiskAssessment {
	start := time.Now()
	results := make([]domain.RiskAssessment, len(points))
	finished := make([]bool, len(points))

	var g errgroup.Group
	g.SetLimit(o.opts.Concurrency)

	for i, p := range points {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			a, err := o.evaluate(ctx, p, date)
			if err != nil {
				o.logger.Warn("point evaluation degraded", "point_id", p.ID, "error", err)
				a = domain.DegradedAssessment(p.ID, date, err.Error())
			}
			results[i] = a
			finished[i] = true
			return nil
		})
	}
	_ = g.Wait()

	for i, p := range points {
		if !finished[i] {
			results[i] = domain.DegradedAssessment(p.ID, date, "evaluation not started: "+context.Cause(ctx).Error())
		}
		o.record(modeBatch, results[i])
	}

	o.metrics.BatchSize.Observe(float64(len(points)))
	o.metrics.BatchDuration.Observe(time.Since(start).Seconds())
	return results
}

// EvaluateAll assesses the registry, capped at MaxPoints.
func (o *Orchestrator) EvaluateAll(ctx context.Context, date time.Time) []domain.RiskAssessment {
	points := o.points.All()
	if o.opts.MaxPoints > 0 && len(points) > o.opts.MaxPoints {
		points = points[:o.opts.MaxPoints]
	}
	return o.EvaluateBatch(ctx, points, date)
}

func (o *Orchestrator) evaluate(ctx context.Context, p domain.Point, date time.Time) (domain.RiskAssessment, error) {
	o.metrics.EvaluationsInFlight.Inc()
	defer o.metrics.EvaluationsInFlight.Dec()

	day := domain.DayOf(date)
	fail := func(stage domain.Stage, err error) (domain.RiskAssessment, error) {
		return domain.RiskAssessment{}, &domain.OrchestrationError{PointID: p.ID, Stage: stage, Err: err}
	}

	today := o.climate.FetchDaily(ctx, p.Lat, p.Lon, day)
	if err := ctx.Err(); err != nil {
		return fail(domain.StageFetchToday, err)
	}

	history, err := o.climate.FetchHistory(ctx, p.Lat, p.Lon, day, o.opts.HistoryDays)
	if err != nil {
		return fail(domain.StageFetchHistory, err)
	}

	features, err := domain.BuildFeatures(today, history, day, o.schema)
	if err != nil {
		return fail(domain.StageBuildFeatures, err)
	}

	res, err := o.scorer.Infer(ctx, inference.ScoreRequest{Date: day, PointID: p.ID, Features: features})
	if err != nil {
		return fail(domain.StageInfer, err)
	}

	a := domain.NewAssessment(p.ID, day, res.Score, res.Uncertainty, o.thresholds)
	o.logger.Debug("point evaluated",
		"point_id", p.ID, "date", day.Format(domain.DateLayout),
		"icra", a.Score, "level", a.Level, "confidence", a.Confidence)
	return a, nil
}

func (o *Orchestrator) record(mode string, a domain.RiskAssessment) {
	o.metrics.Assessments.WithLabelValues(mode, string(a.Status)).Inc()
	o.metrics.AssessmentLevels.WithLabelValues(string(a.Level)).Inc()
}
