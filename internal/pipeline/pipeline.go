package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/icra-risk-service/internal/domain"
	"github.com/couchcryptid/icra-risk-service/internal/observability"
	"github.com/google/uuid"
)

const (
	publishAttempts   = 3
	publishBackoff    = 200 * time.Millisecond
	publishMaxBackoff = 5 * time.Second
)

// AssessmentLoader publishes a finished batch to a downstream sink.
type AssessmentLoader interface {
	LoadBatch(ctx context.Context, runID string, assessments []domain.RiskAssessment) error
}

// BatchReport summarizes one batch run.
type BatchReport struct {
	RunID       string
	Date        time.Time
	StartedAt   time.Time
	Duration    time.Duration
	Assessments []domain.RiskAssessment
	Degraded    int
	Published   bool
}

// Runner executes full-registry batch runs and optionally publishes them.
type Runner struct {
	orch    *Orchestrator
	loader  AssessmentLoader
	logger  *slog.Logger
	metrics *observability.Metrics
	sleep   func(ctx context.Context, d time.Duration) bool
}

// NewRunner creates a Runner. loader may be nil to skip publishing.
func NewRunner(orch *Orchestrator, loader AssessmentLoader, logger *slog.Logger, metrics *observability.Metrics) *Runner {
	return &Runner{
		orch:    orch,
		loader:  loader,
		logger:  logger,
		metrics: metrics,
		sleep:   sleepWithContext,
	}
}

// Run evaluates every registered point for date and publishes the result.
// A cancelled run still returns the partial report along with ctx's error.
func (r *Runner) Run(ctx context.Context, date time.Time) (BatchReport, error) {
	report := BatchReport{
		RunID:     uuid.NewString(),
		Date:      domain.DayOf(date),
		StartedAt: domain.Now(),
	}
	log := r.logger.With("run_id", report.RunID, "date", report.Date.Format(domain.DateLayout))
	log.Info("batch run started")

	start := time.Now()
	report.Assessments = r.orch.EvaluateAll(ctx, report.Date)
	report.Duration = time.Since(start)
	for _, a := range report.Assessments {
		if a.Degraded() {
			report.Degraded++
		}
	}

	if err := ctx.Err(); err != nil {
		log.Warn("batch run interrupted", "assessments", len(report.Assessments), "degraded", report.Degraded)
		return report, err
	}

	if r.loader != nil {
		if err := r.publish(ctx, report); err != nil {
			return report, fmt.Errorf("publish run %s: %w", report.RunID, err)
		}
		report.Published = true
		r.metrics.AssessmentsProduced.Add(float64(len(report.Assessments)))
	}

	log.Info("batch run finished",
		"assessments", len(report.Assessments),
		"degraded", report.Degraded,
		"published", report.Published,
		"duration", report.Duration)
	return report, nil
}

// publish retries the loader with exponential backoff.
func (r *Runner) publish(ctx context.Context, report BatchReport) error {
	backoff := publishBackoff
	var err error
	for attempt := 1; attempt <= publishAttempts; attempt++ {
		err = r.loader.LoadBatch(ctx, report.RunID, report.Assessments)
		if err == nil {
			return nil
		}
		r.logger.Error("publish batch failed", "run_id", report.RunID, "attempt", attempt, "error", err)
		if attempt == publishAttempts || !r.sleep(ctx, backoff) {
			break
		}
		backoff = nextBackoff(backoff, publishMaxBackoff)
	}
	return err
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
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
