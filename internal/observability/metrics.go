package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "icra"

// Metrics holds the Prometheus counters, histograms, and gauges for the risk service.
type Metrics struct {
	// Climate acquisition metrics.
	ClimateRequests    *prometheus.CounterVec   // labels: endpoint={archive,forecast}, outcome={success,error}
	ClimateRetries     *prometheus.CounterVec   // labels: provider
	ClimateCache       *prometheus.CounterVec   // labels: result={hit,miss}
	ClimateAPIDuration *prometheus.HistogramVec // labels: endpoint={archive,forecast}
	ClimateDefaults    prometheus.Counter

	// Inference metrics.
	InferenceRequests *prometheus.CounterVec // labels: backend, outcome={success,error,invalid}
	InferenceDuration prometheus.Histogram

	// Assessment metrics.
	Assessments         *prometheus.CounterVec // labels: mode={batch,on_demand}, status={ok,degraded,error}
	AssessmentLevels    *prometheus.CounterVec // labels: level
	EvaluationsInFlight prometheus.Gauge

	// Batch metrics.
	BatchSize           prometheus.Histogram
	BatchDuration       prometheus.Histogram
	AssessmentsProduced prometheus.Counter
}

func newMetrics() *Metrics {
	return &Metrics{
		ClimateRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "climate_requests_total",
			Help:      "Climate provider requests by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		ClimateRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "climate_retries_total",
			Help:      "Climate fetch retries after transient failures, by provider.",
		}, []string{"provider"}),
		ClimateCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "climate_cache_total",
			Help:      "Climate cache lookups by result.",
		}, []string{"result"}),
		ClimateAPIDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "climate_api_duration_seconds",
			Help:      "Climate provider request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		}, []string{"endpoint"}),
		ClimateDefaults: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "climate_defaults_total",
			Help:      "Days substituted with zero-filled samples after exhausting all providers.",
		}),
		InferenceRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inference_requests_total",
			Help:      "Scoring requests by backend and outcome.",
		}, []string{"backend", "outcome"}),
		InferenceDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "inference_duration_seconds",
			Help:      "Scoring request duration in seconds.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		}),
		Assessments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assessments_total",
			Help:      "Point evaluations by mode and status.",
		}, []string{"mode", "status"}),
		AssessmentLevels: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assessment_levels_total",
			Help:      "Completed assessments by risk level.",
		}, []string{"level"}),
		EvaluationsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "evaluations_in_flight",
			Help:      "Point evaluations currently running.",
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Number of points per batch evaluation.",
			Buckets:   []float64{1, 5, 10, 20, 40, 60, 80, 100, 120},
		}),
		BatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Duration of a complete batch evaluation.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		AssessmentsProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assessments_produced_total",
			Help:      "Total assessments published to the sink topic.",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.ClimateRequests,
		m.ClimateRetries,
		m.ClimateCache,
		m.ClimateAPIDuration,
		m.ClimateDefaults,
		m.InferenceRequests,
		m.InferenceDuration,
		m.Assessments,
		m.AssessmentLevels,
		m.EvaluationsInFlight,
		m.BatchSize,
		m.BatchDuration,
		m.AssessmentsProduced,
	}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}
