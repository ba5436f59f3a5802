package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrPointNotFound is returned when a point ID is not in the registry.
var ErrPointNotFound = errors.New("point not found")

// ErrNullFeature is returned when a decoded feature vector holds a null value.
var ErrNullFeature = errors.New("feature value is null")

// ConfigurationError reports an invalid or missing artifact or setting. It is
// raised at load time and is fatal to startup.
type ConfigurationError struct {
	Source string
	Err    error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error in %s: %v", e.Source, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// ClimateProviderError reports a failed climate fetch. Transient errors (429,
// 5xx, network) are eligible for retry.
type ClimateProviderError struct {
	Provider  string
	Status    int
	Transient bool
	Err       error
}

func (e *ClimateProviderError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("climate provider %s: status %d: %v", e.Provider, e.Status, e.Err)
	}
	return fmt.Sprintf("climate provider %s: %v", e.Provider, e.Err)
}

func (e *ClimateProviderError) Unwrap() error { return e.Err }

// FeatureBuildError reports schema keys that were not produced by the builder.
type FeatureBuildError struct {
	Missing []string
}

func (e *FeatureBuildError) Error() string {
	return "feature build: missing features: " + strings.Join(e.Missing, ", ")
}

// ValidationError reports a mismatch between a feature vector and the
// backend's expected feature set.
type ValidationError struct {
	Missing    []string
	Unexpected []string
}

func (e *ValidationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Unexpected) > 0 {
		parts = append(parts, "unexpected: "+strings.Join(e.Unexpected, ", "))
	}
	return "feature validation: " + strings.Join(parts, "; ")
}

// InferenceError reports a failed call to a scoring backend. Status is 0 when
// no HTTP response was received.
type InferenceError struct {
	Backend string
	Status  int
	Body    string
	Err     error
}

func (e *InferenceError) Error() string {
	msg := fmt.Sprintf("inference %s", e.Backend)
	if e.Status != 0 {
		msg += fmt.Sprintf(": status %d", e.Status)
	}
	if e.Body != "" {
		msg += ": " + e.Body
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *InferenceError) Unwrap() error { return e.Err }

// OrchestrationError wraps a failure surfaced by an on-demand evaluation.
type OrchestrationError struct {
	PointID string
	Stage   Stage
	Err     error
}

func (e *OrchestrationError) Error() string {
	return fmt.Sprintf("evaluate point %s at %s: %v", e.PointID, e.Stage, e.Err)
}

func (e *OrchestrationError) Unwrap() error { return e.Err }

// Stage names a step of a point evaluation.
type Stage string

const (
	StageLoadPoint     Stage = "load_point"
	StageFetchToday    Stage = "fetch_today"
	StageFetchHistory  Stage = "fetch_history"
	StageBuildFeatures Stage = "build_features"
	StageInfer         Stage = "infer"
	StageClassify      Stage = "classify"
	StageDone          Stage = "done"
	StageDegraded      Stage = "degraded"
)
