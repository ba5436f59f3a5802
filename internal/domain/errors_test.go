package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			"climate with status",
			&ClimateProviderError{Provider: "open-meteo", Status: 429, Transient: true, Err: errors.New("rate limited")},
			"climate provider open-meteo: status 429: rate limited",
		},
		{
			"climate without status",
			&ClimateProviderError{Provider: "open-meteo", Err: errors.New("dial tcp: refused")},
			"climate provider open-meteo: dial tcp: refused",
		},
		{
			"validation",
			&ValidationError{Missing: []string{"mes_sin"}, Unexpected: []string{"foo", "bar"}},
			"feature validation: missing: mes_sin; unexpected: foo, bar",
		},
		{
			"inference",
			&InferenceError{Backend: "remote", Status: 500, Body: "boom"},
			"inference remote: status 500: boom",
		},
		{
			"orchestration",
			&OrchestrationError{PointID: "p3", Stage: StageInfer, Err: errors.New("timeout")},
			"evaluate point p3 at infer: timeout",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestOrchestrationError_UnwrapsToOrigin(t *testing.T) {
	origin := &InferenceError{Backend: "remote", Status: 503}
	err := fmt.Errorf("handler: %w", &OrchestrationError{PointID: "p1", Stage: StageInfer, Err: origin})

	var inf *InferenceError
	assert.True(t, errors.As(err, &inf))
	assert.Equal(t, 503, inf.Status)

	notFound := &OrchestrationError{PointID: "p99", Stage: StageLoadPoint, Err: ErrPointNotFound}
	assert.ErrorIs(t, notFound, ErrPointNotFound)
}
