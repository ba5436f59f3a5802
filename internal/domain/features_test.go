package domain

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func precipHistory(values ...float64) ClimateHistory {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	h := make(ClimateHistory, len(values))
	for i, v := range values {
		h[i] = ClimateSample{Date: start.AddDate(0, 0, i), PrecipitationMM: v, TempMeanC: 20 + v}
	}
	return h
}

func TestSafeMean(t *testing.T) {
	tests := []struct {
		name   string
		series []float64
		window int
		want   float64
	}{
		{"empty series", nil, 7, 0},
		{"shorter than window averages all", []float64{2, 4}, 7, 3},
		{"exact window", []float64{1, 2, 3}, 3, 2},
		{"longer than window uses tail", []float64{100, 1, 2, 3}, 3, 2},
		{"window of one is last value", []float64{5, 9}, 1, 9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, SafeMean(tt.series, tt.window), 1e-12)
		})
	}
}

func TestBuildFeatures_DefaultSchemaOrder(t *testing.T) {
	target := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	fv, err := BuildFeatures(ClimateSample{Date: target, PrecipitationMM: 12}, precipHistory(1, 2, 3), target, nil)
	require.NoError(t, err)

	if diff := cmp.Diff([]string(DefaultFeatureSchema()), fv.Names()); diff != "" {
		t.Errorf("feature order mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 21, fv.Len())
}

func TestBuildFeatures_EmptyHistory(t *testing.T) {
	target := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	today := ClimateSample{Date: target, PrecipitationMM: 48, TempMeanC: 26.5, ApparentTempMeanC: 29.1}

	fv, err := BuildFeatures(today, nil, target, DefaultFeatureSchema())
	require.NoError(t, err)

	zeroed := []string{
		FeaturePrecipMA7, FeaturePrecipMA30, FeaturePrecipMA90,
		FeaturePrecipAnomaly7, FeaturePrecipAnomaly30,
		FeaturePrecipLag1, FeaturePrecipLag2, FeaturePrecipLag3,
		FeaturePrecipLag7, FeaturePrecipLag14, FeaturePrecipLag30,
		FeatureTempLag1, FeatureTempLag7,
	}
	for _, name := range zeroed {
		v, ok := fv.Value(name)
		require.True(t, ok, name)
		assert.Zero(t, v, name)
	}

	v, _ := fv.Value(FeaturePrecipTotal)
	assert.Equal(t, 48.0, v)
	v, _ = fv.Value(FeaturePrecipIntensity)
	assert.Equal(t, 2.0, v)
	v, _ = fv.Value(FeatureTempMean)
	assert.Equal(t, 26.5, v)
	v, _ = fv.Value(FeatureApparentTempMean)
	assert.Equal(t, 29.1, v)
}

func TestBuildFeatures_RollingAndLagWindows(t *testing.T) {
	target := time.Date(2024, 1, 11, 0, 0, 0, 0, time.UTC)
	history := precipHistory(1, 2, 3, 4, 5, 6, 7, 8, 9, 10)

	fv, err := BuildFeatures(ClimateSample{Date: target, PrecipitationMM: 20}, history, target, nil)
	require.NoError(t, err)

	want := map[string]float64{
		FeaturePrecipMA7:       7,
		FeaturePrecipMA30:      5.5,
		FeaturePrecipMA90:      5.5,
		FeaturePrecipAnomaly7:  13,
		FeaturePrecipAnomaly30: 14.5,
		FeaturePrecipLag1:      10,
		FeaturePrecipLag2:      9.5,
		FeaturePrecipLag3:      9,
		FeaturePrecipLag7:      7,
		FeaturePrecipLag14:     5.5,
		FeaturePrecipLag30:     5.5,
		FeatureTempLag1:        30,
		FeatureTempLag7:        27,
	}
	for name, expected := range want {
		got, ok := fv.Value(name)
		require.True(t, ok, name)
		assert.InDelta(t, expected, got, 1e-9, name)
	}
}

func TestBuildFeatures_Seasonal(t *testing.T) {
	target := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	fv, err := BuildFeatures(ClimateSample{Date: target}, nil, target, nil)
	require.NoError(t, err)

	v, _ := fv.Value(FeatureMonthSin)
	assert.InDelta(t, 0.5, v, 1e-12)
	v, _ = fv.Value(FeatureMonthCos)
	assert.InDelta(t, math.Sqrt(3)/2, v, 1e-12)
	v, _ = fv.Value(FeatureDaySin)
	assert.InDelta(t, math.Sin(2*math.Pi/365), v, 1e-12)
	v, _ = fv.Value(FeatureDayCos)
	assert.InDelta(t, math.Cos(2*math.Pi/365), v, 1e-12)
}

func TestBuildFeatures_CustomSchemaOrder(t *testing.T) {
	target := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	schema := FeatureSchema{FeatureMonthCos, FeaturePrecipTotal}

	fv, err := BuildFeatures(ClimateSample{Date: target, PrecipitationMM: 3}, nil, target, schema)
	require.NoError(t, err)
	assert.Equal(t, []string{FeatureMonthCos, FeaturePrecipTotal}, fv.Names())
}

func TestBuildFeatures_UnknownFeature(t *testing.T) {
	target := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	schema := append(DefaultFeatureSchema(), "umidade_relativa")

	_, err := BuildFeatures(ClimateSample{Date: target}, nil, target, schema)
	require.Error(t, err)

	var fbe *FeatureBuildError
	require.True(t, errors.As(err, &fbe))
	assert.Equal(t, []string{"umidade_relativa"}, fbe.Missing)
	assert.Contains(t, err.Error(), "umidade_relativa")
}

func TestFeatureVector_JSONPreservesOrder(t *testing.T) {
	fv := NewFeatureVector([]string{"b", "a", "c"}, map[string]float64{"a": 1, "b": 2.5, "c": 0})

	data, err := json.Marshal(fv)
	require.NoError(t, err)
	assert.JSONEq(t, `{"b":2.5,"a":1,"c":0}`, string(data))
	assert.Equal(t, `{"b":2.5,"a":1,"c":0}`, string(data))

	var decoded FeatureVector
	require.NoError(t, json.Unmarshal([]byte(`{"z":1,"y":2}`), &decoded))
	assert.Equal(t, []string{"z", "y"}, decoded.Names())
	v, ok := decoded.Value("y")
	assert.True(t, ok)
	assert.Equal(t, 2.0, v)
}

func TestFeatureVector_UnmarshalRejectsNonObject(t *testing.T) {
	var fv FeatureVector
	require.Error(t, json.Unmarshal([]byte(`[1,2]`), &fv))
	require.Error(t, json.Unmarshal([]byte(`{"a":"x"}`), &fv))
}

func TestFeatureVector_UnmarshalRejectsNull(t *testing.T) {
	var fv FeatureVector
	err := json.Unmarshal([]byte(`{"precipitacao_total_mm":null,"mes_sin":0.5}`), &fv)
	require.ErrorIs(t, err, ErrNullFeature)
	assert.Contains(t, err.Error(), "precipitacao_total_mm")

	require.NoError(t, json.Unmarshal([]byte(`{"precipitacao_total_mm":0,"mes_sin":0.5}`), &fv))
	v, ok := fv.Value("precipitacao_total_mm")
	require.True(t, ok)
	assert.Zero(t, v)
}

func TestFeatureSchema_Validate(t *testing.T) {
	require.NoError(t, DefaultFeatureSchema().Validate())
	require.Error(t, FeatureSchema{}.Validate())
	require.Error(t, FeatureSchema{"a", "a"}.Validate())
	require.Error(t, FeatureSchema{"a", ""}.Validate())
}
