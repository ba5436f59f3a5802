package domain

import (
	"context"
	"time"
)

// ClimateSample is one day of climate measurements at a location.
type ClimateSample struct {
	Date              time.Time `json:"date"`
	PrecipitationMM   float64   `json:"precipitation_mm"`
	TempMeanC         float64   `json:"temp_mean_c"`
	ApparentTempMeanC float64   `json:"apparent_temp_mean_c"`
}

// ZeroSample is the substitute used when a day cannot be fetched.
func ZeroSample(date time.Time) ClimateSample {
	return ClimateSample{Date: DayOf(date)}
}

// ClimateHistory is a run of daily samples ordered oldest to newest.
type ClimateHistory []ClimateSample

// Precipitation returns the daily precipitation series.
func (h ClimateHistory) Precipitation() []float64 {
	out := make([]float64, len(h))
	for i, s := range h {
		out[i] = s.PrecipitationMM
	}
	return out
}

// Temperature returns the daily mean temperature series.
func (h ClimateHistory) Temperature() []float64 {
	out := make([]float64, len(h))
	for i, s := range h {
		out[i] = s.TempMeanC
	}
	return out
}

// ClimateProvider fetches a single day of climate data for a location.
type ClimateProvider interface {
	FetchDaily(ctx context.Context, lat, lon float64, date time.Time) (ClimateSample, error)
}
