package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"time"
)

// Feature names of the canonical schema.
const (
	FeaturePrecipTotal      = "precipitacao_total_mm"
	FeaturePrecipMA7        = "precipitacao_ma_7d"
	FeaturePrecipMA30       = "precipitacao_ma_30d"
	FeaturePrecipMA90       = "precipitacao_ma_90d"
	FeaturePrecipAnomaly7   = "anomalia_precip_7d"
	FeaturePrecipAnomaly30  = "anomalia_precip_30d"
	FeaturePrecipIntensity  = "intensidade_precipitacao"
	FeaturePrecipLag1       = "precipitacao_lag_1d"
	FeaturePrecipLag2       = "precipitacao_lag_2d"
	FeaturePrecipLag3       = "precipitacao_lag_3d"
	FeaturePrecipLag7       = "precipitacao_lag_7d"
	FeaturePrecipLag14      = "precipitacao_lag_14d"
	FeaturePrecipLag30      = "precipitacao_lag_30d"
	FeatureTempMean         = "temperatura_media_2m_C"
	FeatureApparentTempMean = "temperatura_aparente_media_2m_C"
	FeatureTempLag1         = "temperatura_lag_1d"
	FeatureTempLag7         = "temperatura_lag_7d"
	FeatureMonthSin         = "mes_sin"
	FeatureMonthCos         = "mes_cos"
	FeatureDaySin           = "dia_sin"
	FeatureDayCos           = "dia_cos"
)

var defaultFeatureNames = []string{
	FeaturePrecipTotal,
	FeaturePrecipMA7,
	FeaturePrecipMA30,
	FeaturePrecipMA90,
	FeaturePrecipAnomaly7,
	FeaturePrecipAnomaly30,
	FeaturePrecipIntensity,
	FeaturePrecipLag1,
	FeaturePrecipLag2,
	FeaturePrecipLag3,
	FeaturePrecipLag7,
	FeaturePrecipLag14,
	FeaturePrecipLag30,
	FeatureTempMean,
	FeatureApparentTempMean,
	FeatureTempLag1,
	FeatureTempLag7,
	FeatureMonthSin,
	FeatureMonthCos,
	FeatureDaySin,
	FeatureDayCos,
}

// FeatureSchema is the ordered list of feature names a model consumes.
type FeatureSchema []string

// DefaultFeatureSchema returns the canonical 21-feature schema.
func DefaultFeatureSchema() FeatureSchema {
	return slices.Clone(defaultFeatureNames)
}

// Validate rejects empty schemas and duplicate names.
func (s FeatureSchema) Validate() error {
	if len(s) == 0 {
		return errors.New("feature schema is empty")
	}
	seen := make(map[string]struct{}, len(s))
	for _, name := range s {
		if name == "" {
			return errors.New("feature schema contains an empty name")
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("feature schema lists %q twice", name)
		}
		seen[name] = struct{}{}
	}
	return nil
}

// FeatureVector is an ordered name -> value mapping. JSON encoding preserves
// the order in which names were added.
type FeatureVector struct {
	names  []string
	values map[string]float64
}

// NewFeatureVector builds a vector over names, reading each value from values.
// Names absent from values are set to 0.
func NewFeatureVector(names []string, values map[string]float64) FeatureVector {
	v := FeatureVector{
		names:  make([]string, 0, len(names)),
		values: make(map[string]float64, len(names)),
	}
	for _, n := range names {
		v.set(n, values[n])
	}
	return v
}

func (v *FeatureVector) set(name string, value float64) {
	if v.values == nil {
		v.values = make(map[string]float64)
	}
	if _, ok := v.values[name]; !ok {
		v.names = append(v.names, name)
	}
	v.values[name] = value
}

// Names returns the feature names in order.
func (v FeatureVector) Names() []string {
	return slices.Clone(v.names)
}

// Value returns the value of a named feature.
func (v FeatureVector) Value(name string) (float64, bool) {
	f, ok := v.values[name]
	return f, ok
}

// Len returns the number of features.
func (v FeatureVector) Len() int {
	return len(v.names)
}

// Map returns a copy of the values keyed by name.
func (v FeatureVector) Map() map[string]float64 {
	out := make(map[string]float64, len(v.values))
	for k, f := range v.values {
		out[k] = f
	}
	return out
}

// MarshalJSON encodes the vector as an object in feature order.
func (v FeatureVector) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range v.names {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(v.values[name])
		if err != nil {
			return nil, fmt.Errorf("feature %s: %w", name, err)
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes an object of numbers, keeping key order.
func (v *FeatureVector) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return errors.New("features must be a JSON object")
	}
	*v = FeatureVector{values: make(map[string]float64)}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, _ := tok.(string)
		var f *float64
		if err := dec.Decode(&f); err != nil {
			return fmt.Errorf("feature %s: %w", name, err)
		}
		if f == nil {
			return fmt.Errorf("feature %s: %w", name, ErrNullFeature)
		}
		v.set(name, *f)
	}
	_, err = dec.Token()
	return err
}

// SafeMean averages the last window entries of series. An empty series yields
// 0 and a series shorter than window is averaged in full.
func SafeMean(series []float64, window int) float64 {
	if len(series) == 0 {
		return 0
	}
	if window > 0 && len(series) > window {
		series = series[len(series)-window:]
	}
	var sum float64
	for _, x := range series {
		sum += x
	}
	return sum / float64(len(series))
}

// BuildFeatures computes the feature vector for target from the day's sample
// and the preceding history (oldest first). The result holds exactly the
// schema's names in schema order; an empty schema selects the default.
func BuildFeatures(today ClimateSample, history ClimateHistory, target time.Time, schema FeatureSchema) (FeatureVector, error) {
	if len(schema) == 0 {
		schema = defaultFeatureNames
	}

	computed := computeFeatures(today, history, target)

	var missing []string
	for _, name := range schema {
		if _, ok := computed[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return FeatureVector{}, &FeatureBuildError{Missing: missing}
	}
	return NewFeatureVector(schema, computed), nil
}

func computeFeatures(today ClimateSample, history ClimateHistory, target time.Time) map[string]float64 {
	precip := history.Precipitation()
	temp := history.Temperature()

	ma7 := SafeMean(precip, 7)
	ma30 := SafeMean(precip, 30)

	// Without a baseline there is no anomaly.
	var anomaly7, anomaly30 float64
	if len(precip) > 0 {
		anomaly7 = today.PrecipitationMM - ma7
		anomaly30 = today.PrecipitationMM - ma30
	}

	month := float64(target.Month())
	day := float64(target.YearDay())

	return map[string]float64{
		FeaturePrecipTotal:      today.PrecipitationMM,
		FeaturePrecipMA7:        ma7,
		FeaturePrecipMA30:       ma30,
		FeaturePrecipMA90:       SafeMean(precip, 90),
		FeaturePrecipAnomaly7:   anomaly7,
		FeaturePrecipAnomaly30:  anomaly30,
		FeaturePrecipIntensity:  today.PrecipitationMM / 24,
		FeaturePrecipLag1:       SafeMean(precip, 1),
		FeaturePrecipLag2:       SafeMean(precip, 2),
		FeaturePrecipLag3:       SafeMean(precip, 3),
		FeaturePrecipLag7:       SafeMean(precip, 7),
		FeaturePrecipLag14:      SafeMean(precip, 14),
		FeaturePrecipLag30:      SafeMean(precip, 30),
		FeatureTempMean:         today.TempMeanC,
		FeatureApparentTempMean: today.ApparentTempMeanC,
		FeatureTempLag1:         SafeMean(temp, 1),
		FeatureTempLag7:         SafeMean(temp, 7),
		FeatureMonthSin:         math.Sin(2 * math.Pi * month / 12),
		FeatureMonthCos:         math.Cos(2 * math.Pi * month / 12),
		FeatureDaySin:           math.Sin(2 * math.Pi * day / 365),
		FeatureDayCos:           math.Cos(2 * math.Pi * day / 365),
	}
}
