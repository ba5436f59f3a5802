// Package artifacts loads the versioned model bundle: feature schema, risk
// thresholds, and optionally the serialized local model.
package artifacts

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/couchcryptid/icra-risk-service/internal/domain"
	"github.com/couchcryptid/icra-risk-service/internal/inference"
)

// Bundle is the read-only set of artifacts shared by inference and
// classification. It is built once at startup.
type Bundle struct {
	Version    string
	Dir        string
	Schema     domain.FeatureSchema
	Thresholds domain.Thresholds
	// Model is nil when the bundle was loaded without a local model.
	Model inference.Backend
}

// Info summarizes the bundle for display.
type Info struct {
	Version    string            `json:"versao"`
	Features   []string          `json:"features"`
	Thresholds domain.Thresholds `json:"thresholds"`
	LocalModel string            `json:"modelo_local,omitempty"`
}

// Info returns a display summary.
func (b *Bundle) Info() Info {
	info := Info{Version: b.Version, Features: []string(b.Schema), Thresholds: b.Thresholds}
	switch b.Model.(type) {
	case *inference.EnsembleModel:
		info.LocalModel = inference.KindEnsemble
	case *inference.LinearModel:
		info.LocalModel = inference.KindLinear
	}
	return info
}

// ModelFile, ThresholdsFile and FeaturesFile name the bundle documents.
func ModelFile(version string) string      { return "icra_model_" + version + ".json" }
func ThresholdsFile(version string) string { return "icra_thresholds_" + version + ".json" }
func FeaturesFile(version string) string   { return "icra_features_" + version + ".json" }

// Load reads the bundle for version from dir. The model document is required
// only when requireModel is set. All failures are *domain.ConfigurationError.
func Load(dir, version string, requireModel bool) (*Bundle, error) {
	b := &Bundle{Version: version, Dir: dir}

	schema, err := loadSchema(filepath.Join(dir, FeaturesFile(version)))
	if err != nil {
		return nil, err
	}
	b.Schema = schema

	thresholds, err := loadThresholds(filepath.Join(dir, ThresholdsFile(version)))
	if err != nil {
		return nil, err
	}
	b.Thresholds = thresholds

	modelPath := filepath.Join(dir, ModelFile(version))
	data, err := os.ReadFile(modelPath)
	switch {
	case errors.Is(err, fs.ErrNotExist) && !requireModel:
		return b, nil
	case err != nil:
		return nil, &domain.ConfigurationError{Source: modelPath, Err: err}
	}

	model, err := inference.DecodeModel(data, schema)
	if err != nil {
		return nil, &domain.ConfigurationError{Source: modelPath, Err: err}
	}
	if err := inference.ValidateFeatures(model.ExpectedFeatures(), schema); err != nil {
		return nil, &domain.ConfigurationError{Source: modelPath, Err: fmt.Errorf("model does not match feature schema: %w", err)}
	}
	b.Model = model
	return b, nil
}

func loadSchema(path string) (domain.FeatureSchema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &domain.ConfigurationError{Source: path, Err: err}
	}

	// Either {"features": [...]} or a bare list.
	var names []string
	var doc struct {
		Features []string `json:"features"`
	}
	if err := json.Unmarshal(data, &doc); err == nil {
		names = doc.Features
	} else if err := json.Unmarshal(data, &names); err != nil {
		return nil, &domain.ConfigurationError{Source: path, Err: fmt.Errorf("decode features: %w", err)}
	}

	schema := domain.FeatureSchema(names)
	if err := schema.Validate(); err != nil {
		return nil, &domain.ConfigurationError{Source: path, Err: err}
	}
	return schema, nil
}

func loadThresholds(path string) (domain.Thresholds, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Thresholds{}, &domain.ConfigurationError{Source: path, Err: err}
	}

	var raw struct {
		BaixoMax    *float64          `json:"baixo_max"`
		ModeradoMax *float64          `json:"moderado_max"`
		AltoMax     *float64          `json:"alto_max"`
		Description map[string]string `json:"descricao"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return domain.Thresholds{}, &domain.ConfigurationError{Source: path, Err: fmt.Errorf("decode thresholds: %w", err)}
	}
	if raw.BaixoMax == nil || raw.ModeradoMax == nil || raw.AltoMax == nil {
		return domain.Thresholds{}, &domain.ConfigurationError{Source: path, Err: errors.New("baixo_max, moderado_max and alto_max are required")}
	}

	t := domain.Thresholds{
		BaixoMax:    *raw.BaixoMax,
		ModeradoMax: *raw.ModeradoMax,
		AltoMax:     *raw.AltoMax,
		Description: raw.Description,
	}
	if err := t.Validate(); err != nil {
		var ce *domain.ConfigurationError
		if errors.As(err, &ce) {
			ce.Source = path
		}
		return domain.Thresholds{}, err
	}
	return t, nil
}
