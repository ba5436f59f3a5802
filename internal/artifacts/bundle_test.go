package artifacts

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/couchcryptid/icra-risk-service/internal/domain"
	"github.com/couchcryptid/icra-risk-service/internal/inference"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testVersion    = "v1"
	thresholdsJSON = `{"baixo_max":0.25,"moderado_max":0.5,"alto_max":0.75,"descricao":{"baixo":"sem risco relevante"}}`
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

func featuresJSON(t *testing.T) string {
	t.Helper()
	data, err := json.Marshal(map[string]any{"features": domain.DefaultFeatureSchema()})
	require.NoError(t, err)
	return string(data)
}

func writeBundle(t *testing.T, withModel bool) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, FeaturesFile(testVersion), featuresJSON(t))
	writeFile(t, dir, ThresholdsFile(testVersion), thresholdsJSON)
	if withModel {
		writeFile(t, dir, ModelFile(testVersion), `{"kind":"ensemble","link":"logistic","members":[{"intercept":-2,"coefficients":{"precipitacao_total_mm":0.05}},{"intercept":-1.5,"coefficients":{"precipitacao_ma_7d":0.08}}]}`)
	}
	return dir
}

func TestLoad_FullBundle(t *testing.T) {
	dir := writeBundle(t, true)

	b, err := Load(dir, testVersion, true)
	require.NoError(t, err)

	assert.Equal(t, domain.DefaultFeatureSchema(), b.Schema)
	assert.Equal(t, 0.25, b.Thresholds.BaixoMax)
	assert.Equal(t, 0.5, b.Thresholds.ModeradoMax)
	assert.Equal(t, 0.75, b.Thresholds.AltoMax)
	assert.Equal(t, "sem risco relevante", b.Thresholds.Description["baixo"])

	_, ok := b.Model.(inference.EnsembleBackend)
	assert.True(t, ok)
	assert.Equal(t, inference.KindEnsemble, b.Info().LocalModel)
	assert.Len(t, b.Info().Features, 21)
}

func TestLoad_ModelOptional(t *testing.T) {
	dir := writeBundle(t, false)

	b, err := Load(dir, testVersion, false)
	require.NoError(t, err)
	assert.Nil(t, b.Model)
	assert.Empty(t, b.Info().LocalModel)

	_, err = Load(dir, testVersion, true)
	var ce *domain.ConfigurationError
	require.True(t, errors.As(err, &ce))
	assert.Contains(t, ce.Source, ModelFile(testVersion))
}

func TestLoad_BareFeatureList(t *testing.T) {
	dir := writeBundle(t, false)
	writeFile(t, dir, FeaturesFile(testVersion), `["precipitacao_total_mm","mes_sin"]`)

	b, err := Load(dir, testVersion, false)
	require.NoError(t, err)
	assert.Equal(t, domain.FeatureSchema{"precipitacao_total_mm", "mes_sin"}, b.Schema)
}

func TestLoad_ConfigurationErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(t *testing.T, dir string)
		source string
	}{
		{"missing features", func(t *testing.T, dir string) {
			require.NoError(t, os.Remove(filepath.Join(dir, FeaturesFile(testVersion))))
		}, FeaturesFile(testVersion)},
		{"empty features", func(t *testing.T, dir string) {
			writeFile(t, dir, FeaturesFile(testVersion), `{"features":[]}`)
		}, FeaturesFile(testVersion)},
		{"malformed features", func(t *testing.T, dir string) {
			writeFile(t, dir, FeaturesFile(testVersion), `{"features":`)
		}, FeaturesFile(testVersion)},
		{"descending thresholds", func(t *testing.T, dir string) {
			writeFile(t, dir, ThresholdsFile(testVersion), `{"baixo_max":0.6,"moderado_max":0.5,"alto_max":0.75}`)
		}, ThresholdsFile(testVersion)},
		{"missing threshold", func(t *testing.T, dir string) {
			writeFile(t, dir, ThresholdsFile(testVersion), `{"baixo_max":0.2,"moderado_max":0.5}`)
		}, ThresholdsFile(testVersion)},
		{"model schema mismatch", func(t *testing.T, dir string) {
			writeFile(t, dir, ModelFile(testVersion), `{"kind":"linear","features":["precipitacao_total_mm"],"intercept":0.1}`)
		}, ModelFile(testVersion)},
		{"undecodable model", func(t *testing.T, dir string) {
			writeFile(t, dir, ModelFile(testVersion), `{"kind":"svm"}`)
		}, ModelFile(testVersion)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := writeBundle(t, true)
			tt.mutate(t, dir)

			_, err := Load(dir, testVersion, false)
			require.Error(t, err)

			var ce *domain.ConfigurationError
			require.True(t, errors.As(err, &ce), "got %T: %v", err, err)
			assert.Contains(t, ce.Source, tt.source)
		})
	}
}
