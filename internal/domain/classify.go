package domain

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

// RiskLevel is the qualitative band of an ICRA score.
type RiskLevel string

const (
	LevelBaixo        RiskLevel = "Baixo"
	LevelModerado     RiskLevel = "Moderado"
	LevelAlto         RiskLevel = "Alto"
	LevelMuitoAlto    RiskLevel = "Muito Alto"
	LevelIndisponivel RiskLevel = "Indisponível"
)

// Confidence is the qualitative certainty of a score.
type Confidence string

const (
	ConfidenceAlta  Confidence = "Alta"
	ConfidenceMedia Confidence = "Média"
	ConfidenceBaixa Confidence = "Baixa"
)

// Color is the map display color for a level.
type Color string

const (
	ColorVerde          Color = "verde"
	ColorAmarelo        Color = "amarelo"
	ColorVermelho       Color = "vermelho"
	ColorVermelhoEscuro Color = "vermelho_escuro"
	ColorCinza          Color = "cinza"
)

// Confidence bounds on the ensemble standard deviation.
const (
	highConfidenceMaxStd   = 0.15
	mediumConfidenceMaxStd = 0.30
)

// Thresholds are the upper bounds of the Baixo, Moderado and Alto bands.
type Thresholds struct {
	BaixoMax    float64           `json:"baixo_max" validate:"gte=0,lte=1,ltefield=ModeradoMax"`
	ModeradoMax float64           `json:"moderado_max" validate:"gte=0,lte=1,ltefield=AltoMax"`
	AltoMax     float64           `json:"alto_max" validate:"gte=0,lte=1"`
	Description map[string]string `json:"descricao,omitempty"`
}

var thresholdValidator = validator.New(validator.WithRequiredStructEnabled())

// Validate checks that every bound lies in [0,1] and the bounds ascend.
func (t Thresholds) Validate() error {
	if err := thresholdValidator.Struct(t); err != nil {
		return &ConfigurationError{Source: "thresholds", Err: fmt.Errorf("baixo_max <= moderado_max <= alto_max within [0,1] required: %w", err)}
	}
	return nil
}

// ClassifyLevel maps a score to its band using strict upper bounds.
func ClassifyLevel(score float64, t Thresholds) RiskLevel {
	switch {
	case score < t.BaixoMax:
		return LevelBaixo
	case score < t.ModeradoMax:
		return LevelModerado
	case score < t.AltoMax:
		return LevelAlto
	default:
		return LevelMuitoAlto
	}
}

// ClassifyConfidence maps an ensemble standard deviation to a confidence
// label. A nil deviation reads as Alta.
func ClassifyConfidence(std *float64) Confidence {
	if std == nil {
		return ConfidenceAlta
	}
	switch {
	case *std < highConfidenceMaxStd:
		return ConfidenceAlta
	case *std < mediumConfidenceMaxStd:
		return ConfidenceMedia
	default:
		return ConfidenceBaixa
	}
}

var levelColors = map[string]Color{
	"baixo":      ColorVerde,
	"moderado":   ColorAmarelo,
	"alto":       ColorVermelho,
	"muito_alto": ColorVermelhoEscuro,
}

// MapColor returns the display color for a level label. Labels are matched
// case-insensitively with spaces, hyphens and underscores treated alike.
// Unknown labels map to cinza.
func MapColor(level string) Color {
	if c, ok := levelColors[normalizeLevel(level)]; ok {
		return c
	}
	return ColorCinza
}

func normalizeLevel(s string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if unicode.IsSpace(r) || r == '_' || r == '-' {
			pendingSep = true
			continue
		}
		if pendingSep && b.Len() > 0 {
			b.WriteByte('_')
		}
		pendingSep = false
		b.WriteRune(r)
	}
	return b.String()
}
