package domain

import "time"

// UnavailableScore marks an assessment that could not be computed.
const UnavailableScore = -1.0

// AssessmentStatus distinguishes computed assessments from degraded ones.
type AssessmentStatus string

const (
	StatusOK       AssessmentStatus = "ok"
	StatusDegraded AssessmentStatus = "degraded"
)

// RiskAssessment is the per-point, per-day evaluation outcome.
type RiskAssessment struct {
	PointID     string           `json:"point_id"`
	Date        time.Time        `json:"date"`
	Score       float64          `json:"icra"`
	Uncertainty *float64         `json:"icra_std"`
	Level       RiskLevel        `json:"nivel_risco"`
	Confidence  Confidence       `json:"confianca"`
	Color       Color            `json:"cor"`
	AssessedAt  time.Time        `json:"atualizado_em"`
	Status      AssessmentStatus `json:"status"`
	Reason      string           `json:"motivo,omitempty"`
}

// Degraded reports whether the assessment is the unavailable placeholder.
func (a RiskAssessment) Degraded() bool {
	return a.Status == StatusDegraded
}

// NewAssessment classifies a score into a complete assessment.
func NewAssessment(pointID string, date time.Time, score float64, std *float64, t Thresholds) RiskAssessment {
	level := ClassifyLevel(score, t)
	return RiskAssessment{
		PointID:     pointID,
		Date:        DayOf(date),
		Score:       score,
		Uncertainty: std,
		Level:       level,
		Confidence:  ClassifyConfidence(std),
		Color:       MapColor(string(level)),
		AssessedAt:  Now(),
		Status:      StatusOK,
	}
}

// DegradedAssessment is the placeholder for a point whose evaluation failed.
func DegradedAssessment(pointID string, date time.Time, reason string) RiskAssessment {
	return RiskAssessment{
		PointID:    pointID,
		Date:       DayOf(date),
		Score:      UnavailableScore,
		Level:      LevelIndisponivel,
		Confidence: ConfidenceBaixa,
		Color:      ColorCinza,
		AssessedAt: Now(),
		Status:     StatusDegraded,
		Reason:     reason,
	}
}
