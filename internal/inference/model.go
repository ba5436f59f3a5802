package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
)

// Model kinds and link functions understood by DecodeModel.
const (
	KindLinear   = "linear"
	KindEnsemble = "ensemble"

	LinkIdentity = "identity"
	LinkLogistic = "logistic"
)

const localBackendName = "local"

// LinearModel is a generalized linear scorer over named features. Outputs are
// clamped to [0,1].
type LinearModel struct {
	Features     []string
	Intercept    float64
	Coefficients map[string]float64
	Link         string
}

// Name identifies the backend.
func (m *LinearModel) Name() string { return localBackendName }

// ExpectedFeatures returns the model's feature names.
func (m *LinearModel) ExpectedFeatures() []string { return slices.Clone(m.Features) }

// Predict scores req without uncertainty.
func (m *LinearModel) Predict(ctx context.Context, req ScoreRequest) (Prediction, error) {
	if err := ctx.Err(); err != nil {
		return Prediction{}, err
	}
	return Prediction{Score: m.score(req.Features.Map())}, nil
}

func (m *LinearModel) score(values map[string]float64) float64 {
	z := m.Intercept
	for name, w := range m.Coefficients {
		z += w * values[name]
	}
	if m.Link == LinkLogistic {
		z = 1 / (1 + math.Exp(-z))
	}
	return clamp01(z)
}

// EnsembleModel averages the scores of its members.
type EnsembleModel struct {
	Features []string
	Members  []*LinearModel
}

// Name identifies the backend.
func (m *EnsembleModel) Name() string { return localBackendName }

// ExpectedFeatures returns the model's feature names.
func (m *EnsembleModel) ExpectedFeatures() []string { return slices.Clone(m.Features) }

// MemberPredictions returns one score per member.
func (m *EnsembleModel) MemberPredictions(ctx context.Context, req ScoreRequest) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	values := req.Features.Map()
	out := make([]float64, len(m.Members))
	for i, member := range m.Members {
		out[i] = member.score(values)
	}
	return out, nil
}

// Predict returns the ensemble mean and spread.
func (m *EnsembleModel) Predict(ctx context.Context, req ScoreRequest) (Prediction, error) {
	members, err := m.MemberPredictions(ctx, req)
	if err != nil {
		return Prediction{}, err
	}
	if len(members) == 0 {
		return Prediction{}, errors.New("ensemble has no members")
	}
	mean, std := meanStd(members)
	return Prediction{Score: mean, Std: &std}, nil
}

func clamp01(x float64) float64 {
	switch {
	case math.IsNaN(x), x < 0:
		return 0
	case x > 1:
		return 1
	default:
		return x
	}
}

// modelDocument is the serialized form of a local model.
type modelDocument struct {
	Kind         string             `json:"kind"`
	Features     []string           `json:"features"`
	Link         string             `json:"link"`
	Intercept    float64            `json:"intercept"`
	Coefficients map[string]float64 `json:"coefficients"`
	Members      []modelDocument    `json:"members"`
}

// DecodeModel parses a model document. When the document does not list its
// features, schema is used.
func DecodeModel(data []byte, schema []string) (Backend, error) {
	var doc modelDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode model: %w", err)
	}

	features := doc.Features
	if len(features) == 0 {
		features = schema
	}
	if len(features) == 0 {
		return nil, errors.New("model lists no features")
	}

	switch doc.Kind {
	case KindLinear, "":
		return buildLinear(doc, features)
	case KindEnsemble:
		if len(doc.Members) == 0 {
			return nil, errors.New("ensemble model has no members")
		}
		ens := &EnsembleModel{Features: slices.Clone(features)}
		for i, md := range doc.Members {
			if md.Link == "" {
				md.Link = doc.Link
			}
			member, err := buildLinear(md, features)
			if err != nil {
				return nil, fmt.Errorf("member %d: %w", i, err)
			}
			ens.Members = append(ens.Members, member)
		}
		return ens, nil
	default:
		return nil, fmt.Errorf("unknown model kind %q", doc.Kind)
	}
}

func buildLinear(doc modelDocument, features []string) (*LinearModel, error) {
	link := doc.Link
	if link == "" {
		link = LinkIdentity
	}
	if link != LinkIdentity && link != LinkLogistic {
		return nil, fmt.Errorf("unknown link %q", link)
	}
	for name := range doc.Coefficients {
		if !slices.Contains(features, name) {
			return nil, fmt.Errorf("coefficient for unknown feature %q", name)
		}
	}
	return &LinearModel{
		Features:     slices.Clone(features),
		Intercept:    doc.Intercept,
		Coefficients: doc.Coefficients,
		Link:         link,
	}, nil
}
