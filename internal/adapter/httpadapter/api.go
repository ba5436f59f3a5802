package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/couchcryptid/icra-risk-service/internal/artifacts"
	"github.com/couchcryptid/icra-risk-service/internal/domain"
	"github.com/couchcryptid/icra-risk-service/internal/inference"
	"github.com/go-chi/chi/v5"
)

const maxPredictBody = 1 << 20

// Evaluator produces assessments for registered points.
type Evaluator interface {
	Points() []domain.Point
	Evaluate(ctx context.Context, pointID string, date time.Time) (domain.RiskAssessment, error)
	EvaluateAll(ctx context.Context, date time.Time) []domain.RiskAssessment
}

// Predictor scores a caller-supplied feature vector.
type Predictor interface {
	Infer(ctx context.Context, req inference.ScoreRequest) (inference.Result, error)
}

// APIOptions bound the map endpoint.
type APIOptions struct {
	BatchTimeout time.Duration
	MapMaxPoints int
}

// API serves the point, map, and scoring routes.
type API struct {
	eval      Evaluator
	predictor Predictor
	bundle    *artifacts.Bundle
	opts      APIOptions
	logger    *slog.Logger
}

// NewAPI creates the API. predictor may be nil, in which case
// POST /icra/predict answers 503.
func NewAPI(eval Evaluator, predictor Predictor, bundle *artifacts.Bundle, opts APIOptions, logger *slog.Logger) *API {
	return &API{eval: eval, predictor: predictor, bundle: bundle, opts: opts, logger: logger}
}

// Routes mounts the API on r.
func (a *API) Routes(r chi.Router) {
	r.Get("/points", a.handleListPoints)
	r.Get("/points/{id}/risk", a.handlePointRisk)
	r.Get("/map/points", a.handleMapPoints)
	r.Post("/icra/predict", a.handlePredict)
	r.Get("/model/info", a.handleModelInfo)
}

// --- response types ---

type location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type pointResponse struct {
	ID               string   `json:"id"`
	Name             string   `json:"nome"`
	Location         location `json:"localizacao"`
	Active           bool     `json:"ativo"`
	InfluenceRadiusM int      `json:"raio_influencia_m"`
	District         string   `json:"bairro,omitempty"`
	Description      string   `json:"descricao,omitempty"`
}

func newPointResponse(p domain.Point) pointResponse {
	return pointResponse{
		ID:               p.ID,
		Name:             p.Name,
		Location:         location{Latitude: p.Lat, Longitude: p.Lon},
		Active:           p.Active,
		InfluenceRadiusM: p.InfluenceRadiusM,
		District:         p.District,
		Description:      p.Description,
	}
}

// riskResponse carries a null icra for degraded assessments.
type riskResponse struct {
	ICRA       *float64 `json:"icra"`
	ICRAStd    *float64 `json:"icra_std"`
	Level      string   `json:"nivel"`
	Confidence string   `json:"confianca"`
	Color      string   `json:"cor"`
	Status     string   `json:"status"`
	Reason     string   `json:"motivo,omitempty"`
	Date       string   `json:"data"`
}

func newRiskResponse(a domain.RiskAssessment) *riskResponse {
	r := &riskResponse{
		ICRAStd:    a.Uncertainty,
		Level:      string(a.Level),
		Confidence: string(a.Confidence),
		Color:      string(a.Color),
		Status:     string(a.Status),
		Reason:     a.Reason,
		Date:       a.Date.Format(domain.DateLayout),
	}
	if !a.Degraded() {
		score := a.Score
		r.ICRA = &score
	}
	return r
}

type mapPoint struct {
	Point pointResponse `json:"ponto"`
	Risk  *riskResponse `json:"risco_atual"`
}

type mapResponse struct {
	Points    []mapPoint `json:"pontos"`
	UpdatedAt time.Time  `json:"atualizado_em"`
}

type predictRequest struct {
	Date     string                `json:"date"`
	Features *domain.FeatureVector `json:"features"`
	PointID  string                `json:"point_id"`
}

type predictDetails struct {
	RainDay float64 `json:"chuva_dia"`
	Rain30d float64 `json:"chuva_30d"`
	Rain90d float64 `json:"chuva_90d"`
}

type predictResponse struct {
	Date       string         `json:"data"`
	ICRA       float64        `json:"icra"`
	ICRAStd    *float64       `json:"icra_std"`
	Level      string         `json:"nivel_risco"`
	Confidence string         `json:"confianca"`
	Details    predictDetails `json:"detalhes"`
}

// --- handlers ---

func (a *API) handleListPoints(w http.ResponseWriter, _ *http.Request) {
	points := a.eval.Points()
	out := make([]pointResponse, len(points))
	for i, p := range points {
		out[i] = newPointResponse(p)
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handlePointRisk(w http.ResponseWriter, r *http.Request) {
	date, ok := dateParam(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	assessment, err := a.eval.Evaluate(r.Context(), id, date)
	if err != nil {
		status := riskErrorStatus(err)
		body := map[string]string{"error": err.Error()}
		var oe *domain.OrchestrationError
		if errors.As(err, &oe) {
			body["stage"] = string(oe.Stage)
		}
		if status >= http.StatusInternalServerError {
			a.logger.Error("point risk failed", "point_id", id, "status", status, "error", err)
		}
		writeJSON(w, status, body)
		return
	}
	writeJSON(w, http.StatusOK, newRiskResponse(assessment))
}

// riskErrorStatus maps on-demand failures to HTTP statuses.
func riskErrorStatus(err error) int {
	var (
		ve *domain.ValidationError
		fe *domain.FeatureBuildError
	)
	switch {
	case errors.Is(err, domain.ErrPointNotFound):
		return http.StatusNotFound
	case errors.As(err, &ve):
		return http.StatusUnprocessableEntity
	case errors.As(err, &fe):
		return http.StatusInternalServerError
	default:
		return http.StatusServiceUnavailable
	}
}

func (a *API) handleMapPoints(w http.ResponseWriter, r *http.Request) {
	date, ok := dateParam(w, r)
	if !ok {
		return
	}
	withRisk := true
	if v := r.URL.Query().Get("with_risk"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "with_risk must be a boolean")
			return
		}
		withRisk = b
	}

	points := a.eval.Points()
	if a.opts.MapMaxPoints > 0 && len(points) > a.opts.MapMaxPoints {
		points = points[:a.opts.MapMaxPoints]
	}

	out := mapResponse{Points: make([]mapPoint, len(points))}
	for i, p := range points {
		out.Points[i].Point = newPointResponse(p)
	}

	if withRisk {
		ctx := r.Context()
		if a.opts.BatchTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, a.opts.BatchTimeout)
			defer cancel()
		}
		byID := make(map[string]domain.RiskAssessment, len(points))
		for _, as := range a.eval.EvaluateAll(ctx, date) {
			byID[as.PointID] = as
		}
		for i, p := range points {
			if as, ok := byID[p.ID]; ok {
				out.Points[i].Risk = newRiskResponse(as)
			}
		}
	}

	out.UpdatedAt = domain.Now()
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handlePredict(w http.ResponseWriter, r *http.Request) {
	if a.predictor == nil {
		writeError(w, http.StatusServiceUnavailable, "local model not loaded")
		return
	}

	var req predictRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPredictBody)).Decode(&req); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, domain.ErrNullFeature) {
			status = http.StatusUnprocessableEntity
		}
		writeError(w, status, "invalid request body: "+err.Error())
		return
	}
	if req.Features == nil {
		writeError(w, http.StatusUnprocessableEntity, "features are required")
		return
	}
	date := domain.Today()
	if req.Date != "" {
		d, err := domain.ParseDate(req.Date)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "date must be YYYY-MM-DD")
			return
		}
		date = d
	}

	res, err := a.predictor.Infer(r.Context(), inference.ScoreRequest{Date: date, PointID: req.PointID, Features: *req.Features})
	if err != nil {
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"error":      "feature validation failed",
				"missing":    ve.Missing,
				"unexpected": ve.Unexpected,
			})
			return
		}
		a.logger.Error("predict failed", "point_id", req.PointID, "error", err)
		writeError(w, http.StatusInternalServerError, "prediction failed")
		return
	}

	feature := func(name string) float64 {
		v, _ := req.Features.Value(name)
		return v
	}
	writeJSON(w, http.StatusOK, predictResponse{
		Date:       date.Format(domain.DateLayout),
		ICRA:       res.Score,
		ICRAStd:    res.Uncertainty,
		Level:      string(domain.ClassifyLevel(res.Score, a.bundle.Thresholds)),
		Confidence: string(domain.ClassifyConfidence(res.Uncertainty)),
		Details: predictDetails{
			RainDay: feature(domain.FeaturePrecipTotal),
			Rain30d: feature(domain.FeaturePrecipMA30),
			Rain90d: feature(domain.FeaturePrecipMA90),
		},
	})
}

func (a *API) handleModelInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.bundle.Info())
}

// dateParam reads ?date=YYYY-MM-DD, defaulting to today.
func dateParam(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	v := r.URL.Query().Get("date")
	if v == "" {
		return domain.Today(), true
	}
	d, err := domain.ParseDate(v)
	if err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return time.Time{}, false
	}
	return d, true
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // client went away
}
