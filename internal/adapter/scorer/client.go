package scorer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/couchcryptid/icra-risk-service/internal/domain"
	"github.com/couchcryptid/icra-risk-service/internal/inference"
	"github.com/sony/gobreaker/v2"
)

// PredictPath is the scoring endpoint path.
const PredictPath = "/icra/predict"

const backendName = "remote"

// Client implements inference.Backend against a remote HTTP scoring service.
// Calls go through a circuit breaker; there are no retries.
type Client struct {
	url        string
	features   []string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[inference.Prediction]
	logger     *slog.Logger
}

// NewClient creates a remote scoring client. features is the schema the
// remote model was trained on.
func NewClient(baseURL string, features []string, timeout time.Duration, logger *slog.Logger) *Client {
	c := &Client{
		url:      strings.TrimRight(baseURL, "/") + PredictPath,
		features: slices.Clone(features),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
	c.breaker = gobreaker.NewCircuitBreaker[inference.Prediction](gobreaker.Settings{
		Name:        "icra-scorer",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: isSuccessful,
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return c
}

// Name identifies the backend.
func (c *Client) Name() string { return backendName }

// ExpectedFeatures returns the remote model's schema.
func (c *Client) ExpectedFeatures() []string { return slices.Clone(c.features) }

// CheckReadiness fails while the circuit is open.
func (c *Client) CheckReadiness(_ context.Context) error {
	if c.breaker.State() == gobreaker.StateOpen {
		return errors.New("scoring backend circuit is open")
	}
	return nil
}

// Predict posts the vector and returns the remote score.
func (c *Client) Predict(ctx context.Context, req inference.ScoreRequest) (inference.Prediction, error) {
	p, err := c.breaker.Execute(func() (inference.Prediction, error) {
		return c.doRequest(ctx, req)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return inference.Prediction{}, &domain.InferenceError{Backend: backendName, Err: err}
	}
	return p, err
}

func (c *Client) doRequest(ctx context.Context, req inference.ScoreRequest) (inference.Prediction, error) {
	payload, err := json.Marshal(predictRequest{
		Date:     req.Date.Format(domain.DateLayout),
		Features: req.Features,
		PointID:  req.PointID,
	})
	if err != nil {
		return inference.Prediction{}, c.fail(0, "", fmt.Errorf("encode request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return inference.Prediction{}, c.fail(0, "", fmt.Errorf("create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return inference.Prediction{}, c.fail(0, "", fmt.Errorf("scoring request: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return inference.Prediction{}, c.fail(resp.StatusCode, "", fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return inference.Prediction{}, c.fail(resp.StatusCode, string(body), nil)
	}

	var r predictResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return inference.Prediction{}, c.fail(resp.StatusCode, string(body), fmt.Errorf("decode response: %w", err))
	}
	if r.ICRA == nil || *r.ICRA < 0 || *r.ICRA > 1 {
		return inference.Prediction{}, c.fail(resp.StatusCode, string(body), errors.New("icra missing or outside [0,1]"))
	}

	std := r.Std
	if std == nil {
		std = r.ICRAStd
	}
	return inference.Prediction{Score: *r.ICRA, Std: std}, nil
}

func (c *Client) fail(status int, body string, err error) error {
	return &domain.InferenceError{Backend: backendName, Status: status, Body: body, Err: err}
}

// isSuccessful keeps caller mistakes and cancellations from tripping the breaker.
func isSuccessful(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	var ie *domain.InferenceError
	if errors.As(err, &ie) {
		return ie.Status >= 400 && ie.Status < 500
	}
	return false
}

// Scoring API wire types.

type predictRequest struct {
	Date     string               `json:"date"`
	Features domain.FeatureVector `json:"features"`
	PointID  string               `json:"point_id"`
}

type predictResponse struct {
	ICRA       *float64 `json:"icra"`
	NivelRisco string   `json:"nivel_risco"`
	Confianca  string   `json:"confianca"`
	Std        *float64 `json:"std"`
	ICRAStd    *float64 `json:"icra_std"`
}
