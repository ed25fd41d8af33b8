package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/couchcryptid/hazard-report-validator/internal/domain"
	"github.com/couchcryptid/hazard-report-validator/internal/observability"
)

// Client implements domain.Classifier against an HTTP image-assessment service.
type Client struct {
	token      string
	httpClient *http.Client
	baseURL    string
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates an image classifier client.
func NewClient(baseURL, token string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		token: token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
		metrics: metrics,
		logger:  logger,
	}
}

// Assess asks the service whether the referenced image shows an ocean hazard.
// Services that answer in prose are interpreted with domain.ParseAssessmentText.
func (c *Client) Assess(ctx context.Context, imageRef string) (domain.ImageAssessment, error) {
	if imageRef == "" {
		return domain.ImageAssessment{}, errors.New("assess image: empty image reference")
	}

	a, outcome, err := c.doRequest(ctx, imageRef)
	c.metrics.ClassifierCalls.WithLabelValues(outcome).Inc()
	if err != nil {
		return domain.ImageAssessment{}, err
	}
	return a, nil
}

func (c *Client) doRequest(ctx context.Context, imageRef string) (domain.ImageAssessment, string, error) {
	body, err := json.Marshal(request{ImageRef: imageRef})
	if err != nil {
		return domain.ImageAssessment{}, "error", fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/assess", bytes.NewReader(body))
	if err != nil {
		return domain.ImageAssessment{}, "error", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.ImageAssessment{}, "error", fmt.Errorf("assess request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return domain.ImageAssessment{}, "error", fmt.Errorf("classifier API error: status %d: %s", resp.StatusCode, msg)
	}

	var r response
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return domain.ImageAssessment{}, "error", fmt.Errorf("decode response: %w", err)
	}

	switch {
	case r.OceanRelated != nil:
		return r.assessment(), "success", nil
	case strings.TrimSpace(r.Text) != "":
		c.logger.Debug("classifier answered in prose, using keyword fallback", "image_ref", imageRef)
		return domain.ParseAssessmentText(r.Text), "text_fallback", nil
	default:
		return domain.ImageAssessment{}, "error", errors.New("classifier returned neither an assessment nor text")
	}
}

// Classifier API wire types.

type request struct {
	ImageRef string `json:"image_ref"`
}

type response struct {
	OceanRelated     *bool      `json:"ocean_related"`
	HazardDetected   bool       `json:"hazard_detected"`
	HazardType       string     `json:"hazard_type"`
	Confidence       float64    `json:"confidence"`
	Description      string     `json:"description"`
	DetectedElements []string   `json:"detected_elements"`
	AnalyzedAt       *time.Time `json:"analyzed_at"`
	Text             string     `json:"text"` // free-form answer from prompt-based services
}

func (r response) assessment() domain.ImageAssessment {
	a := domain.ImageAssessment{
		OceanRelated:       *r.OceanRelated,
		HazardDetected:     r.HazardDetected,
		DetectedHazardType: domain.HazardType(strings.ToLower(strings.TrimSpace(r.HazardType))),
		Confidence:         r.Confidence,
		SceneDescription:   r.Description,
		DetectedElements:   r.DetectedElements,
	}
	if r.AnalyzedAt != nil {
		a.AnalyzedAt = r.AnalyzedAt.UTC()
	}
	return a
}
