package alertfeed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/couchcryptid/hazard-report-validator/internal/domain"
	"github.com/couchcryptid/hazard-report-validator/internal/observability"
)

// DefaultSource labels alerts whose feed entry names no issuer.
const DefaultSource = "INCOIS"

// Client implements domain.AlertFeed against the official warning service.
type Client struct {
	token      string
	httpClient *http.Client
	baseURL    string
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates an alert feed client.
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

// ActiveAlerts fetches the currently active alerts. Entries that cannot be
// mapped to a known hazard type are dropped.
func (c *Client) ActiveAlerts(ctx context.Context) ([]domain.OfficialAlert, error) {
	alerts, err := c.doRequest(ctx)
	if err != nil {
		c.metrics.AlertFeedCalls.WithLabelValues("error").Inc()
		return nil, err
	}
	c.metrics.AlertFeedCalls.WithLabelValues("success").Inc()
	return alerts, nil
}

func (c *Client) doRequest(ctx context.Context) ([]domain.OfficialAlert, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/alerts?active=true", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("alert feed request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("alert feed API error: status %d: %s", resp.StatusCode, body)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	alerts, skipped, err := DecodeAlerts(body)
	if err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(skipped) > 0 {
		c.logger.Warn("skipping alerts with unknown type", "alert_ids", skipped)
	}
	return alerts, nil
}

// DecodeAlerts maps an alert feed document to domain alerts. Entries with an
// unknown hazard type are left out and their ids returned as skipped.
func DecodeAlerts(body []byte) (alerts []domain.OfficialAlert, skipped []string, err error) {
	entries, err := decodeEntries(body)
	if err != nil {
		return nil, nil, err
	}
	alerts = make([]domain.OfficialAlert, 0, len(entries))
	for _, e := range entries {
		a, ok := e.toDomain()
		if !ok {
			skipped = append(skipped, string(e.ID))
			continue
		}
		alerts = append(alerts, a)
	}
	return alerts, skipped, nil
}

// decodeEntries accepts either a bare array or an {"alerts": [...]} envelope.
func decodeEntries(body []byte) ([]entry, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var entries []entry
		err := json.Unmarshal(trimmed, &entries)
		return entries, err
	}
	var env struct {
		Alerts []entry `json:"alerts"`
	}
	err := json.Unmarshal(trimmed, &env)
	return env.Alerts, err
}

// Alert feed wire types. The feed uses flat coordinates and numeric or string ids.

type entry struct {
	ID           flexibleID `json:"id"`
	AlertType    string     `json:"alert_type"`
	Severity     string     `json:"severity"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Latitude     float64    `json:"latitude"`
	Longitude    float64    `json:"longitude"`
	AffectedArea string     `json:"affected_area"`
	RadiusKm     float64    `json:"radius_km"`
	IssuedAt     time.Time  `json:"issued_at"`
	ValidUntil   *time.Time `json:"valid_until"`
	Source       string     `json:"source"`
	Active       *bool      `json:"active"`
}

func (e entry) toDomain() (domain.OfficialAlert, bool) {
	hazard := domain.ParseHazardType(strings.ToLower(strings.TrimSpace(e.AlertType)))
	if hazard == "" {
		return domain.OfficialAlert{}, false
	}

	a := domain.OfficialAlert{
		ID:           string(e.ID),
		HazardType:   hazard,
		Severity:     strings.ToLower(e.Severity),
		Title:        e.Title,
		Description:  e.Description,
		Geo:          domain.Geo{Lat: e.Latitude, Lon: e.Longitude},
		AffectedArea: e.AffectedArea,
		RadiusKm:     e.RadiusKm,
		IssuedAt:     e.IssuedAt.UTC(),
		Source:       e.Source,
		Active:       e.Active == nil || *e.Active,
	}
	if e.ValidUntil != nil {
		v := e.ValidUntil.UTC()
		a.ValidUntil = &v
	}
	if a.Source == "" {
		a.Source = DefaultSource
	}
	return a, true
}

type flexibleID string

func (f *flexibleID) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexibleID(n.String())
	return nil
}
