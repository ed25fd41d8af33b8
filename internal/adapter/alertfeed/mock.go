package alertfeed

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/hazard-report-validator/internal/domain"
)

// MockFeed serves two fixed development alerts issued relative to the clock.
// It stands in for the official feed when no feed URL is configured.
type MockFeed struct {
	clock clockwork.Clock
}

// NewMockFeed creates a development feed. A nil clock uses real time.
func NewMockFeed(clock clockwork.Clock) *MockFeed {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MockFeed{clock: clock}
}

func (m *MockFeed) ActiveAlerts(_ context.Context) ([]domain.OfficialAlert, error) {
	now := m.clock.Now().UTC()
	cycloneUntil := now.Add(22 * time.Hour)
	tideUntil := now.Add(11 * time.Hour)

	return []domain.OfficialAlert{
		{
			ID:           "1",
			HazardType:   domain.HazardCyclone,
			Severity:     "high",
			Title:        "Cyclone Warning - Bay of Bengal",
			Description:  "Severe cyclonic storm approaching the Tamil Nadu coast",
			Geo:          domain.Geo{Lat: 13.0827, Lon: 80.2707},
			AffectedArea: "Chennai Coast",
			RadiusKm:     100,
			IssuedAt:     now.Add(-2 * time.Hour),
			ValidUntil:   &cycloneUntil,
			Source:       DefaultSource,
			Active:       true,
		},
		{
			ID:           "2",
			HazardType:   domain.HazardHighTide,
			Severity:     "medium",
			Title:        "High Tide Alert - Mumbai Coast",
			Description:  "Higher than normal tides expected along the Mumbai coastline",
			Geo:          domain.Geo{Lat: 18.9388, Lon: 72.8354},
			AffectedArea: "Mumbai Coastal Areas",
			RadiusKm:     50,
			IssuedAt:     now.Add(-time.Hour),
			ValidUntil:   &tideUntil,
			Source:       DefaultSource,
			Active:       true,
		},
	}, nil
}
