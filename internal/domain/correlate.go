package domain

import (
	"math"
	"sort"
	"time"
)

const (
	// DefaultMatchWindow is the maximum gap between report and alert issue time.
	DefaultMatchWindow = 24 * time.Hour

	// DefaultAlertRadiusKm applies to alerts published without a radius.
	DefaultAlertRadiusKm = 50.0
)

// Matcher correlates reports with official alerts. The zero value is not
// useful; use NewMatcher or DefaultMatcher.
type Matcher struct {
	window        time.Duration
	defaultRadius float64
}

// NewMatcher creates a Matcher with the given time window and fallback radius.
// Non-positive arguments select the defaults.
func NewMatcher(window time.Duration, defaultRadiusKm float64) Matcher {
	if window <= 0 {
		window = DefaultMatchWindow
	}
	if defaultRadiusKm <= 0 {
		defaultRadiusKm = DefaultAlertRadiusKm
	}
	return Matcher{window: window, defaultRadius: defaultRadiusKm}
}

// DefaultMatcher returns a Matcher with the 24 hour window and 50 km radius.
func DefaultMatcher() Matcher {
	return NewMatcher(DefaultMatchWindow, DefaultAlertRadiusKm)
}

// Correlate runs DefaultMatcher().Correlate.
func Correlate(report HazardReport, alerts []OfficialAlert) []CorrelationMatch {
	return DefaultMatcher().Correlate(report, alerts)
}

// Correlate returns every active alert of the report's hazard type that
// contains the report in space and time, nearest first. It never returns nil
// and never mutates its inputs.
func (m Matcher) Correlate(report HazardReport, alerts []OfficialAlert) []CorrelationMatch {
	matches := make([]CorrelationMatch, 0)

	for _, alert := range alerts {
		if !alert.Active || alert.HazardType != report.HazardType {
			continue
		}

		radius := alert.RadiusKm
		if radius <= 0 {
			radius = m.defaultRadius
		}

		distance := HaversineKm(report.Geo, alert.Geo)
		if math.IsNaN(distance) || distance > radius {
			continue
		}

		gap := report.SubmittedAt.Sub(alert.IssuedAt)
		if gap < 0 {
			gap = -gap
		}
		if gap > m.window {
			continue
		}

		matches = append(matches, CorrelationMatch{
			Alert:         alert,
			DistanceKm:    distance,
			TimeDiffHours: gap.Hours(),
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matchLess(matches[i], matches[j])
	})
	return matches
}

// matchLess orders by distance, then time difference, then most recent alert.
func matchLess(a, b CorrelationMatch) bool {
	if a.DistanceKm != b.DistanceKm {
		return a.DistanceKm < b.DistanceKm
	}
	if a.TimeDiffHours != b.TimeDiffHours {
		return a.TimeDiffHours < b.TimeDiffHours
	}
	return a.Alert.IssuedAt.After(b.Alert.IssuedAt)
}

// RoundedDistanceKm is the distance rounded to two decimals for display.
func (m CorrelationMatch) RoundedDistanceKm() float64 {
	return round2(m.DistanceKm)
}

// RoundedTimeDiffHours is the time difference rounded to two decimals for display.
func (m CorrelationMatch) RoundedTimeDiffHours() float64 {
	return round2(m.TimeDiffHours)
}

// AlertID is the id of the matched alert.
func (m CorrelationMatch) AlertID() string { return m.Alert.ID }

// Title is the matched alert's display name.
func (m CorrelationMatch) Title() string { return m.Alert.DisplayName() }
