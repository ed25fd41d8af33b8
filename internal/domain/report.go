package domain

import "time"

// HazardType is the closed set of ocean hazards a report may declare.
type HazardType string

const (
	HazardTsunami  HazardType = "tsunami"
	HazardCyclone  HazardType = "cyclone"
	HazardHighTide HazardType = "high_tide"
)

// HazardTypes lists every valid hazard type in a stable order.
var HazardTypes = []HazardType{HazardTsunami, HazardCyclone, HazardHighTide}

// Valid reports whether h is one of the known hazard types.
func (h HazardType) Valid() bool {
	switch h {
	case HazardTsunami, HazardCyclone, HazardHighTide:
		return true
	default:
		return false
	}
}

// ParseHazardType normalizes a free-form hazard label. Unknown labels,
// including the classifier's "none", return the empty type.
func ParseHazardType(s string) HazardType {
	h := HazardType(s)
	if h.Valid() {
		return h
	}
	return ""
}

// Severity is the reporter's own estimate of how bad the hazard is.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Geo represents a WGS-84 latitude/longitude coordinate pair.
type Geo struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// HazardReport is a crowdsourced report as submitted by a citizen.
type HazardReport struct {
	ID          string     `json:"id"`
	HazardType  HazardType `json:"hazard_type"`
	Severity    Severity   `json:"severity"`
	Geo         Geo        `json:"geo"`
	SubmittedAt time.Time  `json:"submitted_at"`
	ImageRef    string     `json:"image_ref"`
	Description string     `json:"description,omitempty"`
}

// ImageAssessment is the classifier's best-effort reading of a report photo.
type ImageAssessment struct {
	OceanRelated       bool       `json:"ocean_related"`
	HazardDetected     bool       `json:"hazard_detected"`
	DetectedHazardType HazardType `json:"detected_hazard_type,omitempty"`
	Confidence         float64    `json:"confidence"`
	SceneDescription   string     `json:"scene_description,omitempty"`
	DetectedElements   []string   `json:"detected_elements,omitempty"`
	AnalyzedAt         time.Time  `json:"analyzed_at"`
}

// OfficialAlert is an alert issued by the official warning feed. It is
// read-only to this service.
type OfficialAlert struct {
	ID           string     `json:"id"`
	HazardType   HazardType `json:"alert_type"`
	Severity     string     `json:"severity"`
	Title        string     `json:"title"`
	Description  string     `json:"description,omitempty"`
	Geo          Geo        `json:"geo"`
	AffectedArea string     `json:"affected_area"`
	RadiusKm     float64    `json:"radius_km"`
	IssuedAt     time.Time  `json:"issued_at"`
	ValidUntil   *time.Time `json:"valid_until,omitempty"`
	Source       string     `json:"source,omitempty"`
	Active       bool       `json:"active"`
}

// DisplayName returns the alert's title, falling back to the affected area
// and then the id.
func (a OfficialAlert) DisplayName() string {
	switch {
	case a.Title != "":
		return a.Title
	case a.AffectedArea != "":
		return a.AffectedArea
	default:
		return a.ID
	}
}

// CorrelationMatch links a report to one alert that contains it in space and time.
type CorrelationMatch struct {
	Alert         OfficialAlert `json:"alert"`
	DistanceKm    float64       `json:"distance_km"`
	TimeDiffHours float64       `json:"time_diff_hours"`
}
