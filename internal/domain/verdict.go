package domain

import "time"

// Status is the outcome of one validation run.
type Status string

const (
	StatusPending  Status = "pending"
	StatusVerified Status = "verified"
	StatusRejected Status = "rejected"
)

// Terminal reports whether the status is a decision that warrants an
// outward notification.
func (s Status) Terminal() bool {
	return s == StatusVerified || s == StatusRejected
}

// Verdict is a status plus the human-readable reason behind it.
type Verdict struct {
	Status Status `json:"status"`
	Reason string `json:"reason"`
}

// VerdictRecord is the unit the store commits atomically: the verdict, the
// report it belongs to, and the evidence audit for this run.
type VerdictRecord struct {
	Report     HazardReport
	Verdict    Verdict
	Assessment *ImageAssessment // nil when the classifier was unavailable
	Matches    []CorrelationMatch
	DecidedAt  time.Time
}
