package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
)

// RawEvent represents an unprocessed message from the submitted-reports topic.
type RawEvent struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// OutputEvent is the serialized form destined for the verdict topic.
type OutputEvent struct {
	Key     []byte
	Value   []byte
	Headers map[string]string
}

// VerdictEvent is published when a report becomes Verified or Rejected.
type VerdictEvent struct {
	EventID   string    `json:"event_id"`
	ReportID  string    `json:"report_id"`
	Status    Status    `json:"status"`
	Reason    string    `json:"reason"`
	Message   string    `json:"message"`
	DecidedAt time.Time `json:"decided_at"`
}

// ParseReport deserializes a submitted report and checks the fields the
// validation pipeline depends on. A report without a submission time takes
// the message timestamp, or the current time when that is missing too.
func ParseReport(raw RawEvent) (HazardReport, error) {
	var r HazardReport
	if err := json.Unmarshal(raw.Value, &r); err != nil {
		return HazardReport{}, fmt.Errorf("parse report: %w", err)
	}
	if r.ID == "" && len(raw.Key) > 0 {
		r.ID = string(raw.Key)
	}

	if err := validateReport(r); err != nil {
		return HazardReport{}, fmt.Errorf("parse report %q: %w", r.ID, err)
	}

	switch {
	case !r.SubmittedAt.IsZero():
	case !raw.Timestamp.IsZero():
		r.SubmittedAt = raw.Timestamp
	default:
		r.SubmittedAt = clock.Now()
	}
	r.SubmittedAt = r.SubmittedAt.UTC()
	return r, nil
}

func validateReport(r HazardReport) error {
	switch {
	case r.ID == "":
		return errors.New("missing id")
	case !r.HazardType.Valid():
		return fmt.Errorf("unknown hazard type %q", r.HazardType)
	case math.IsNaN(r.Geo.Lat) || r.Geo.Lat < -90 || r.Geo.Lat > 90:
		return fmt.Errorf("latitude %v out of range", r.Geo.Lat)
	case math.IsNaN(r.Geo.Lon) || r.Geo.Lon < -180 || r.Geo.Lon > 180:
		return fmt.Errorf("longitude %v out of range", r.Geo.Lon)
	}
	return nil
}

// NewVerdictEvent builds the notification payload for a decided report.
func NewVerdictEvent(eventID, reportID string, v Verdict, decidedAt time.Time) VerdictEvent {
	return VerdictEvent{
		EventID:   eventID,
		ReportID:  reportID,
		Status:    v.Status,
		Reason:    v.Reason,
		Message:   verdictMessage(reportID, v),
		DecidedAt: decidedAt.UTC(),
	}
}

func verdictMessage(reportID string, v Verdict) string {
	switch v.Status {
	case StatusVerified:
		return fmt.Sprintf("Report %s verified: %s", reportID, v.Reason)
	case StatusRejected:
		return fmt.Sprintf("Report %s rejected: %s", reportID, v.Reason)
	default:
		return fmt.Sprintf("Report %s pending: %s", reportID, v.Reason)
	}
}

// SerializeVerdictEvent marshals a verdict event keyed by report id.
func SerializeVerdictEvent(e VerdictEvent) (OutputEvent, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return OutputEvent{}, fmt.Errorf("serialize verdict event: %w", err)
	}
	return OutputEvent{
		Key:   []byte(e.ReportID),
		Value: data,
		Headers: map[string]string{
			"status":     string(e.Status),
			"decided_at": e.DecidedAt.Format(time.RFC3339),
		},
	}, nil
}
