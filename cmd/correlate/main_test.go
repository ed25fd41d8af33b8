package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/hazard-report-validator/internal/domain"
)

const alertsDoc = `[
  {"id": 1, "alert_type": "cyclone", "title": "Cyclone Warning - Bay of Bengal",
   "latitude": 13.0827, "longitude": 80.2707, "radius_km": 100,
   "issued_at": "2024-12-04T07:30:00Z", "active": true},
  {"id": 5, "alert_type": "volcano", "latitude": 0, "longitude": 0,
   "issued_at": "2024-12-04T07:30:00Z"}
]`

const reportsDoc = `[
  {"id": "r-near", "hazard_type": "cyclone", "geo": {"lat": 13.0827, "lon": 80.2707},
   "submitted_at": "2024-12-04T09:30:00Z"},
  {"id": "r-cat", "hazard_type": "cyclone", "geo": {"lat": 13.0827, "lon": 80.2707},
   "submitted_at": "2024-12-04T09:30:00Z"},
  {"id": "r-far", "hazard_type": "tsunami", "geo": {"lat": 18.9, "lon": 72.8},
   "submitted_at": "2024-12-04T09:30:00Z"}
]`

const assessmentsDoc = `{
  "r-near": {"ocean_related": true, "hazard_detected": true, "detected_hazard_type": "cyclone", "confidence": 0.8},
  "r-cat":  {"ocean_related": false, "confidence": 0.9}
}`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func testOptions(t *testing.T) options {
	t.Helper()
	dir := t.TempDir()
	return options{
		reportsPath:     writeFile(t, dir, "reports.json", reportsDoc),
		alertsPath:      writeFile(t, dir, "alerts.json", alertsDoc),
		assessmentsPath: writeFile(t, dir, "assessments.json", assessmentsDoc),
		window:          domain.DefaultMatchWindow,
		radiusKm:        domain.DefaultAlertRadiusKm,
		rejectAbove:     domain.DefaultRejectConfidence,
		asJSON:          true,
	}
}

func TestRun_JSON(t *testing.T) {
	var stdout, stderr bytes.Buffer
	require.NoError(t, run(testOptions(t), &stdout, &stderr))

	var results []result
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &results))
	require.Len(t, results, 3)

	near := results[0]
	assert.Equal(t, domain.StatusVerified, near.Status)
	assert.Equal(t, "hazard_image_with_official_alert", near.Rule)
	require.Len(t, near.Matches, 1)
	assert.Equal(t, "1", near.Matches[0].AlertID)
	assert.Equal(t, 0.0, near.Matches[0].DistanceKm)
	assert.Equal(t, 2.0, near.Matches[0].TimeDiffHours)

	assert.Equal(t, domain.StatusRejected, results[1].Status)
	assert.Equal(t, domain.ReasonNotOceanHazard, results[1].Reason)

	far := results[2]
	assert.Equal(t, domain.StatusPending, far.Status)
	assert.Equal(t, domain.ReasonManualReview, far.Reason)
	assert.Empty(t, far.Matches)

	assert.Contains(t, stderr.String(), "skipping alert 5")
}

func TestRun_WithoutAssessmentsAndNarrowWindow(t *testing.T) {
	opts := testOptions(t)
	opts.assessmentsPath = ""
	opts.window = time.Hour

	var stdout, stderr bytes.Buffer
	require.NoError(t, run(opts, &stdout, &stderr))

	var results []result
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &results))
	for _, r := range results {
		assert.Equal(t, domain.StatusPending, r.Status, r.ReportID)
		assert.Empty(t, r.Matches, "alert issued 2h earlier is outside a 1h window")
	}
}

func TestRun_Table(t *testing.T) {
	opts := testOptions(t)
	opts.asJSON = false

	var stdout, stderr bytes.Buffer
	require.NoError(t, run(opts, &stdout, &stderr))

	out := stdout.String()
	assert.Contains(t, out, "REPORT")
	assert.Contains(t, out, "r-near")
	assert.Contains(t, out, "1 (0.00 km, 2.00 h)")
}

func TestRun_MissingFile(t *testing.T) {
	opts := testOptions(t)
	opts.reportsPath = filepath.Join(t.TempDir(), "missing.json")

	err := run(opts, &bytes.Buffer{}, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read reports")
}
