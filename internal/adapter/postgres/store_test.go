//go:build integration

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/couchcryptid/hazard-report-validator/internal/domain"
)

var _ domain.Store = (*Store)(nil)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:17-alpine",
		tcpostgres.WithDatabase("hazard_test"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	store, err := NewStore(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(store.Close)

	require.NoError(t, store.EnsureSchema(ctx))
	require.NoError(t, store.EnsureSchema(ctx), "schema creation is idempotent")
	return store
}

func testRecord(status domain.Status, reason string, withAssessment bool) domain.VerdictRecord {
	submitted := time.Date(2024, time.December, 4, 9, 30, 0, 0, time.UTC)
	rec := domain.VerdictRecord{
		Report: domain.HazardReport{
			ID:          "rpt-pg-1",
			HazardType:  domain.HazardCyclone,
			Severity:    domain.SeverityHigh,
			Geo:         domain.Geo{Lat: 13.05, Lon: 80.28},
			SubmittedAt: submitted,
			ImageRef:    "uploads/rpt-pg-1.jpg",
		},
		Verdict:   domain.Verdict{Status: status, Reason: reason},
		DecidedAt: submitted.Add(time.Minute),
	}
	if withAssessment {
		rec.Assessment = &domain.ImageAssessment{
			OceanRelated:       true,
			HazardDetected:     true,
			DetectedHazardType: domain.HazardCyclone,
			Confidence:         0.8,
			DetectedElements:   []string{"clouds", "waves"},
			AnalyzedAt:         submitted.Add(30 * time.Second),
		}
	}
	if status == domain.StatusVerified {
		rec.Matches = []domain.CorrelationMatch{
			{Alert: domain.OfficialAlert{ID: "1", Title: "Cyclone Warning - Bay of Bengal"}, DistanceKm: 4.1, TimeDiffHours: 2},
			{Alert: domain.OfficialAlert{ID: "9", AffectedArea: "Puducherry"}, DistanceKm: 80, TimeDiffHours: 3},
		}
	}
	return rec
}

func TestStore_CommitLifecycle(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, err := store.Verdict(ctx, "rpt-pg-1")
	assert.True(t, errors.Is(err, ErrNotFound))

	res, err := store.Commit(ctx, testRecord(domain.StatusPending, domain.ReasonAwaitingOfficial, true))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, res.Previous, "a new report starts pending")

	res, err = store.Commit(ctx, testRecord(domain.StatusVerified, "Matches 2 official alert(s)", true))
	require.NoError(t, err)
	assert.Equal(t, domain.CommitResult{Previous: domain.StatusPending}, res)

	v, err := store.Verdict(ctx, "rpt-pg-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusVerified, v.Status)
	assert.Equal(t, 2, v.MatchCount)
	assert.Equal(t, "1", v.ClosestAlertID)
	assert.True(t, v.HasAssessment)

	res, err = store.Commit(ctx, testRecord(domain.StatusVerified, "Matches 2 official alert(s)", true))
	require.NoError(t, err)
	assert.Equal(t, domain.CommitResult{Previous: domain.StatusVerified}, res, "idempotent rerun sees its own verdict")
}

func TestStore_AnnouncementTracksStatus(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	verified := testRecord(domain.StatusVerified, "Matches 2 official alert(s)", true)

	res, err := store.Commit(ctx, verified)
	require.NoError(t, err)
	assert.False(t, res.Announced)

	res, err = store.Commit(ctx, verified)
	require.NoError(t, err)
	assert.False(t, res.Announced, "an undelivered verdict stays unannounced across runs")

	require.NoError(t, store.MarkAnnounced(ctx, "rpt-pg-1", domain.StatusVerified))
	v, err := store.Verdict(ctx, "rpt-pg-1")
	require.NoError(t, err)
	assert.True(t, v.Announced)

	res, err = store.Commit(ctx, verified)
	require.NoError(t, err)
	assert.True(t, res.Announced)

	res, err = store.Commit(ctx, testRecord(domain.StatusRejected, domain.ReasonNotOceanHazard, true))
	require.NoError(t, err)
	assert.Equal(t, domain.CommitResult{Previous: domain.StatusVerified}, res, "a status change clears the announcement")

	require.NoError(t, store.MarkAnnounced(ctx, "rpt-pg-1", domain.StatusVerified))
	v, err = store.Verdict(ctx, "rpt-pg-1")
	require.NoError(t, err)
	assert.False(t, v.Announced, "a stale status is not recorded as announced")
}

func TestStore_CommitWithoutAssessmentClearsAudit(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, err := store.Commit(ctx, testRecord(domain.StatusPending, domain.ReasonAwaitingOfficial, true))
	require.NoError(t, err)
	_, err = store.Commit(ctx, testRecord(domain.StatusPending, domain.ReasonManualReview, false))
	require.NoError(t, err)

	v, err := store.Verdict(ctx, "rpt-pg-1")
	require.NoError(t, err)
	assert.False(t, v.HasAssessment)
	assert.Equal(t, domain.ReasonManualReview, v.Reason)
	assert.Zero(t, v.MatchCount)
	assert.Empty(t, v.ClosestAlertID)
}

func TestStore_CommitRespectsCancelledContext(t *testing.T) {
	store := setupTestStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.Commit(ctx, testRecord(domain.StatusRejected, domain.ReasonNotOceanHazard, true))
	require.Error(t, err)

	_, err = store.Verdict(context.Background(), "rpt-pg-1")
	assert.True(t, errors.Is(err, ErrNotFound), "a failed commit leaves no partial state")
}
