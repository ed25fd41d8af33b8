package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/couchcryptid/hazard-report-validator/internal/domain"
)

// ErrNotFound is returned when a report has never been committed.
var ErrNotFound = errors.New("report not found")

const schema = `
CREATE TABLE IF NOT EXISTS hazard_reports (
	id               TEXT PRIMARY KEY,
	hazard_type      TEXT NOT NULL,
	severity         TEXT NOT NULL DEFAULT '',
	latitude         DOUBLE PRECISION NOT NULL,
	longitude        DOUBLE PRECISION NOT NULL,
	submitted_at     TIMESTAMPTZ NOT NULL,
	image_ref        TEXT NOT NULL DEFAULT '',
	description      TEXT NOT NULL DEFAULT '',
	status           TEXT NOT NULL DEFAULT 'pending',
	status_reason    TEXT NOT NULL DEFAULT '',
	announced_status TEXT NOT NULL DEFAULT '',
	match_count      INTEGER NOT NULL DEFAULT 0,
	closest_alert_id TEXT,
	decided_at       TIMESTAMPTZ,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

ALTER TABLE hazard_reports ADD COLUMN IF NOT EXISTS announced_status TEXT NOT NULL DEFAULT '';

CREATE INDEX IF NOT EXISTS hazard_reports_status_idx ON hazard_reports (status);

CREATE TABLE IF NOT EXISTS image_assessments (
	report_id            TEXT PRIMARY KEY REFERENCES hazard_reports (id) ON DELETE CASCADE,
	ocean_related        BOOLEAN NOT NULL,
	hazard_detected      BOOLEAN NOT NULL,
	detected_hazard_type TEXT NOT NULL DEFAULT '',
	confidence           DOUBLE PRECISION NOT NULL,
	scene_description    TEXT NOT NULL DEFAULT '',
	detected_elements    JSONB NOT NULL DEFAULT '[]',
	analyzed_at          TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS report_alert_matches (
	report_id       TEXT NOT NULL REFERENCES hazard_reports (id) ON DELETE CASCADE,
	rank            INTEGER NOT NULL,
	alert_id        TEXT NOT NULL,
	alert_title     TEXT NOT NULL DEFAULT '',
	distance_km     DOUBLE PRECISION NOT NULL,
	time_diff_hours DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (report_id, rank)
);
`

// Store implements domain.Store on PostgreSQL. Each Commit writes the
// verdict, its assessment audit and its matches in one transaction.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to PostgreSQL and verifies the connection.
func NewStore(ctx context.Context, connString string) (*Store, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &Store{pool: pool}, nil
}

// EnsureSchema creates the tables the store needs if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// CheckReadiness reports whether the database is reachable.
func (s *Store) CheckReadiness(ctx context.Context) error {
	return s.Ping(ctx)
}

// Close closes the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Commit stores the verdict for rec.Report and reports the state it replaced.
// A report seen for the first time was pending. Changing the status clears its
// announcement. Nothing is written unless the whole record is.
func (s *Store) Commit(ctx context.Context, rec domain.VerdictRecord) (domain.CommitResult, error) {
	var res domain.CommitResult
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		res, err = commitTx(ctx, tx, rec)
		return err
	})
	if err != nil {
		return domain.CommitResult{}, err
	}
	return res, nil
}

func commitTx(ctx context.Context, tx pgx.Tx, rec domain.VerdictRecord) (domain.CommitResult, error) {
	r := rec.Report

	_, err := tx.Exec(ctx, `
		INSERT INTO hazard_reports (id, hazard_type, severity, latitude, longitude, submitted_at, image_ref, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`,
		r.ID, string(r.HazardType), string(r.Severity), r.Geo.Lat, r.Geo.Lon, r.SubmittedAt, r.ImageRef, r.Description,
	)
	if err != nil {
		return domain.CommitResult{}, fmt.Errorf("insert report: %w", err)
	}

	var previous, announced string
	err = tx.QueryRow(ctx, `SELECT status, announced_status FROM hazard_reports WHERE id = $1 FOR UPDATE`, r.ID).
		Scan(&previous, &announced)
	if err != nil {
		return domain.CommitResult{}, fmt.Errorf("lock report: %w", err)
	}

	var closest *string
	if len(rec.Matches) > 0 {
		id := rec.Matches[0].AlertID()
		closest = &id
	}

	_, err = tx.Exec(ctx, `
		UPDATE hazard_reports
		SET status = $2, status_reason = $3, match_count = $4, closest_alert_id = $5, decided_at = $6,
			announced_status = CASE WHEN status = $2 THEN announced_status ELSE '' END,
			updated_at = now()
		WHERE id = $1`,
		r.ID, string(rec.Verdict.Status), rec.Verdict.Reason, len(rec.Matches), closest, rec.DecidedAt,
	)
	if err != nil {
		return domain.CommitResult{}, fmt.Errorf("update verdict: %w", err)
	}

	if err := writeAssessment(ctx, tx, r.ID, rec.Assessment); err != nil {
		return domain.CommitResult{}, err
	}
	if err := writeMatches(ctx, tx, r.ID, rec.Matches); err != nil {
		return domain.CommitResult{}, err
	}

	status := string(rec.Verdict.Status)
	return domain.CommitResult{
		Previous:  domain.Status(previous),
		Announced: previous == status && announced == status,
	}, nil
}

// MarkAnnounced records that status was delivered for the report. A report
// that has moved on to another status is left untouched.
func (s *Store) MarkAnnounced(ctx context.Context, reportID string, status domain.Status) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE hazard_reports SET announced_status = $2, updated_at = now()
		WHERE id = $1 AND status = $2`,
		reportID, string(status),
	)
	if err != nil {
		return fmt.Errorf("mark announced: %w", err)
	}
	return nil
}

// writeAssessment replaces the stored assessment. A run without one clears
// the previous audit row so the stored evidence always matches the verdict.
func writeAssessment(ctx context.Context, tx pgx.Tx, reportID string, a *domain.ImageAssessment) error {
	if a == nil {
		if _, err := tx.Exec(ctx, `DELETE FROM image_assessments WHERE report_id = $1`, reportID); err != nil {
			return fmt.Errorf("clear assessment: %w", err)
		}
		return nil
	}

	elements := a.DetectedElements
	if elements == nil {
		elements = []string{}
	}
	elementsJSON, err := json.Marshal(elements)
	if err != nil {
		return fmt.Errorf("encode detected elements: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO image_assessments (report_id, ocean_related, hazard_detected, detected_hazard_type, confidence, scene_description, detected_elements, analyzed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (report_id) DO UPDATE SET
			ocean_related = EXCLUDED.ocean_related,
			hazard_detected = EXCLUDED.hazard_detected,
			detected_hazard_type = EXCLUDED.detected_hazard_type,
			confidence = EXCLUDED.confidence,
			scene_description = EXCLUDED.scene_description,
			detected_elements = EXCLUDED.detected_elements,
			analyzed_at = EXCLUDED.analyzed_at`,
		reportID, a.OceanRelated, a.HazardDetected, string(a.DetectedHazardType), a.Confidence, a.SceneDescription, string(elementsJSON), a.AnalyzedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert assessment: %w", err)
	}
	return nil
}

func writeMatches(ctx context.Context, tx pgx.Tx, reportID string, matches []domain.CorrelationMatch) error {
	if _, err := tx.Exec(ctx, `DELETE FROM report_alert_matches WHERE report_id = $1`, reportID); err != nil {
		return fmt.Errorf("clear matches: %w", err)
	}
	if len(matches) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for i, m := range matches {
		batch.Queue(`
			INSERT INTO report_alert_matches (report_id, rank, alert_id, alert_title, distance_km, time_diff_hours)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			reportID, i+1, m.AlertID(), m.Title(), m.DistanceKm, m.TimeDiffHours,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert matches: %w", err)
	}
	return nil
}

// StoredVerdict is the persisted verdict of a report.
type StoredVerdict struct {
	Status         domain.Status
	Reason         string
	MatchCount     int
	ClosestAlertID string
	HasAssessment  bool
	Announced      bool
}

// Verdict reads back the stored verdict for a report.
func (s *Store) Verdict(ctx context.Context, reportID string) (StoredVerdict, error) {
	var (
		v       StoredVerdict
		status  string
		closest *string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT r.status, r.status_reason, r.match_count, r.closest_alert_id, a.report_id IS NOT NULL,
			r.announced_status = r.status
		FROM hazard_reports r
		LEFT JOIN image_assessments a ON a.report_id = r.id
		WHERE r.id = $1`, reportID,
	).Scan(&status, &v.Reason, &v.MatchCount, &closest, &v.HasAssessment, &v.Announced)
	if errors.Is(err, pgx.ErrNoRows) {
		return StoredVerdict{}, ErrNotFound
	}
	if err != nil {
		return StoredVerdict{}, fmt.Errorf("query verdict: %w", err)
	}

	v.Status = domain.Status(status)
	if closest != nil {
		v.ClosestAlertID = *closest
	}
	return v, nil
}
