package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/hazard-report-validator/internal/domain"
	"github.com/couchcryptid/hazard-report-validator/internal/observability"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
)

// ErrCommit marks a verdict that could not be persisted. The report keeps its
// previous stored state and the run may be retried.
var ErrCommit = errors.New("commit verdict")

// Options tunes a Validator. Zero values select the defaults, and a nil
// RejectConfidence selects domain.DefaultRejectConfidence.
type Options struct {
	ClassifierTimeout time.Duration
	AlertFeedTimeout  time.Duration
	CommitTimeout     time.Duration
	NotifyTimeout     time.Duration

	MatchWindow      time.Duration
	DefaultRadiusKm  float64
	RejectConfidence *float64
	LockShards       int

	Clock clockwork.Clock
}

func (o Options) withDefaults() Options {
	if o.ClassifierTimeout <= 0 {
		o.ClassifierTimeout = 10 * time.Second
	}
	if o.AlertFeedTimeout <= 0 {
		o.AlertFeedTimeout = 10 * time.Second
	}
	if o.CommitTimeout <= 0 {
		o.CommitTimeout = 10 * time.Second
	}
	if o.NotifyTimeout <= 0 {
		o.NotifyTimeout = 5 * time.Second
	}
	if o.RejectConfidence == nil {
		threshold := domain.DefaultRejectConfidence
		o.RejectConfidence = &threshold
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	return o
}

// Validator drives a report from submission to a committed verdict.
type Validator struct {
	classifier domain.Classifier
	alerts     domain.AlertFeed
	store      domain.Store
	notifier   domain.Notifier

	matcher domain.Matcher
	policy  domain.DecisionPolicy
	locks   *keyedLocks
	opts    Options

	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewValidator wires the collaborators into a Validator. A nil classifier
// runs every report without image evidence.
func NewValidator(
	classifier domain.Classifier,
	alerts domain.AlertFeed,
	store domain.Store,
	notifier domain.Notifier,
	logger *slog.Logger,
	metrics *observability.Metrics,
	opts Options,
) *Validator {
	opts = opts.withDefaults()
	return &Validator{
		classifier: classifier,
		alerts:     alerts,
		store:      store,
		notifier:   notifier,
		matcher:    domain.NewMatcher(opts.MatchWindow, opts.DefaultRadiusKm),
		policy:     domain.NewDecisionPolicy(*opts.RejectConfidence),
		locks:      newKeyedLocks(opts.LockShards),
		opts:       opts,
		logger:     logger,
		metrics:    metrics,
	}
}

// Process validates one report and commits its verdict. Evidence failures
// degrade the run instead of failing it; the only error returned wraps
// ErrCommit. The run completes even if ctx is cancelled mid-way, since the
// stored verdict must not depend on the caller still waiting.
func (v *Validator) Process(ctx context.Context, report domain.HazardReport) (domain.Verdict, error) {
	ctx = context.WithoutCancel(ctx)
	start := v.opts.Clock.Now()
	logger := v.logger.With("report_id", report.ID, "hazard_type", string(report.HazardType))
	state := newValidationState(logger)

	assessment, alerts := v.gather(ctx, report, logger)
	state.advance(StageAssessmentAttempted)

	matches := v.matcher.Correlate(report, alerts)
	v.metrics.AlertMatches.Observe(float64(len(matches)))
	state.advance(StageCorrelationComputed)

	verdict, rule := v.policy.Explain(assessment, matches)
	state.advance(StageDecided)

	rec := domain.VerdictRecord{
		Report:     report,
		Verdict:    verdict,
		Assessment: assessment,
		Matches:    matches,
		DecidedAt:  v.opts.Clock.Now().UTC(),
	}

	unlock := v.locks.lock(report.ID)
	defer unlock()

	res, err := v.commit(ctx, rec)
	if err != nil {
		v.metrics.CommitErrors.Inc()
		logger.Error("verdict commit failed", "status", string(verdict.Status), "error", err)
		return domain.Verdict{}, fmt.Errorf("%w %s: %w", ErrCommit, report.ID, err)
	}

	v.metrics.ReportsProcessed.Inc()
	v.metrics.Verdicts.WithLabelValues(string(verdict.Status)).Inc()
	v.metrics.ProcessDuration.Observe(v.opts.Clock.Since(start).Seconds())
	logger.Info("report decided",
		"status", string(verdict.Status),
		"previous_status", string(res.Previous),
		"reason", verdict.Reason,
		"rule", rule,
		"matches", len(matches),
		"assessment_available", assessment != nil,
	)

	if verdict.Status.Terminal() && !res.Announced {
		v.announce(ctx, report.ID, verdict, logger)
	}

	return verdict, nil
}

// gather fetches both evidence sources concurrently. Neither failure is
// propagated: a failed classifier yields nil, a failed feed yields no alerts.
func (v *Validator) gather(ctx context.Context, report domain.HazardReport, logger *slog.Logger) (*domain.ImageAssessment, []domain.OfficialAlert) {
	var (
		assessment *domain.ImageAssessment
		alerts     []domain.OfficialAlert
		g          errgroup.Group
	)

	g.Go(func() error {
		assessment = v.assess(ctx, report, logger)
		return nil
	})
	g.Go(func() error {
		alerts = v.activeAlerts(ctx, logger)
		return nil
	})
	_ = g.Wait()

	return assessment, alerts
}

func (v *Validator) assess(ctx context.Context, report domain.HazardReport, logger *slog.Logger) *domain.ImageAssessment {
	if v.classifier == nil {
		logger.Debug("image assessment skipped", "error", domain.ErrClassifierDisabled)
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, v.opts.ClassifierTimeout)
	defer cancel()

	a, err := v.classifier.Assess(ctx, report.ImageRef)
	if err != nil {
		v.metrics.EvidenceUnavailable.WithLabelValues("classifier").Inc()
		logger.Warn("image assessment unavailable, continuing without it",
			"image_ref", report.ImageRef,
			"error", err,
		)
		return nil
	}

	a = domain.NormalizeAssessment(a)
	if a.AnalyzedAt.IsZero() {
		a.AnalyzedAt = v.opts.Clock.Now().UTC()
	}
	return &a
}

func (v *Validator) activeAlerts(ctx context.Context, logger *slog.Logger) []domain.OfficialAlert {
	ctx, cancel := context.WithTimeout(ctx, v.opts.AlertFeedTimeout)
	defer cancel()

	alerts, err := v.alerts.ActiveAlerts(ctx)
	if err != nil {
		v.metrics.EvidenceUnavailable.WithLabelValues("alert_feed").Inc()
		logger.Warn("official alerts unavailable, correlating against none", "error", err)
		return nil
	}
	return alerts
}

// commit writes the run's record. Callers hold the report's lock across
// commit and announce so two runs for the same report never race on its
// stored verdict or announce it twice.
func (v *Validator) commit(ctx context.Context, rec domain.VerdictRecord) (domain.CommitResult, error) {
	ctx, cancel := context.WithTimeout(ctx, v.opts.CommitTimeout)
	defer cancel()

	return v.store.Commit(ctx, rec)
}

// announce delivers a terminal verdict and records the delivery. A failed
// delivery leaves the status unannounced so the next run for the report
// retries it.
func (v *Validator) announce(ctx context.Context, reportID string, verdict domain.Verdict, logger *slog.Logger) {
	if v.notifier == nil {
		return
	}

	notifyCtx, cancel := context.WithTimeout(ctx, v.opts.NotifyTimeout)
	err := v.notifier.Notify(notifyCtx, reportID, verdict)
	cancel()
	if err != nil {
		v.metrics.NotifyErrors.Inc()
		logger.Warn("verdict notification failed", "status", string(verdict.Status), "error", err)
		return
	}

	markCtx, cancel := context.WithTimeout(ctx, v.opts.CommitTimeout)
	defer cancel()
	if err := v.store.MarkAnnounced(markCtx, reportID, verdict.Status); err != nil {
		logger.Warn("recording notification failed, it may be sent again", "status", string(verdict.Status), "error", err)
	}
}
