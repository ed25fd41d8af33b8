package domain

import (
	"context"
	"errors"
)

// ErrClassifierDisabled is returned by callers that run without a classifier.
var ErrClassifierDisabled = errors.New("image classifier disabled")

// Classifier assesses the photo attached to a report.
type Classifier interface {
	// Assess returns the classifier's reading of the referenced image. It
	// must honour ctx cancellation.
	Assess(ctx context.Context, imageRef string) (ImageAssessment, error)
}

// AlertFeed supplies the official alerts that are currently active.
type AlertFeed interface {
	ActiveAlerts(ctx context.Context) ([]OfficialAlert, error)
}

// Notifier announces Verified and Rejected verdicts. Delivery is best effort.
type Notifier interface {
	Notify(ctx context.Context, reportID string, verdict Verdict) error
}

// CommitResult describes the stored state a commit replaced.
type CommitResult struct {
	// Previous is the status the report held before the commit. A report
	// seen for the first time was pending.
	Previous Status
	// Announced reports whether the committed status was already delivered
	// to the notifier by an earlier run. A status change clears it.
	Announced bool
}

// Store persists verdicts.
type Store interface {
	// Commit atomically writes the verdict, reason, and assessment audit of
	// one run. On error nothing is written.
	Commit(ctx context.Context, rec VerdictRecord) (CommitResult, error)
	// MarkAnnounced records that status was delivered for the report. It
	// does nothing if the report has since moved to another status.
	MarkAnnounced(ctx context.Context, reportID string, status Status) error
}
