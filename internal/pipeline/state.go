package pipeline

import (
	"fmt"
	"log/slog"
)

// Stage is a step of one validation run.
type Stage int

const (
	StageSubmitted Stage = iota
	StageAssessmentAttempted
	StageCorrelationComputed
	StageDecided
)

func (s Stage) String() string {
	switch s {
	case StageSubmitted:
		return "submitted"
	case StageAssessmentAttempted:
		return "assessment_attempted"
	case StageCorrelationComputed:
		return "correlation_computed"
	case StageDecided:
		return "decided"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// validationState tracks one report through a single run. It is owned by the
// Process call that created it and never shared.
type validationState struct {
	stage  Stage
	logger *slog.Logger
}

func newValidationState(logger *slog.Logger) *validationState {
	return &validationState{stage: StageSubmitted, logger: logger}
}

// advance moves to the next stage. Stages are strictly sequential; skipping
// or repeating one is a programming error.
func (s *validationState) advance(next Stage) {
	if next != s.stage+1 {
		panic(fmt.Sprintf("pipeline: illegal stage transition %s -> %s", s.stage, next))
	}
	s.stage = next
	s.logger.Debug("stage reached", "stage", next.String())
}
