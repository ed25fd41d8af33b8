package domain

import "fmt"

// DefaultRejectConfidence is the confidence a negative image assessment must
// exceed before it rejects a report on its own.
const DefaultRejectConfidence = 0.5

const (
	ReasonNotOceanHazard   = "Image not related to ocean hazard"
	ReasonAwaitingOfficial = "AI validated hazard, awaiting official correlation"
	ReasonManualReview     = "Pending manual review"
)

// imageSignal is the classifier evidence reduced to the cases the decision
// table distinguishes.
type imageSignal int

const (
	imageUnknown imageSignal = iota
	imageConfidentNegative
	imageHazard
	imageAmbiguous
)

// evidence is everything a rule may look at.
type evidence struct {
	image   imageSignal
	matches []CorrelationMatch
}

type rule struct {
	name    string
	applies func(evidence) bool
	verdict func(evidence) Verdict
}

// rules is evaluated top to bottom; the first rule that applies decides.
var rules = []rule{
	{
		name:    "confident_negative_image",
		applies: func(e evidence) bool { return e.image == imageConfidentNegative },
		verdict: func(evidence) Verdict {
			return Verdict{Status: StatusRejected, Reason: ReasonNotOceanHazard}
		},
	},
	{
		name:    "hazard_image_with_official_alert",
		applies: func(e evidence) bool { return e.image == imageHazard && len(e.matches) > 0 },
		verdict: func(e evidence) Verdict {
			return Verdict{Status: StatusVerified, Reason: verifiedReason(e.matches)}
		},
	},
	{
		name:    "hazard_image_without_official_alert",
		applies: func(e evidence) bool { return e.image == imageHazard },
		verdict: func(evidence) Verdict {
			return Verdict{Status: StatusPending, Reason: ReasonAwaitingOfficial}
		},
	},
	{
		name:    "fallback",
		applies: func(evidence) bool { return true },
		verdict: func(evidence) Verdict {
			return Verdict{Status: StatusPending, Reason: ReasonManualReview}
		},
	},
}

// DecisionPolicy fuses an image assessment and a correlation result into a
// verdict. It holds no state besides its threshold.
type DecisionPolicy struct {
	rejectConfidence float64
}

// NewDecisionPolicy creates a policy with the given rejection threshold.
// Thresholds outside [0,1] select DefaultRejectConfidence.
func NewDecisionPolicy(rejectConfidence float64) DecisionPolicy {
	if rejectConfidence < 0 || rejectConfidence > 1 {
		rejectConfidence = DefaultRejectConfidence
	}
	return DecisionPolicy{rejectConfidence: rejectConfidence}
}

// Decide runs the default policy.
func Decide(assessment *ImageAssessment, matches []CorrelationMatch) Verdict {
	return NewDecisionPolicy(DefaultRejectConfidence).Decide(assessment, matches)
}

// Decide returns the verdict for one run. A nil assessment means the
// classifier was unavailable and is never treated as negative.
func (p DecisionPolicy) Decide(assessment *ImageAssessment, matches []CorrelationMatch) Verdict {
	v, _ := p.decide(assessment, matches)
	return v
}

// Explain returns the verdict along with the name of the rule that produced it.
func (p DecisionPolicy) Explain(assessment *ImageAssessment, matches []CorrelationMatch) (Verdict, string) {
	return p.decide(assessment, matches)
}

func (p DecisionPolicy) decide(assessment *ImageAssessment, matches []CorrelationMatch) (Verdict, string) {
	e := evidence{image: p.classify(assessment), matches: matches}
	for _, r := range rules {
		if r.applies(e) {
			return r.verdict(e), r.name
		}
	}
	// unreachable: the fallback rule always applies
	return Verdict{Status: StatusPending, Reason: ReasonManualReview}, "fallback"
}

func (p DecisionPolicy) classify(a *ImageAssessment) imageSignal {
	switch {
	case a == nil:
		return imageUnknown
	case !a.OceanRelated && a.Confidence > p.rejectConfidence:
		return imageConfidentNegative
	case a.OceanRelated && a.HazardDetected:
		return imageHazard
	default:
		return imageAmbiguous
	}
}

func verifiedReason(matches []CorrelationMatch) string {
	closest := matches[0]
	return fmt.Sprintf("Matches %d official alert(s); closest: %s (%.2f km away)",
		len(matches), closest.Alert.DisplayName(), closest.RoundedDistanceKm())
}
