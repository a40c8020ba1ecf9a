package rules

// Default thresholds.
const (
	DefaultFailingScore       = 60
	DefaultEscalationAccuracy = 60.0
	DefaultEscalationFailures = 2
)

// DefaultMilestones are the streak lengths that earn a milestone.
var DefaultMilestones = []int{7, 14, 30, 60, 90}

// Thresholds parameterizes the classifier.
type Thresholds struct {
	// FailingScore is the completion score (0-100) below which an
	// intervention is triggered.
	FailingScore int

	// EscalationAccuracy is the recent accuracy below which a learner is
	// considered struggling.
	EscalationAccuracy float64

	// EscalationFailures is the consecutive failure count at which a learner
	// is considered struggling.
	EscalationFailures int

	// Milestones must be positive and strictly increasing.
	Milestones []int
}

// DefaultThresholds returns the standard thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		FailingScore:       DefaultFailingScore,
		EscalationAccuracy: DefaultEscalationAccuracy,
		EscalationFailures: DefaultEscalationFailures,
		Milestones:         append([]int(nil), DefaultMilestones...),
	}
}

// NeedsEscalation reports whether a learner is struggling enough to justify
// a model call.
func (t Thresholds) NeedsEscalation(recentAccuracy float64, consecutiveFailures int) bool {
	return recentAccuracy < t.EscalationAccuracy || consecutiveFailures >= t.EscalationFailures
}

// CheckInterventionTrigger reports whether a completion score is failing.
func (t Thresholds) CheckInterventionTrigger(score int) bool {
	return score < t.FailingScore
}

// NeedsEscalation applies the default thresholds.
func NeedsEscalation(recentAccuracy float64, consecutiveFailures int) bool {
	return DefaultThresholds().NeedsEscalation(recentAccuracy, consecutiveFailures)
}

// CheckInterventionTrigger applies the default failing score.
func CheckInterventionTrigger(score int) bool {
	return score < DefaultFailingScore
}
