package escalation

import (
	"fmt"

	"momentum-hq/engine/pkg/ledger"
	"momentum-hq/engine/pkg/rules"
)

// Operation names the decision being escalated. It is used as a metric label
// and in usage records.
type Operation string

const (
	OpSelectTask            Operation = "select_task"
	OpWeeklyReport          Operation = "weekly_report"
	OpInterventionDiagnosis Operation = "intervention_diagnosis"
)

// Kind says whether an Outcome carries a model result.
type Kind int

const (
	// KindOK means the value came from the model tier that was asked.
	KindOK Kind = iota

	// KindFallback means the value is the deterministic answer.
	KindFallback
)

// String returns "ok" or "fallback".
func (k Kind) String() string {
	switch k {
	case KindOK:
		return "ok"
	case KindFallback:
		return "fallback"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// FallbackReason explains why the deterministic answer was returned.
type FallbackReason string

const (
	// ReasonNone is carried by results that did not fall back, and by tier-1
	// answers that never needed a model.
	ReasonNone FallbackReason = ""

	ReasonBudgetDenied      FallbackReason = "budget_denied"
	ReasonTier3Limit        FallbackReason = "tier3_limit"
	ReasonRateLimited       FallbackReason = "rate_limited"
	ReasonProviderError     FallbackReason = "provider_error"
	ReasonProviderTimeout   FallbackReason = "provider_timeout"
	ReasonInvalidResponse   FallbackReason = "invalid_response"
	ReasonDisabled          FallbackReason = "disabled"
	ReasonLedgerUnavailable FallbackReason = "ledger_unavailable"
)

// Outcome is the result of one routed decision.
type Outcome[T any] struct {
	Kind  Kind
	Tier  ledger.Tier
	Value T

	// CostUSD is what the attempt cost, including a model reply that was
	// discarded because it failed to parse.
	CostUSD float64

	// Reason is set when Kind is KindFallback.
	Reason FallbackReason
}

// OK reports whether the value came from a model.
func (o Outcome[T]) OK() bool {
	return o.Kind == KindOK
}

// SelectTaskInput is the per-request context for task selection.
type SelectTaskInput struct {
	// RecentAccuracy is a percentage, 0 to 100.
	RecentAccuracy      float64
	ConsecutiveFailures int
	WeakModules         []string

	// RecentTasks are short descriptions of recent attempts, newest first,
	// shown to the model.
	RecentTasks []string

	// Candidates are the tasks the learner may do next, in catalogue order.
	Candidates []rules.TaskRef
}

// TaskChoice is the selected task.
type TaskChoice struct {
	TaskID    string
	Reasoning string
}

// ReportInput is one learner's week of activity.
type ReportInput struct {
	WeekNumber      int
	TasksCompleted  int
	PracticeMinutes int

	// LVS is the learning velocity score.
	LVS float64

	// CompletionRate is the module assignment completion rate, a percentage.
	CompletionRate float64

	// ModulePerformance maps a module to its accuracy percentage.
	ModulePerformance map[string]float64
}

// Report is a weekly progress report in Markdown.
type Report struct {
	Markdown string
}

// Intervention types a diagnosis may recommend.
const (
	InterventionStrategyVideo      = "strategy_video"
	InterventionTargetedPractice   = "targeted_practice"
	InterventionSimplifiedExercise = "simplified_exercise"
)

// DiagnosisInput describes a struggling learner on one module.
type DiagnosisInput struct {
	RecentTasks         []string
	Accuracy            float64
	Module              string
	ConsecutiveFailures int
}

// Diagnosis explains a weakness and recommends an intervention.
type Diagnosis struct {
	Diagnosis        string `json:"diagnosis"`
	InterventionType string `json:"intervention_type"`
	Recommendation   string `json:"specific_recommendation"`
}
