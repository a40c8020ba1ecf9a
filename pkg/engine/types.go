package engine

import (
	"time"

	"momentum-hq/engine/pkg/ledger"
	"momentum-hq/engine/pkg/rules"
	"momentum-hq/engine/pkg/store"
)

// AssignTrackRequest is a diagnostic result.
type AssignTrackRequest struct {
	DiagnosticScore  float64        `json:"diagnostic_score"`
	DaysUntilExam    int            `json:"days_until_exam"`
	TestType         rules.TestType `json:"test_type"`
	WeakModule       string         `json:"weak_module,omitempty"`
	DailyMinutes     int            `json:"daily_minutes"`
	WeekendAvailable bool           `json:"weekend_available"`
}

func (r AssignTrackRequest) trackInput() rules.TrackInput {
	return rules.TrackInput{
		DiagnosticScore:  r.DiagnosticScore,
		DaysUntilExam:    r.DaysUntilExam,
		TestType:         r.TestType,
		WeakModule:       r.WeakModule,
		DailyMinutes:     r.DailyMinutes,
		WeekendAvailable: r.WeekendAvailable,
	}
}

// EnrollRequest creates a learner from a diagnostic.
type EnrollRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	AssignTrackRequest
}

// Enrollment is the result of Enroll.
type Enrollment struct {
	Learner *store.Learner `json:"learner"`

	// Created is false when the email was already enrolled.
	Created bool   `json:"created"`
	Message string `json:"message"`
}

// SelectTaskRequest is the learner context for choosing the next task.
type SelectTaskRequest struct {
	RecentAccuracy      float64  `json:"recent_accuracy"`
	ConsecutiveFailures int      `json:"consecutive_failures"`
	WeakModules         []string `json:"weak_modules,omitempty"`
	RecentTasks         []string `json:"recent_tasks,omitempty"`

	// CandidateTaskIDs restricts the choice. When empty the first
	// CandidateLimit tasks of the learner's track are used.
	CandidateTaskIDs []string `json:"candidate_task_ids,omitempty"`
	CandidateLimit   int      `json:"candidate_limit,omitempty"`
}

// DefaultCandidateLimit bounds the candidates offered when the request names
// none.
const DefaultCandidateLimit = 20

// TaskSelection is the chosen task.
type TaskSelection struct {
	Tier           ledger.Tier `json:"tier"`
	TaskID         string      `json:"task_id"`
	CostUSD        float64     `json:"cost_usd"`
	Reasoning      string      `json:"reasoning"`
	FallbackReason string      `json:"fallback_reason,omitempty"`
}

// WeeklyReportRequest is one learner's week of activity.
type WeeklyReportRequest struct {
	WeekNumber        int                `json:"week_number"`
	TasksCompleted    int                `json:"tasks_completed"`
	PracticeMinutes   int                `json:"practice_minutes"`
	LVS               float64            `json:"lvs"`
	CompletionRate    float64            `json:"completion_rate"`
	ModulePerformance map[string]float64 `json:"module_performance,omitempty"`
}

// WeeklyReport is a generated or template report. Tier 0 is the template.
type WeeklyReport struct {
	Tier           ledger.Tier `json:"tier"`
	Report         string      `json:"report"`
	CostUSD        float64     `json:"cost_usd"`
	FallbackReason string      `json:"fallback_reason,omitempty"`
}

// StreakUpdate is the result of recording a day's activity.
type StreakUpdate struct {
	CurrentStreak int `json:"current_streak"`
	LongestStreak int `json:"longest_streak"`

	// Milestone is the milestone crossed by this update, or 0.
	Milestone int    `json:"milestone,omitempty"`
	Message   string `json:"message"`
}

// StreakView is a learner's streak as of now.
type StreakView struct {
	CurrentStreak    int                `json:"current_streak"`
	LongestStreak    int                `json:"longest_streak"`
	LastActivityDate *time.Time         `json:"last_activity_date,omitempty"`
	Status           rules.StreakStatus `json:"status"`

	// DaysUntilRescue is 1 while the streak is at risk and 0 otherwise.
	DaysUntilRescue int `json:"days_until_rescue"`
}
