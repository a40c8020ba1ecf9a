package rules

import (
	"errors"
	"strings"
	"time"
)

// ErrValidation is returned for malformed decision input.
var ErrValidation = errors.New("invalid decision input")

// TrackID names a study plan.
type TrackID string

// Study tracks.
const (
	TrackAcademicFastTrack    TrackID = "academic_fast_track"
	TrackGeneralFastTrack     TrackID = "general_fast_track"
	TrackSprint               TrackID = "sprint"
	TrackFoundation           TrackID = "foundation"
	TrackWritingFocus         TrackID = "writing_focus"
	TrackSpeakingFocus        TrackID = "speaking_focus"
	TrackWeekendWarrior       TrackID = "weekend_warrior"
	TrackIntensive            TrackID = "intensive"
	TrackProfessionalMarathon TrackID = "professional_marathon"
	TrackBalanced             TrackID = "balanced"
)

// DisplayName returns the track name for learner-facing text, e.g.
// "Academic Fast Track".
func (t TrackID) DisplayName() string {
	words := strings.Split(string(t), "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

// TestType is the IELTS variant a learner is sitting.
type TestType string

const (
	TestAcademic TestType = "academic"
	TestGeneral  TestType = "general"
)

// Skill modules.
const (
	ModuleReading   = "reading"
	ModuleWriting   = "writing"
	ModuleSpeaking  = "speaking"
	ModuleListening = "listening"
)

// ValidModule reports whether m is one of the four skill modules.
func ValidModule(m string) bool {
	switch m {
	case ModuleReading, ModuleWriting, ModuleSpeaking, ModuleListening:
		return true
	}
	return false
}

// TrackInput is the input to AssignTrack.
type TrackInput struct {
	// DiagnosticScore is the IELTS band from the diagnostic, 0 to 9.
	DiagnosticScore float64

	DaysUntilExam int
	TestType      TestType

	// WeakModule is optional. Only writing and speaking change the track.
	WeakModule string

	DailyMinutes     int
	WeekendAvailable bool
}

// LearnerState is the per-decision snapshot a caller supplies. It is not
// persisted by the engine.
type LearnerState struct {
	DiagnosticScore          float64
	DaysUntilExam            int
	TestType                 TestType
	WeakModules              []string
	DailyAvailabilityMinutes int
	WeekendAvailable         bool

	// RecentAccuracy is a percentage, 0 to 100.
	RecentAccuracy      float64
	ConsecutiveFailures int
}

// StreakRecord is a learner's daily activity streak.
type StreakRecord struct {
	UserID        string
	CurrentStreak int
	LongestStreak int

	// LastActivityDate is a UTC midnight, or nil before the first activity.
	LastActivityDate *time.Time

	// Version increments on every write and guards compare-and-swap updates.
	Version int64
}

// InterventionEvent records a content swap after a failing score. It is
// immutable once created.
type InterventionEvent struct {
	ID     string
	UserID string
	Module string

	// TriggerReason is the machine-readable weakness, e.g. "low_score_45".
	TriggerReason string

	// Reason is the human-readable explanation.
	Reason string

	OriginalTaskRef     string
	InterventionTaskRef string
	InterventionTitle   string

	// InterventionType and Recommendation annotate the swap when a diagnosis
	// was produced.
	InterventionType string
	Recommendation   string

	CreatedAt time.Time
}

// TaskRef is a candidate practice task.
type TaskRef struct {
	ID      string
	TrackID TrackID
	Title   string
	Type    string
	Module  string
}
