package store

import (
	"context"
	"errors"
	"time"

	"momentum-hq/engine/pkg/rules"
)

var (
	// ErrNotFound is returned when a learner, streak or task does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned by PutStreak when the stored version no
	// longer matches the record's Version.
	ErrConflict = errors.New("version conflict")

	// ErrDuplicate is returned by CreateLearner when the email is taken.
	ErrDuplicate = errors.New("already exists")
)

// Learner is an enrolled IELTS candidate.
type Learner struct {
	ID              string         `json:"id" yaml:"id"`
	Name            string         `json:"name" yaml:"name"`
	Email           string         `json:"email" yaml:"email"`
	TestType        rules.TestType `json:"test_type" yaml:"test_type"`
	DiagnosticScore float64        `json:"diagnostic_score" yaml:"diagnostic_score"`
	ExamDate        time.Time      `json:"exam_date" yaml:"exam_date"`
	TrackID         rules.TrackID  `json:"track_id" yaml:"track_id"`
	CreatedAt       time.Time      `json:"created_at" yaml:"created_at"`
}

// Task is a practice task in a track's catalogue.
type Task struct {
	ID               string        `json:"id" yaml:"id"`
	TrackID          rules.TrackID `json:"track_id" yaml:"track_id"`
	Title            string        `json:"title" yaml:"title"`
	Type             string        `json:"type" yaml:"type"`
	Module           string        `json:"module" yaml:"module"`
	Difficulty       int           `json:"difficulty" yaml:"difficulty"`
	EstimatedMinutes int           `json:"estimated_minutes" yaml:"estimated_minutes"`
	OrderInTrack     int           `json:"order_in_track" yaml:"order_in_track"`
	Description      string        `json:"description,omitempty" yaml:"description,omitempty"`
}

// Ref returns the classifier's view of the task.
func (t Task) Ref() rules.TaskRef {
	return rules.TaskRef{ID: t.ID, TrackID: t.TrackID, Title: t.Title, Type: t.Type, Module: t.Module}
}

// LearnerStore persists learners.
type LearnerStore interface {
	// CreateLearner inserts l. It returns ErrDuplicate if the email exists.
	CreateLearner(ctx context.Context, l *Learner) error

	GetLearner(ctx context.Context, id string) (*Learner, error)
	GetLearnerByEmail(ctx context.Context, email string) (*Learner, error)
}

// StreakStore persists streak records with compare-and-swap writes.
type StreakStore interface {
	// CreateStreak creates a zero streak for userID if none exists and
	// returns the stored record.
	CreateStreak(ctx context.Context, userID string) (*rules.StreakRecord, error)

	GetStreak(ctx context.Context, userID string) (*rules.StreakRecord, error)

	// PutStreak writes rec if the stored Version equals rec.Version and
	// returns the record with its new Version. A stale Version yields
	// ErrConflict.
	PutStreak(ctx context.Context, rec rules.StreakRecord) (*rules.StreakRecord, error)

	// ResetBrokenStreaks zeroes CurrentStreak on every record whose last
	// activity day is before cutoff. Running it again is a no-op.
	ResetBrokenStreaks(ctx context.Context, cutoff time.Time) (int64, error)
}

// TaskStore holds the task catalogue.
type TaskStore interface {
	rules.TaskFinder

	// PutTasks inserts or replaces tasks by ID.
	PutTasks(ctx context.Context, tasks []Task) error

	GetTask(ctx context.Context, id string) (*Task, error)

	// ListTasks returns a track's tasks in catalogue order.
	ListTasks(ctx context.Context, trackID rules.TrackID, limit int) ([]Task, error)
}

// InterventionStore records content swaps. At most one swap exists per
// user, module and UTC day.
type InterventionStore interface {
	// RecordIntervention stores ev unless a swap for the same user, module
	// and day already exists. It returns the stored event and whether it was
	// created by this call.
	RecordIntervention(ctx context.Context, ev *rules.InterventionEvent) (*rules.InterventionEvent, bool, error)

	// InterventionOn returns the swap for user and module on day, or nil.
	InterventionOn(ctx context.Context, userID, module string, day time.Time) (*rules.InterventionEvent, error)

	// ListInterventions returns a user's swaps, newest first.
	ListInterventions(ctx context.Context, userID string, limit int) ([]rules.InterventionEvent, error)
}

// Store is the learner data backend used by the engine.
type Store interface {
	LearnerStore
	StreakStore
	TaskStore
	InterventionStore
	Close() error
}

// dayKey is the storage form of a UTC calendar day.
func dayKey(t time.Time) string {
	return rules.Day(t).Format(time.DateOnly)
}
