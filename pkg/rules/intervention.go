package rules

import (
	"context"
	"fmt"
	"time"
)

// InterventionTaskTypes are the task types eligible for the exact search.
var InterventionTaskTypes = []string{"strategy", "remediation", "practice"}

// TaskQuery describes a task search. TitlePatterns use SQL LIKE syntax and
// match case-insensitively; a task matches when any pattern matches.
type TaskQuery struct {
	TrackID       TrackID
	Types         []string
	TitlePatterns []string
	Limit         int
}

// TaskFinder searches the task catalogue.
type TaskFinder interface {
	FindTasks(ctx context.Context, q TaskQuery) ([]TaskRef, error)
}

// FindIntervention looks up a replacement task for a weak module on a
// track. It tries an exact search for strategy, remediation or practice
// tasks titled for the module, then falls back to any task whose title
// mentions the module. It returns nil with no error when nothing matches.
func FindIntervention(ctx context.Context, finder TaskFinder, module string, trackID TrackID) (*TaskRef, error) {
	if !ValidModule(module) {
		return nil, fmt.Errorf("%w: unknown module %q", ErrValidation, module)
	}

	exact := TaskQuery{
		TrackID: trackID,
		Types:   InterventionTaskTypes,
		TitlePatterns: []string{
			"%" + module + "%strategy%",
			"%" + module + "%intervention%",
			"%" + module + "%practice%",
		},
		Limit: 1,
	}
	tasks, err := finder.FindTasks(ctx, exact)
	if err != nil {
		return nil, fmt.Errorf("exact intervention search: %w", err)
	}
	if len(tasks) > 0 {
		return &tasks[0], nil
	}

	broad := TaskQuery{
		TrackID:       trackID,
		TitlePatterns: []string{"%" + module + "%"},
		Limit:         1,
	}
	tasks, err = finder.FindTasks(ctx, broad)
	if err != nil {
		return nil, fmt.Errorf("broad intervention search: %w", err)
	}
	if len(tasks) > 0 {
		return &tasks[0], nil
	}
	return nil, nil
}

// NewInterventionEvent builds the swap record for a failing score.
func (t Thresholds) NewInterventionEvent(id, userID, module string, score int, originalTaskRef string, task TaskRef, now time.Time) *InterventionEvent {
	return &InterventionEvent{
		ID:                  id,
		UserID:              userID,
		Module:              module,
		TriggerReason:       fmt.Sprintf("low_score_%d", score),
		Reason:              fmt.Sprintf("Score %d%% below threshold (%d%%)", score, t.FailingScore),
		OriginalTaskRef:     originalTaskRef,
		InterventionTaskRef: task.ID,
		InterventionTitle:   task.Title,
		CreatedAt:           now.UTC(),
	}
}
