package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"momentum-hq/engine/pkg/rules"
)

// MemoryStore is an in-memory Store for tests and single-process runs.
type MemoryStore struct {
	mu            sync.RWMutex
	learners      map[string]Learner
	emails        map[string]string
	streaks       map[string]rules.StreakRecord
	tasks         map[string]Task
	interventions []rules.InterventionEvent
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		learners: make(map[string]Learner),
		emails:   make(map[string]string),
		streaks:  make(map[string]rules.StreakRecord),
		tasks:    make(map[string]Task),
	}
}

// CreateLearner inserts l.
func (s *MemoryStore) CreateLearner(ctx context.Context, l *Learner) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(l.Email)
	if _, ok := s.emails[email]; ok {
		return fmt.Errorf("learner %q: %w", l.Email, ErrDuplicate)
	}
	if _, ok := s.learners[l.ID]; ok {
		return fmt.Errorf("learner %q: %w", l.ID, ErrDuplicate)
	}
	s.learners[l.ID] = *l
	s.emails[email] = l.ID
	return nil
}

// GetLearner loads a learner by ID.
func (s *MemoryStore) GetLearner(ctx context.Context, id string) (*Learner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.learners[id]
	if !ok {
		return nil, fmt.Errorf("learner %q: %w", id, ErrNotFound)
	}
	return &l, nil
}

// GetLearnerByEmail loads a learner by email, ignoring case.
func (s *MemoryStore) GetLearnerByEmail(ctx context.Context, email string) (*Learner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.emails[strings.ToLower(email)]
	if !ok {
		return nil, fmt.Errorf("learner %q: %w", email, ErrNotFound)
	}
	l := s.learners[id]
	return &l, nil
}

// CreateStreak creates a zero streak if none exists.
func (s *MemoryStore) CreateStreak(ctx context.Context, userID string) (*rules.StreakRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.streaks[userID]
	if !ok {
		rec = rules.StreakRecord{UserID: userID}
		s.streaks[userID] = rec
	}
	return copyStreak(rec), nil
}

// GetStreak loads a streak.
func (s *MemoryStore) GetStreak(ctx context.Context, userID string) (*rules.StreakRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.streaks[userID]
	if !ok {
		return nil, fmt.Errorf("streak %q: %w", userID, ErrNotFound)
	}
	return copyStreak(rec), nil
}

// PutStreak writes rec if its Version is current.
func (s *MemoryStore) PutStreak(ctx context.Context, rec rules.StreakRecord) (*rules.StreakRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.streaks[rec.UserID]
	if !ok {
		return nil, fmt.Errorf("streak %q: %w", rec.UserID, ErrNotFound)
	}
	if cur.Version != rec.Version {
		return nil, fmt.Errorf("streak %q at version %d: %w", rec.UserID, rec.Version, ErrConflict)
	}
	rec.Version++
	stored := *copyStreak(rec)
	s.streaks[rec.UserID] = stored
	return copyStreak(stored), nil
}

// ResetBrokenStreaks zeroes streaks last active before cutoff.
func (s *MemoryStore) ResetBrokenStreaks(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	day := rules.Day(cutoff)
	var n int64
	for id, rec := range s.streaks {
		if rec.CurrentStreak == 0 || rec.LastActivityDate == nil || !rec.LastActivityDate.Before(day) {
			continue
		}
		rec.CurrentStreak = 0
		rec.Version++
		s.streaks[id] = rec
		n++
	}
	return n, nil
}

// PutTasks inserts or replaces tasks.
func (s *MemoryStore) PutTasks(ctx context.Context, tasks []Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range tasks {
		s.tasks[t.ID] = t
	}
	return nil
}

// GetTask loads a task by ID.
func (s *MemoryStore) GetTask(ctx context.Context, id string) (*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %q: %w", id, ErrNotFound)
	}
	return &t, nil
}

// ListTasks returns a track's tasks in catalogue order.
func (s *MemoryStore) ListTasks(ctx context.Context, trackID rules.TrackID, limit int) ([]Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Task
	for _, t := range s.tasks {
		if t.TrackID == trackID {
			out = append(out, t)
		}
	}
	sortTasks(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// FindTasks implements rules.TaskFinder.
func (s *MemoryStore) FindTasks(ctx context.Context, q rules.TaskQuery) ([]rules.TaskRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []Task
	for _, t := range s.tasks {
		if q.TrackID != "" && t.TrackID != q.TrackID {
			continue
		}
		if len(q.Types) > 0 && !containsString(q.Types, t.Type) {
			continue
		}
		if !likeAny(t.Title, q.TitlePatterns) {
			continue
		}
		matched = append(matched, t)
	}
	sortTasks(matched)
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}

	refs := make([]rules.TaskRef, len(matched))
	for i, t := range matched {
		refs[i] = t.Ref()
	}
	return refs, nil
}

// RecordIntervention stores ev unless one exists for the same day.
func (s *MemoryStore) RecordIntervention(ctx context.Context, ev *rules.InterventionEvent) (*rules.InterventionEvent, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing := s.interventionOn(ev.UserID, ev.Module, ev.CreatedAt); existing != nil {
		return existing, false, nil
	}
	s.interventions = append(s.interventions, *ev)
	out := *ev
	return &out, true, nil
}

// InterventionOn returns the swap for user and module on day.
func (s *MemoryStore) InterventionOn(ctx context.Context, userID, module string, day time.Time) (*rules.InterventionEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.interventionOn(userID, module, day), nil
}

func (s *MemoryStore) interventionOn(userID, module string, day time.Time) *rules.InterventionEvent {
	key := dayKey(day)
	for _, ev := range s.interventions {
		if ev.UserID == userID && ev.Module == module && dayKey(ev.CreatedAt) == key {
			out := ev
			return &out
		}
	}
	return nil
}

// ListInterventions returns a user's swaps, newest first.
func (s *MemoryStore) ListInterventions(ctx context.Context, userID string, limit int) ([]rules.InterventionEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []rules.InterventionEvent
	for i := len(s.interventions) - 1; i >= 0; i-- {
		ev := s.interventions[i]
		if ev.UserID != userID {
			continue
		}
		out = append(out, ev)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}

func sortTasks(tasks []Task) {
	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].OrderInTrack != tasks[j].OrderInTrack {
			return tasks[i].OrderInTrack < tasks[j].OrderInTrack
		}
		return tasks[i].ID < tasks[j].ID
	})
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func copyStreak(rec rules.StreakRecord) *rules.StreakRecord {
	out := rec
	if rec.LastActivityDate != nil {
		d := *rec.LastActivityDate
		out.LastActivityDate = &d
	}
	return &out
}
