package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"momentum-hq/engine/internal/sqlitedb"
	"momentum-hq/engine/pkg/rules"
)

var testNow = time.Date(2026, 10, 14, 9, 30, 0, 0, time.UTC)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(sqlitedb.Config{
		Path:        filepath.Join(t.TempDir(), "learners.db"),
		BusyTimeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func forEachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemoryStore())
	})
	t.Run("sqlite", func(t *testing.T) {
		fn(t, newTestSQLiteStore(t))
	})
}

func testLearner(id, email string) *Learner {
	return &Learner{
		ID:              id,
		Name:            "Test " + id,
		Email:           email,
		TestType:        rules.TestAcademic,
		DiagnosticScore: 5.5,
		ExamDate:        rules.Day(testNow.AddDate(0, 0, 90)),
		TrackID:         rules.TrackFoundation,
		CreatedAt:       testNow,
	}
}

var testCatalogue = []Task{
	{ID: "t3", TrackID: rules.TrackFoundation, Title: "Writing Task 2 Practice", Type: "practice", Module: rules.ModuleWriting, OrderInTrack: 3},
	{ID: "t1", TrackID: rules.TrackFoundation, Title: "Reading Skimming Basics", Type: "lesson", Module: rules.ModuleReading, OrderInTrack: 1},
	{ID: "t2", TrackID: rules.TrackFoundation, Title: "Writing Strategy: Coherence", Type: "strategy", Module: rules.ModuleWriting, OrderInTrack: 2},
	{ID: "t4", TrackID: rules.TrackFoundation, Title: "Mock Writing Exam", Type: "mock", Module: rules.ModuleWriting, OrderInTrack: 4},
	{ID: "s1", TrackID: rules.TrackSprint, Title: "Writing Strategy Sprint", Type: "strategy", Module: rules.ModuleWriting, OrderInTrack: 1},
}

func TestStore_Learners(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		if err := s.CreateLearner(ctx, testLearner("u1", "Ana@Example.com")); err != nil {
			t.Fatalf("CreateLearner failed: %v", err)
		}

		got, err := s.GetLearner(ctx, "u1")
		if err != nil {
			t.Fatalf("GetLearner failed: %v", err)
		}
		if got.Email != "Ana@Example.com" || got.TrackID != rules.TrackFoundation {
			t.Errorf("unexpected learner: %+v", got)
		}
		if !got.ExamDate.Equal(rules.Day(testNow.AddDate(0, 0, 90))) {
			t.Errorf("ExamDate = %v", got.ExamDate)
		}

		byEmail, err := s.GetLearnerByEmail(ctx, "ana@example.com")
		if err != nil {
			t.Fatalf("GetLearnerByEmail failed: %v", err)
		}
		if byEmail.ID != "u1" {
			t.Errorf("expected u1, got %s", byEmail.ID)
		}

		err = s.CreateLearner(ctx, testLearner("u2", "ANA@example.com"))
		if !errors.Is(err, ErrDuplicate) {
			t.Errorf("expected ErrDuplicate, got %v", err)
		}

		if _, err := s.GetLearner(ctx, "missing"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		if _, err := s.GetLearnerByEmail(ctx, "nobody@example.com"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestStore_StreakCompareAndSwap(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		if _, err := s.GetStreak(ctx, "u1"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound before create, got %v", err)
		}

		rec, err := s.CreateStreak(ctx, "u1")
		if err != nil {
			t.Fatalf("CreateStreak failed: %v", err)
		}
		if rec.CurrentStreak != 0 || rec.LastActivityDate != nil || rec.Version != 0 {
			t.Fatalf("expected zero streak, got %+v", rec)
		}

		next, _ := rules.TransitionStreak(*rec, testNow)
		saved, err := s.PutStreak(ctx, next)
		if err != nil {
			t.Fatalf("PutStreak failed: %v", err)
		}
		if saved.Version != 1 || saved.CurrentStreak != 1 {
			t.Errorf("unexpected saved record: %+v", saved)
		}

		// Writing from the stale snapshot must fail.
		if _, err := s.PutStreak(ctx, next); !errors.Is(err, ErrConflict) {
			t.Errorf("expected ErrConflict, got %v", err)
		}

		again, err := s.CreateStreak(ctx, "u1")
		if err != nil {
			t.Fatalf("second CreateStreak failed: %v", err)
		}
		if again.Version != 1 || again.CurrentStreak != 1 {
			t.Errorf("CreateStreak overwrote existing record: %+v", again)
		}
		if again.LastActivityDate == nil || !again.LastActivityDate.Equal(rules.Day(testNow)) {
			t.Errorf("LastActivityDate = %v", again.LastActivityDate)
		}

		if _, err := s.PutStreak(ctx, rules.StreakRecord{UserID: "ghost"}); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound for missing streak, got %v", err)
		}
	})
}

func TestStore_ConcurrentStreakWritesSerialize(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		base, err := s.CreateStreak(ctx, "u1")
		if err != nil {
			t.Fatalf("CreateStreak failed: %v", err)
		}
		next, _ := rules.TransitionStreak(*base, testNow)

		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			wins      int
			conflicts int
		)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.PutStreak(ctx, next)
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					wins++
				case errors.Is(err, ErrConflict):
					conflicts++
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()

		if wins != 1 || conflicts != 7 {
			t.Errorf("expected 1 win and 7 conflicts, got %d and %d", wins, conflicts)
		}
	})
}

func TestStore_ResetBrokenStreaks(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		put := func(userID string, current int, lastActive time.Time) {
			t.Helper()
			rec, err := s.CreateStreak(ctx, userID)
			if err != nil {
				t.Fatalf("CreateStreak failed: %v", err)
			}
			day := rules.Day(lastActive)
			rec.CurrentStreak = current
			rec.LongestStreak = current + 2
			rec.LastActivityDate = &day
			if _, err := s.PutStreak(ctx, *rec); err != nil {
				t.Fatalf("PutStreak failed: %v", err)
			}
		}

		put("today", 4, testNow)
		put("yesterday", 3, testNow.AddDate(0, 0, -1))
		put("lapsed", 9, testNow.AddDate(0, 0, -2))
		if _, err := s.CreateStreak(ctx, "fresh"); err != nil {
			t.Fatal(err)
		}

		cutoff := rules.Day(testNow).AddDate(0, 0, -1)
		n, err := s.ResetBrokenStreaks(ctx, cutoff)
		if err != nil {
			t.Fatalf("ResetBrokenStreaks failed: %v", err)
		}
		if n != 1 {
			t.Errorf("expected 1 reset, got %d", n)
		}

		lapsed, _ := s.GetStreak(ctx, "lapsed")
		if lapsed.CurrentStreak != 0 || lapsed.LongestStreak != 11 || lapsed.Version != 2 {
			t.Errorf("unexpected lapsed record: %+v", lapsed)
		}
		kept, _ := s.GetStreak(ctx, "yesterday")
		if kept.CurrentStreak != 3 {
			t.Errorf("yesterday's streak was reset: %+v", kept)
		}

		n, err = s.ResetBrokenStreaks(ctx, cutoff)
		if err != nil {
			t.Fatalf("second ResetBrokenStreaks failed: %v", err)
		}
		if n != 0 {
			t.Errorf("expected rerun to be a no-op, reset %d", n)
		}
	})
}

func TestStore_Tasks(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		if err := s.PutTasks(ctx, testCatalogue); err != nil {
			t.Fatalf("PutTasks failed: %v", err)
		}

		list, err := s.ListTasks(ctx, rules.TrackFoundation, 0)
		if err != nil {
			t.Fatalf("ListTasks failed: %v", err)
		}
		var ids []string
		for _, task := range list {
			ids = append(ids, task.ID)
		}
		if len(ids) != 4 || ids[0] != "t1" || ids[3] != "t4" {
			t.Errorf("unexpected order: %v", ids)
		}

		limited, _ := s.ListTasks(ctx, rules.TrackFoundation, 2)
		if len(limited) != 2 {
			t.Errorf("expected 2 tasks with limit, got %d", len(limited))
		}

		updated := testCatalogue[1]
		updated.Title = "Reading Scanning Basics"
		if err := s.PutTasks(ctx, []Task{updated}); err != nil {
			t.Fatalf("PutTasks update failed: %v", err)
		}
		got, err := s.GetTask(ctx, "t1")
		if err != nil {
			t.Fatalf("GetTask failed: %v", err)
		}
		if got.Title != "Reading Scanning Basics" {
			t.Errorf("expected updated title, got %q", got.Title)
		}

		if _, err := s.GetTask(ctx, "nope"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestStore_FindTasks(t *testing.T) {
	tests := []struct {
		name  string
		query rules.TaskQuery
		want  []string
	}{
		{
			name:  "track only",
			query: rules.TaskQuery{TrackID: rules.TrackFoundation},
			want:  []string{"t1", "t2", "t3", "t4"},
		},
		{
			name: "types and patterns",
			query: rules.TaskQuery{
				TrackID:       rules.TrackFoundation,
				Types:         rules.InterventionTaskTypes,
				TitlePatterns: []string{"%writing%strategy%", "%writing%practice%"},
			},
			want: []string{"t2", "t3"},
		},
		{
			name:  "case insensitive pattern with limit",
			query: rules.TaskQuery{TrackID: rules.TrackFoundation, TitlePatterns: []string{"%WRITING%"}, Limit: 1},
			want:  []string{"t2"},
		},
		{
			name:  "no match",
			query: rules.TaskQuery{TrackID: rules.TrackFoundation, TitlePatterns: []string{"%speaking%"}},
			want:  nil,
		},
		{
			name:  "other track",
			query: rules.TaskQuery{TrackID: rules.TrackSprint, Types: []string{"strategy"}},
			want:  []string{"s1"},
		},
	}

	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		if err := s.PutTasks(ctx, testCatalogue); err != nil {
			t.Fatalf("PutTasks failed: %v", err)
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				refs, err := s.FindTasks(ctx, tt.query)
				if err != nil {
					t.Fatalf("FindTasks failed: %v", err)
				}
				if len(refs) != len(tt.want) {
					t.Fatalf("got %d tasks, want %v", len(refs), tt.want)
				}
				for i, ref := range refs {
					if ref.ID != tt.want[i] {
						t.Errorf("refs[%d] = %s, want %s", i, ref.ID, tt.want[i])
					}
				}
			})
		}
	})
}

func TestStore_FindInterventionThroughStore(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		if err := s.PutTasks(ctx, testCatalogue); err != nil {
			t.Fatal(err)
		}
		ref, err := rules.FindIntervention(ctx, s, rules.ModuleWriting, rules.TrackFoundation)
		if err != nil {
			t.Fatalf("FindIntervention failed: %v", err)
		}
		if ref == nil || ref.ID != "t2" {
			t.Errorf("expected t2, got %+v", ref)
		}

		ref, err = rules.FindIntervention(ctx, s, rules.ModuleListening, rules.TrackFoundation)
		if err != nil {
			t.Fatalf("FindIntervention failed: %v", err)
		}
		if ref != nil {
			t.Errorf("expected no intervention, got %+v", ref)
		}
	})
}

func TestStore_InterventionDailyDedupe(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		th := rules.DefaultThresholds()
		task := testCatalogue[2].Ref()

		first := th.NewInterventionEvent("ev1", "u1", rules.ModuleWriting, 45, "t4", task, testNow)
		got, created, err := s.RecordIntervention(ctx, first)
		if err != nil {
			t.Fatalf("RecordIntervention failed: %v", err)
		}
		if !created || got.ID != "ev1" {
			t.Fatalf("expected ev1 created, got %+v created=%v", got, created)
		}

		later := th.NewInterventionEvent("ev2", "u1", rules.ModuleWriting, 30, "t4", task, testNow.Add(3*time.Hour))
		got, created, err = s.RecordIntervention(ctx, later)
		if err != nil {
			t.Fatalf("second RecordIntervention failed: %v", err)
		}
		if created || got.ID != "ev1" || got.TriggerReason != "low_score_45" {
			t.Errorf("expected existing ev1, got %+v created=%v", got, created)
		}

		// A different module and a different day each get their own swap.
		other := th.NewInterventionEvent("ev3", "u1", rules.ModuleReading, 50, "t1", task, testNow)
		if _, created, _ := s.RecordIntervention(ctx, other); !created {
			t.Error("expected swap for another module to be created")
		}
		nextDay := th.NewInterventionEvent("ev4", "u1", rules.ModuleWriting, 40, "t4", task, testNow.AddDate(0, 0, 1))
		if _, created, _ := s.RecordIntervention(ctx, nextDay); !created {
			t.Error("expected swap on the next day to be created")
		}

		on, err := s.InterventionOn(ctx, "u1", rules.ModuleWriting, testNow.Add(10*time.Hour))
		if err != nil {
			t.Fatalf("InterventionOn failed: %v", err)
		}
		if on == nil || on.ID != "ev1" {
			t.Errorf("expected ev1, got %+v", on)
		}
		missing, err := s.InterventionOn(ctx, "u2", rules.ModuleWriting, testNow)
		if err != nil || missing != nil {
			t.Errorf("expected nil, nil; got %+v, %v", missing, err)
		}

		list, err := s.ListInterventions(ctx, "u1", 2)
		if err != nil {
			t.Fatalf("ListInterventions failed: %v", err)
		}
		if len(list) != 2 || list[0].ID != "ev4" {
			t.Errorf("expected newest first starting with ev4, got %+v", list)
		}
	})
}

func TestStore_ConcurrentInterventionsKeepOne(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		th := rules.DefaultThresholds()
		task := testCatalogue[2].Ref()

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			created int
		)
		for i := 0; i < 6; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				ev := th.NewInterventionEvent("ev"+string(rune('a'+i)), "u1", rules.ModuleWriting, 40, "t4", task, testNow)
				_, ok, err := s.RecordIntervention(ctx, ev)
				if err != nil {
					t.Errorf("RecordIntervention failed: %v", err)
					return
				}
				if ok {
					mu.Lock()
					created++
					mu.Unlock()
				}
			}(i)
		}
		wg.Wait()

		if created != 1 {
			t.Errorf("expected exactly one created swap, got %d", created)
		}
		list, _ := s.ListInterventions(ctx, "u1", 0)
		if len(list) != 1 {
			t.Errorf("expected one stored swap, got %d", len(list))
		}
	})
}
