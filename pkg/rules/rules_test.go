package rules

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestAssignTrack(t *testing.T) {
	tests := []struct {
		name     string
		in       TrackInput
		want     TrackID
		wantRule int
	}{
		{
			name:     "urgent academic exam",
			in:       TrackInput{DiagnosticScore: 5.5, DaysUntilExam: 14, TestType: TestAcademic, WeakModule: ModuleWriting, DailyMinutes: 45},
			want:     TrackAcademicFastTrack,
			wantRule: RuleExamImminent,
		},
		{
			name:     "urgent general exam",
			in:       TrackInput{DiagnosticScore: 7.5, DaysUntilExam: 20, TestType: TestGeneral, DailyMinutes: 45},
			want:     TrackGeneralFastTrack,
			wantRule: RuleExamImminent,
		},
		{
			name:     "high baseline",
			in:       TrackInput{DiagnosticScore: 7.0, DaysUntilExam: 60, TestType: TestAcademic, DailyMinutes: 30},
			want:     TrackSprint,
			wantRule: RuleHighScore,
		},
		{
			name:     "boundary 6.5 is sprint",
			in:       TrackInput{DiagnosticScore: 6.5, DaysUntilExam: 21, TestType: TestAcademic, DailyMinutes: 45},
			want:     TrackSprint,
			wantRule: RuleHighScore,
		},
		{
			name:     "low baseline",
			in:       TrackInput{DiagnosticScore: 4.5, DaysUntilExam: 90, TestType: TestAcademic, WeakModule: ModuleReading, DailyMinutes: 60},
			want:     TrackFoundation,
			wantRule: RuleLowScore,
		},
		{
			name:     "writing weakness",
			in:       TrackInput{DiagnosticScore: 6.0, DaysUntilExam: 60, TestType: TestAcademic, WeakModule: ModuleWriting, DailyMinutes: 10},
			want:     TrackWritingFocus,
			wantRule: RuleWeakModule,
		},
		{
			name:     "speaking weakness",
			in:       TrackInput{DiagnosticScore: 6.0, DaysUntilExam: 60, TestType: TestGeneral, WeakModule: ModuleSpeaking, DailyMinutes: 20},
			want:     TrackSpeakingFocus,
			wantRule: RuleWeakModule,
		},
		{
			name:     "weekend warrior",
			in:       TrackInput{DiagnosticScore: 6.0, DaysUntilExam: 60, TestType: TestAcademic, WeakModule: ModuleReading, DailyMinutes: 15, WeekendAvailable: true},
			want:     TrackWeekendWarrior,
			wantRule: RuleAvailability,
		},
		{
			name:     "intensive",
			in:       TrackInput{DiagnosticScore: 6.0, DaysUntilExam: 60, TestType: TestAcademic, DailyMinutes: 90},
			want:     TrackIntensive,
			wantRule: RuleAvailability,
		},
		{
			name:     "limited time professional",
			in:       TrackInput{DiagnosticScore: 6.0, DaysUntilExam: 60, TestType: TestAcademic, DailyMinutes: 20},
			want:     TrackProfessionalMarathon,
			wantRule: RuleAvailability,
		},
		{
			name:     "long timeline",
			in:       TrackInput{DiagnosticScore: 6.0, DaysUntilExam: 120, TestType: TestAcademic, DailyMinutes: 45},
			want:     TrackFoundation,
			wantRule: RuleTimeline,
		},
		{
			name:     "medium timeline",
			in:       TrackInput{DiagnosticScore: 6.0, DaysUntilExam: 60, TestType: TestAcademic, DailyMinutes: 45},
			want:     TrackBalanced,
			wantRule: RuleTimeline,
		},
		{
			name:     "short timeline",
			in:       TrackInput{DiagnosticScore: 6.0, DaysUntilExam: 45, TestType: TestAcademic, DailyMinutes: 45},
			want:     TrackProfessionalMarathon,
			wantRule: RuleTimeline,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, rule, err := AssignTrackExplain(tt.in)
			if err != nil {
				t.Fatalf("AssignTrackExplain failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected track %s, got %s", tt.want, got)
			}
			if rule != tt.wantRule {
				t.Errorf("expected rule %d, got %d", tt.wantRule, rule)
			}
		})
	}
}

func TestAssignTrack_Validation(t *testing.T) {
	tests := []struct {
		name string
		in   TrackInput
	}{
		{"score too high", TrackInput{DiagnosticScore: 9.5, DaysUntilExam: 30, TestType: TestAcademic}},
		{"negative score", TrackInput{DiagnosticScore: -1, DaysUntilExam: 30, TestType: TestAcademic}},
		{"negative days", TrackInput{DiagnosticScore: 6, DaysUntilExam: -1, TestType: TestAcademic}},
		{"negative minutes", TrackInput{DiagnosticScore: 6, DaysUntilExam: 30, TestType: TestAcademic, DailyMinutes: -5}},
		{"unknown test type", TrackInput{DiagnosticScore: 6, DaysUntilExam: 30, TestType: "toefl"}},
		{"unknown module", TrackInput{DiagnosticScore: 6, DaysUntilExam: 30, TestType: TestGeneral, WeakModule: "grammar"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := AssignTrack(tt.in)
			if !errors.Is(err, ErrValidation) {
				t.Errorf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestNeedsEscalation(t *testing.T) {
	tests := []struct {
		accuracy float64
		failures int
		want     bool
	}{
		{40, 3, true},
		{59.9, 0, true},
		{60, 0, false},
		{90, 1, false},
		{90, 2, true},
	}
	for _, tt := range tests {
		if got := NeedsEscalation(tt.accuracy, tt.failures); got != tt.want {
			t.Errorf("NeedsEscalation(%v, %d) = %v, want %v", tt.accuracy, tt.failures, got, tt.want)
		}
	}
}

func TestCheckInterventionTrigger(t *testing.T) {
	tests := []struct {
		score int
		want  bool
	}{
		{0, true},
		{59, true},
		{60, false},
		{100, false},
	}
	for _, tt := range tests {
		if got := CheckInterventionTrigger(tt.score); got != tt.want {
			t.Errorf("CheckInterventionTrigger(%d) = %v, want %v", tt.score, got, tt.want)
		}
	}

	custom := Thresholds{FailingScore: 50}
	if custom.CheckInterventionTrigger(55) {
		t.Error("expected custom threshold 50 not to trigger at 55")
	}
}

// fakeFinder matches TaskQuery against an in-memory catalogue.
type fakeFinder struct {
	tasks   []TaskRef
	queries []TaskQuery
	err     error
}

func (f *fakeFinder) FindTasks(_ context.Context, q TaskQuery) ([]TaskRef, error) {
	f.queries = append(f.queries, q)
	if f.err != nil {
		return nil, f.err
	}
	var out []TaskRef
	for _, task := range f.tasks {
		if task.TrackID != q.TrackID {
			continue
		}
		if len(q.Types) > 0 && !contains(q.Types, task.Type) {
			continue
		}
		if !anyLike(q.TitlePatterns, task.Title) {
			continue
		}
		out = append(out, task)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// anyLike supports the "%a%b%" shapes FindIntervention produces.
func anyLike(patterns []string, title string) bool {
	title = strings.ToLower(title)
	for _, p := range patterns {
		parts := strings.Split(strings.Trim(p, "%"), "%")
		rest := title
		ok := true
		for _, part := range parts {
			i := strings.Index(rest, strings.ToLower(part))
			if i < 0 {
				ok = false
				break
			}
			rest = rest[i+len(part):]
		}
		if ok {
			return true
		}
	}
	return false
}

func TestFindIntervention(t *testing.T) {
	finder := &fakeFinder{tasks: []TaskRef{
		{ID: "t1", TrackID: TrackBalanced, Title: "Writing Task 2 essay", Type: "lesson", Module: ModuleWriting},
		{ID: "t2", TrackID: TrackBalanced, Title: "Writing coherence strategy", Type: "strategy", Module: ModuleWriting},
		{ID: "t3", TrackID: TrackSprint, Title: "Reading skimming practice", Type: "practice", Module: ModuleReading},
	}}

	got, err := FindIntervention(context.Background(), finder, ModuleWriting, TrackBalanced)
	if err != nil {
		t.Fatalf("FindIntervention failed: %v", err)
	}
	if got == nil || got.ID != "t2" {
		t.Fatalf("expected exact match t2, got %+v", got)
	}
	if len(finder.queries) != 1 {
		t.Errorf("expected exact search only, got %d queries", len(finder.queries))
	}
}

func TestFindIntervention_BroadFallback(t *testing.T) {
	finder := &fakeFinder{tasks: []TaskRef{
		{ID: "t1", TrackID: TrackBalanced, Title: "Listening section 3 lesson", Type: "lesson", Module: ModuleListening},
	}}

	got, err := FindIntervention(context.Background(), finder, ModuleListening, TrackBalanced)
	if err != nil {
		t.Fatalf("FindIntervention failed: %v", err)
	}
	if got == nil || got.ID != "t1" {
		t.Fatalf("expected broad match t1, got %+v", got)
	}
	if len(finder.queries) != 2 {
		t.Errorf("expected exact then broad search, got %d queries", len(finder.queries))
	}
}

func TestFindIntervention_NoneAvailable(t *testing.T) {
	finder := &fakeFinder{}

	got, err := FindIntervention(context.Background(), finder, ModuleSpeaking, TrackBalanced)
	if err != nil {
		t.Fatalf("expected no error when nothing matches, got %v", err)
	}
	if got != nil {
		t.Errorf("expected no intervention, got %+v", got)
	}
}

func TestFindIntervention_Errors(t *testing.T) {
	if _, err := FindIntervention(context.Background(), &fakeFinder{}, "maths", TrackBalanced); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation for unknown module, got %v", err)
	}

	boom := errors.New("db down")
	if _, err := FindIntervention(context.Background(), &fakeFinder{err: boom}, ModuleReading, TrackBalanced); !errors.Is(err, boom) {
		t.Errorf("expected finder error to propagate, got %v", err)
	}
}

func TestNewInterventionEvent(t *testing.T) {
	now := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)
	ev := DefaultThresholds().NewInterventionEvent("ev-1", "u", ModuleWriting, 45, "task-9", TaskRef{ID: "t2", Title: "Writing strategy"}, now)

	if ev.TriggerReason != "low_score_45" {
		t.Errorf("unexpected trigger reason %q", ev.TriggerReason)
	}
	if ev.Reason != "Score 45% below threshold (60%)" {
		t.Errorf("unexpected reason %q", ev.Reason)
	}
	if ev.OriginalTaskRef != "task-9" || ev.InterventionTaskRef != "t2" {
		t.Errorf("unexpected task refs %+v", ev)
	}
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestTransitionStreak(t *testing.T) {
	d0 := day(2026, 10, 10)

	tests := []struct {
		name        string
		rec         StreakRecord
		today       time.Time
		wantCurrent int
		wantLongest int
		wantMile    int
	}{
		{"first activity", StreakRecord{}, d0, 1, 1, 0},
		{"same day is idempotent", StreakRecord{CurrentStreak: 3, LongestStreak: 5, LastActivityDate: &d0}, d0.Add(20 * time.Hour), 3, 5, 0},
		{"consecutive day increments", StreakRecord{CurrentStreak: 3, LongestStreak: 5, LastActivityDate: &d0}, d0.AddDate(0, 0, 1), 4, 5, 0},
		{"gap resets to one", StreakRecord{CurrentStreak: 9, LongestStreak: 9, LastActivityDate: &d0}, d0.AddDate(0, 0, 3), 1, 9, 0},
		{"longest follows current", StreakRecord{CurrentStreak: 5, LongestStreak: 5, LastActivityDate: &d0}, d0.AddDate(0, 0, 1), 6, 6, 0},
		{"milestone 7", StreakRecord{CurrentStreak: 6, LongestStreak: 6, LastActivityDate: &d0}, d0.AddDate(0, 0, 1), 7, 7, 7},
		{"milestone 30", StreakRecord{CurrentStreak: 29, LongestStreak: 40, LastActivityDate: &d0}, d0.AddDate(0, 0, 1), 30, 40, 30},
		{"clock skew keeps record", StreakRecord{CurrentStreak: 4, LongestStreak: 4, LastActivityDate: &d0}, d0.AddDate(0, 0, -1), 4, 4, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, mile := TransitionStreak(tt.rec, tt.today)
			if got.CurrentStreak != tt.wantCurrent {
				t.Errorf("expected current %d, got %d", tt.wantCurrent, got.CurrentStreak)
			}
			if got.LongestStreak != tt.wantLongest {
				t.Errorf("expected longest %d, got %d", tt.wantLongest, got.LongestStreak)
			}
			if mile != tt.wantMile {
				t.Errorf("expected milestone %d, got %d", tt.wantMile, mile)
			}
		})
	}
}

func TestTransitionStreak_MilestoneFiresOnce(t *testing.T) {
	start := day(2026, 10, 1)
	rec := StreakRecord{CurrentStreak: 5, LongestStreak: 5, LastActivityDate: &start}

	var fired []int
	days := []time.Time{start.AddDate(0, 0, 1), start.AddDate(0, 0, 2), start.AddDate(0, 0, 2)}
	for _, d := range days {
		var m int
		rec, m = TransitionStreak(rec, d)
		if m != 0 {
			fired = append(fired, m)
		}
	}

	if rec.CurrentStreak != 7 {
		t.Errorf("expected streak 7, got %d", rec.CurrentStreak)
	}
	if len(fired) != 1 || fired[0] != 7 {
		t.Errorf("expected milestone 7 exactly once, got %v", fired)
	}
}

func TestStreakStatus(t *testing.T) {
	d0 := day(2026, 10, 10)
	rec := StreakRecord{CurrentStreak: 3, LastActivityDate: &d0}

	tests := []struct {
		today      time.Time
		wantStatus StreakStatus
		wantRescue int
	}{
		{d0.Add(5 * time.Hour), StreakActive, 0},
		{d0.AddDate(0, 0, 1), StreakAtRisk, 1},
		{d0.AddDate(0, 0, 2), StreakBroken, 0},
	}
	for _, tt := range tests {
		status, rescue := rec.Status(tt.today)
		if status != tt.wantStatus || rescue != tt.wantRescue {
			t.Errorf("Status(%v) = %s/%d, want %s/%d", tt.today, status, rescue, tt.wantStatus, tt.wantRescue)
		}
	}

	if status, _ := (StreakRecord{}).Status(d0); status != StreakNone {
		t.Errorf("expected none for empty record, got %s", status)
	}
}

func TestStreakMessage(t *testing.T) {
	if got := StreakMessage(1); got != "Great start!" {
		t.Errorf("unexpected message %q", got)
	}
	if got := StreakMessage(12); got != "12 day streak!" {
		t.Errorf("unexpected message %q", got)
	}
}

func TestTrackDisplayName(t *testing.T) {
	tests := map[TrackID]string{
		TrackAcademicFastTrack: "Academic Fast Track",
		TrackSprint:            "Sprint",
		TrackWeekendWarrior:    "Weekend Warrior",
	}
	for id, want := range tests {
		if got := id.DisplayName(); got != want {
			t.Errorf("%s.DisplayName() = %q, want %q", id, got, want)
		}
	}
}
