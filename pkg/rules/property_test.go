package rules

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func genTrackInput() gopter.Gen {
	return gopter.CombineGens(
		gen.Float64Range(0, 9),
		gen.IntRange(0, 365),
		gen.OneConstOf(TestAcademic, TestGeneral),
		gen.OneConstOf("", ModuleReading, ModuleWriting, ModuleSpeaking, ModuleListening),
		gen.IntRange(0, 240),
		gen.Bool(),
	).Map(func(v []interface{}) TrackInput {
		return TrackInput{
			DiagnosticScore:  v[0].(float64),
			DaysUntilExam:    v[1].(int),
			TestType:         v[2].(TestType),
			WeakModule:       v[3].(string),
			DailyMinutes:     v[4].(int),
			WeekendAvailable: v[5].(bool),
		}
	})
}

// TestAssignTrackProperties verifies track assignment is a pure function in
// which exactly one rule fires.
func TestAssignTrackProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	properties.Property("identical input gives identical track", prop.ForAll(
		func(in TrackInput) bool {
			a, ruleA, errA := AssignTrackExplain(in)
			b, ruleB, errB := AssignTrackExplain(in)
			return errA == nil && errB == nil && a == b && ruleA == ruleB
		},
		genTrackInput(),
	))

	properties.Property("exactly one rule fires", prop.ForAll(
		func(in TrackInput) bool {
			track, rule, err := AssignTrackExplain(in)
			return err == nil && track != "" && rule >= RuleExamImminent && rule <= RuleTimeline
		},
		genTrackInput(),
	))

	properties.Property("imminent exams always fast-track", prop.ForAll(
		func(in TrackInput) bool {
			if in.DaysUntilExam >= 21 {
				return true
			}
			track, _ := AssignTrack(in)
			return track == TrackAcademicFastTrack || track == TrackGeneralFastTrack
		},
		genTrackInput(),
	))

	properties.TestingRun(t)
}

// TestInterventionTriggerProperty verifies the trigger is exactly score < 60.
func TestInterventionTriggerProperty(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("trigger iff score below 60", prop.ForAll(
		func(score int) bool {
			return CheckInterventionTrigger(score) == (score < 60)
		},
		gen.IntRange(0, 100),
	))

	properties.TestingRun(t)
}

// TestStreakProperties verifies the streak state machine invariants over
// random activity gaps.
func TestStreakProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)
	start := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

	properties.Property("longest never decreases and never trails current", prop.ForAll(
		func(gaps []int) bool {
			rec := StreakRecord{}
			today := start
			for _, g := range gaps {
				today = today.AddDate(0, 0, g)
				before := rec.LongestStreak
				rec, _ = TransitionStreak(rec, today)
				if rec.LongestStreak < before || rec.LongestStreak < rec.CurrentStreak {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 3)),
	))

	properties.Property("same-day repeat is idempotent", prop.ForAll(
		func(gaps []int, hours int) bool {
			rec := StreakRecord{}
			today := start
			for _, g := range gaps {
				today = today.AddDate(0, 0, g)
				rec, _ = TransitionStreak(rec, today)
			}
			again, mile := TransitionStreak(rec, today.Add(time.Duration(hours)*time.Hour))
			if rec.LastActivityDate == nil {
				return true
			}
			return again.CurrentStreak == rec.CurrentStreak && mile == 0
		},
		gen.SliceOf(gen.IntRange(0, 3)),
		gen.IntRange(0, 23),
	))

	properties.Property("gap of one increments, larger gap resets", prop.ForAll(
		func(current int, gap int) bool {
			last := start
			rec := StreakRecord{CurrentStreak: current, LongestStreak: current, LastActivityDate: &last}
			next, _ := TransitionStreak(rec, start.AddDate(0, 0, gap))
			if gap == 1 {
				return next.CurrentStreak == current+1
			}
			return next.CurrentStreak == 1
		},
		gen.IntRange(1, 100),
		gen.IntRange(1, 30),
	))

	properties.TestingRun(t)
}
