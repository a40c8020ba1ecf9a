package rules

import (
	"fmt"
	"time"
)

// StreakStatus is the derived state of a streak on a given day.
type StreakStatus string

const (
	// StreakNone means no activity has ever been recorded.
	StreakNone StreakStatus = "none"

	// StreakActive means activity was recorded today.
	StreakActive StreakStatus = "active"

	// StreakAtRisk means the last activity was yesterday.
	StreakAtRisk StreakStatus = "at_risk"

	// StreakBroken means more than one day has passed.
	StreakBroken StreakStatus = "broken"
)

// Day truncates t to its UTC calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the number of calendar days from a to b (UTC).
func DaysBetween(a, b time.Time) int {
	return int(Day(b).Sub(Day(a)).Hours() / 24)
}

// TransitionStreak applies one day's activity with the default milestones.
func TransitionStreak(rec StreakRecord, today time.Time) (StreakRecord, int) {
	return DefaultThresholds().TransitionStreak(rec, today)
}

// TransitionStreak applies one day's activity to rec and returns the new
// record and the milestone crossed, or 0.
//
// A first activity starts the streak at 1. A second activity on the same day
// changes nothing. Activity the day after the last one extends the streak;
// any longer gap restarts it at 1. A today earlier than the last activity is
// treated as the same day. LongestStreak never decreases and Version is left
// for the store to advance.
func (t Thresholds) TransitionStreak(rec StreakRecord, today time.Time) (StreakRecord, int) {
	day := Day(today)
	previous := rec.CurrentStreak
	next := rec

	if rec.LastActivityDate == nil {
		next.CurrentStreak = 1
	} else {
		switch gap := DaysBetween(*rec.LastActivityDate, day); {
		case gap <= 0:
			return rec, 0
		case gap == 1:
			next.CurrentStreak++
		default:
			next.CurrentStreak = 1
		}
	}

	if next.CurrentStreak > next.LongestStreak {
		next.LongestStreak = next.CurrentStreak
	}
	next.LastActivityDate = &day

	return next, t.milestoneCrossed(previous, next.CurrentStreak)
}

func (t Thresholds) milestoneCrossed(previous, current int) int {
	for _, m := range t.Milestones {
		if previous < m && m <= current {
			return m
		}
	}
	return 0
}

// Status reports the streak state on today and the days left to save an
// at-risk streak.
func (rec StreakRecord) Status(today time.Time) (StreakStatus, int) {
	if rec.LastActivityDate == nil {
		return StreakNone, 0
	}
	switch gap := DaysBetween(*rec.LastActivityDate, today); {
	case gap <= 0:
		return StreakActive, 0
	case gap == 1:
		return StreakAtRisk, 1
	default:
		return StreakBroken, 0
	}
}

// StreakMessage is the encouragement shown after an update.
func StreakMessage(current int) string {
	if current > 1 {
		return fmt.Sprintf("%d day streak!", current)
	}
	return "Great start!"
}
