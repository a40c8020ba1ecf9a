package ledger

import (
	"fmt"
	"time"
)

// WeekKey returns the ISO week (Monday start, UTC) containing t, e.g. "2026-W42".
func WeekKey(t time.Time) string {
	year, week := t.UTC().ISOWeek()
	return fmt.Sprintf("%04d-W%02d", year, week)
}

// MonthKey returns the UTC calendar month containing t, e.g. "2026-10".
func MonthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}
