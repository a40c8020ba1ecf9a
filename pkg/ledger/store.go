package ledger

import (
	"context"
	"time"
)

// Store persists ledger rows.
//
// Upsert is the only write path for spend and tier-3 counters. It must apply
// the delta as a single atomic operation against the user's row so that two
// concurrent guarded upserts cannot both pass the guard when only one fits.
// Implementations retry a write conflict once before surfacing it.
type Store interface {
	// Get returns the stored row, or nil with no error when the user has none.
	Get(ctx context.Context, userID string) (*Ledger, error)

	// Upsert creates the row if absent, otherwise applies d to it. Window
	// counters from an older week or month are rolled over first. Returns
	// ErrGuardFailed when d.Guard rejects the current state.
	Upsert(ctx context.Context, userID string, d Delta) (*Ledger, error)

	// ResetWeekly zeroes tier-3 weekly counters on every row not already in
	// the week containing now. Returns the number of rows changed.
	ResetWeekly(ctx context.Context, now time.Time) (int64, error)

	// ResetMonthly zeroes month spend and monthly tier-3 counters on every
	// row not already in the month containing now.
	ResetMonthly(ctx context.Context, now time.Time) (int64, error)

	// Close releases resources held by the store.
	Close() error
}
