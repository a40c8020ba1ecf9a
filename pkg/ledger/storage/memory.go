package storage

import (
	"context"
	"sync"
	"time"

	"momentum-hq/engine/pkg/ledger"
)

// MemoryStore implements ledger.Store in process memory.
// All data is lost when the process exits.
//
// A single mutex serializes writes, which makes every Upsert atomic with
// respect to its guard.
type MemoryStore struct {
	mu   sync.Mutex
	rows map[string]ledger.Ledger
}

// NewMemoryStore creates an empty in-memory ledger store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]ledger.Ledger)}
}

// Get returns a copy of the user's row.
func (m *MemoryStore) Get(ctx context.Context, userID string) (*ledger.Ledger, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.rows[userID]
	if !ok {
		return nil, nil
	}
	return copyLedger(row), nil
}

// Upsert applies d to the user's row under the store lock.
func (m *MemoryStore) Upsert(ctx context.Context, userID string, d ledger.Delta) (*ledger.Ledger, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var cur *ledger.Ledger
	if row, ok := m.rows[userID]; ok {
		cur = &row
	}
	next, err := ledger.Apply(cur, userID, d)
	if err != nil {
		return nil, err
	}
	m.rows[userID] = *next
	return copyLedger(*next), nil
}

// ResetWeekly zeroes weekly counters on rows outside the current week.
func (m *MemoryStore) ResetWeekly(ctx context.Context, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	week := ledger.WeekKey(now)
	var n int64
	for id, row := range m.rows {
		if row.WeekKey == week {
			continue
		}
		row.Tier3CallsThisWeek = 0
		row.WeekKey = week
		row.UpdatedAt = now.UTC()
		m.rows[id] = row
		n++
	}
	return n, nil
}

// ResetMonthly zeroes month counters on rows outside the current month.
func (m *MemoryStore) ResetMonthly(ctx context.Context, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	month := ledger.MonthKey(now)
	var n int64
	for id, row := range m.rows {
		if row.MonthKey == month {
			continue
		}
		row.CurrentMonthSpendUSD = 0
		row.Tier3CallsThisMonth = 0
		row.BudgetExceeded = false
		row.MonthKey = month
		row.UpdatedAt = now.UTC()
		m.rows[id] = row
		n++
	}
	return n, nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error {
	return nil
}

func copyLedger(row ledger.Ledger) *ledger.Ledger {
	out := row
	if row.LastTier3CallAt != nil {
		at := *row.LastTier3CallAt
		out.LastTier3CallAt = &at
	}
	return &out
}
