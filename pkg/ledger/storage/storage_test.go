package storage

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"momentum-hq/engine/internal/sqlitedb"
	"momentum-hq/engine/pkg/ledger"
)

var testNow = time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC) // Wednesday, 2026-W42

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(sqlitedb.Config{
		Path:        filepath.Join(t.TempDir(), "ledger.db"),
		BusyTimeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// forEachStore runs fn against every backend that needs no external service.
func forEachStore(t *testing.T, fn func(t *testing.T, store ledger.Store)) {
	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemoryStore())
	})
	t.Run("sqlite", func(t *testing.T) {
		fn(t, newTestSQLiteStore(t))
	})
}

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestStore_GetMissing(t *testing.T) {
	forEachStore(t, func(t *testing.T, store ledger.Store) {
		got, err := store.Get(context.Background(), "nobody")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got != nil {
			t.Errorf("expected nil ledger for missing user, got %+v", got)
		}
	})
}

func TestStore_UpsertCreatesThenIncrements(t *testing.T) {
	forEachStore(t, func(t *testing.T, store ledger.Store) {
		ctx := context.Background()

		first, err := store.Upsert(ctx, "user-1", ledger.Delta{SpendUSD: 0.10, At: testNow, MonthlyBudgetUSD: 0.50})
		if err != nil {
			t.Fatalf("first Upsert failed: %v", err)
		}
		if !approxEqual(first.CurrentMonthSpendUSD, 0.10) {
			t.Errorf("expected spend 0.10, got %v", first.CurrentMonthSpendUSD)
		}

		second, err := store.Upsert(ctx, "user-1", ledger.Delta{SpendUSD: 0.05, Tier3Calls: 1, At: testNow, MonthlyBudgetUSD: 0.50})
		if err != nil {
			t.Fatalf("second Upsert failed: %v", err)
		}
		if !approxEqual(second.CurrentMonthSpendUSD, 0.15) {
			t.Errorf("expected spend 0.15, got %v", second.CurrentMonthSpendUSD)
		}
		if !approxEqual(second.LifetimeSpendUSD, 0.15) {
			t.Errorf("expected lifetime 0.15, got %v", second.LifetimeSpendUSD)
		}
		if second.Tier3CallsThisWeek != 1 || second.Tier3CallsThisMonth != 1 {
			t.Errorf("expected 1 tier3 call, got week=%d month=%d", second.Tier3CallsThisWeek, second.Tier3CallsThisMonth)
		}
		if second.LastTier3CallAt == nil || !second.LastTier3CallAt.Equal(testNow) {
			t.Errorf("expected last tier3 call at %v, got %v", testNow, second.LastTier3CallAt)
		}

		stored, err := store.Get(ctx, "user-1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if stored == nil || !approxEqual(stored.CurrentMonthSpendUSD, 0.15) {
			t.Errorf("expected stored spend 0.15, got %+v", stored)
		}
		if stored.WeekKey != "2026-W42" || stored.MonthKey != "2026-10" {
			t.Errorf("unexpected window keys %q %q", stored.WeekKey, stored.MonthKey)
		}
	})
}

func TestStore_GuardRejectsWithoutWriting(t *testing.T) {
	forEachStore(t, func(t *testing.T, store ledger.Store) {
		ctx := context.Background()
		guard := &ledger.Guard{MonthlyBudgetUSD: 0.50, CheckTier3: true, Tier3WeeklyLimit: 1}

		if _, err := store.Upsert(ctx, "user-1", ledger.Delta{Tier3Calls: 1, At: testNow, MonthlyBudgetUSD: 0.50, Guard: guard}); err != nil {
			t.Fatalf("first guarded Upsert failed: %v", err)
		}

		_, err := store.Upsert(ctx, "user-1", ledger.Delta{Tier3Calls: 1, At: testNow, MonthlyBudgetUSD: 0.50, Guard: guard})
		if !errors.Is(err, ledger.ErrGuardFailed) {
			t.Fatalf("expected ErrGuardFailed, got %v", err)
		}

		stored, _ := store.Get(ctx, "user-1")
		if stored.Tier3CallsThisWeek != 1 {
			t.Errorf("expected weekly count to stay 1, got %d", stored.Tier3CallsThisWeek)
		}
	})
}

func TestStore_GuardBudgetExhausted(t *testing.T) {
	forEachStore(t, func(t *testing.T, store ledger.Store) {
		ctx := context.Background()

		if _, err := store.Upsert(ctx, "user-1", ledger.Delta{SpendUSD: 0.52, At: testNow, MonthlyBudgetUSD: 0.50}); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}

		guard := &ledger.Guard{MonthlyBudgetUSD: 0.50, CheckTier3: true, Tier3WeeklyLimit: 5}
		_, err := store.Upsert(ctx, "user-1", ledger.Delta{Tier3Calls: 1, At: testNow, MonthlyBudgetUSD: 0.50, Guard: guard})
		if !errors.Is(err, ledger.ErrGuardFailed) {
			t.Fatalf("expected ErrGuardFailed, got %v", err)
		}
	})
}

func TestStore_LazyRollover(t *testing.T) {
	forEachStore(t, func(t *testing.T, store ledger.Store) {
		ctx := context.Background()

		if _, err := store.Upsert(ctx, "user-1", ledger.Delta{SpendUSD: 0.40, Tier3Calls: 1, At: testNow, MonthlyBudgetUSD: 0.50}); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}

		nextMonth := time.Date(2026, 11, 3, 9, 0, 0, 0, time.UTC)
		got, err := store.Upsert(ctx, "user-1", ledger.Delta{SpendUSD: 0.01, At: nextMonth, MonthlyBudgetUSD: 0.50})
		if err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
		if !approxEqual(got.CurrentMonthSpendUSD, 0.01) {
			t.Errorf("expected month spend to roll over to 0.01, got %v", got.CurrentMonthSpendUSD)
		}
		if !approxEqual(got.LifetimeSpendUSD, 0.41) {
			t.Errorf("expected lifetime 0.41, got %v", got.LifetimeSpendUSD)
		}
		if got.Tier3CallsThisWeek != 0 || got.Tier3CallsThisMonth != 0 {
			t.Errorf("expected tier3 counters rolled over, got week=%d month=%d", got.Tier3CallsThisWeek, got.Tier3CallsThisMonth)
		}
	})
}

func TestStore_ResetWeeklyIdempotent(t *testing.T) {
	forEachStore(t, func(t *testing.T, store ledger.Store) {
		ctx := context.Background()
		for _, id := range []string{"a", "b"} {
			if _, err := store.Upsert(ctx, id, ledger.Delta{SpendUSD: 0.02, Tier3Calls: 1, At: testNow, MonthlyBudgetUSD: 0.50}); err != nil {
				t.Fatalf("Upsert failed: %v", err)
			}
		}

		monday := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
		n, err := store.ResetWeekly(ctx, monday)
		if err != nil {
			t.Fatalf("ResetWeekly failed: %v", err)
		}
		if n != 2 {
			t.Errorf("expected 2 rows reset, got %d", n)
		}

		n, err = store.ResetWeekly(ctx, monday.Add(time.Minute))
		if err != nil {
			t.Fatalf("second ResetWeekly failed: %v", err)
		}
		if n != 0 {
			t.Errorf("expected second reset to change nothing, got %d", n)
		}

		got, _ := store.Get(ctx, "a")
		if got.Tier3CallsThisWeek != 0 {
			t.Errorf("expected weekly count 0, got %d", got.Tier3CallsThisWeek)
		}
		if got.Tier3CallsThisMonth != 1 {
			t.Errorf("expected monthly count untouched, got %d", got.Tier3CallsThisMonth)
		}
		if !approxEqual(got.CurrentMonthSpendUSD, 0.02) {
			t.Errorf("expected spend untouched, got %v", got.CurrentMonthSpendUSD)
		}
	})
}

func TestStore_ResetMonthlyKeepsLifetime(t *testing.T) {
	forEachStore(t, func(t *testing.T, store ledger.Store) {
		ctx := context.Background()
		if _, err := store.Upsert(ctx, "a", ledger.Delta{SpendUSD: 0.60, Tier3Calls: 1, At: testNow, MonthlyBudgetUSD: 0.50}); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}

		first := time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)
		if _, err := store.ResetMonthly(ctx, first); err != nil {
			t.Fatalf("ResetMonthly failed: %v", err)
		}
		n, err := store.ResetMonthly(ctx, first)
		if err != nil {
			t.Fatalf("second ResetMonthly failed: %v", err)
		}
		if n != 0 {
			t.Errorf("expected idempotent reset, got %d rows", n)
		}

		got, _ := store.Get(ctx, "a")
		if got.CurrentMonthSpendUSD != 0 || got.Tier3CallsThisMonth != 0 || got.BudgetExceeded {
			t.Errorf("expected month counters zeroed, got %+v", got)
		}
		if !approxEqual(got.LifetimeSpendUSD, 0.60) {
			t.Errorf("expected lifetime 0.60, got %v", got.LifetimeSpendUSD)
		}
	})
}

func TestStore_ConcurrentGuardedReserve(t *testing.T) {
	forEachStore(t, func(t *testing.T, store ledger.Store) {
		ctx := context.Background()
		guard := &ledger.Guard{MonthlyBudgetUSD: 0.50, CheckTier3: true, Tier3WeeklyLimit: 1}

		var (
			wg      sync.WaitGroup
			allowed atomic.Int32
			denied  atomic.Int32
		)
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := store.Upsert(ctx, "racer", ledger.Delta{Tier3Calls: 1, At: testNow, MonthlyBudgetUSD: 0.50, Guard: guard})
				switch {
				case err == nil:
					allowed.Add(1)
				case errors.Is(err, ledger.ErrGuardFailed):
					denied.Add(1)
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()

		if allowed.Load() != 1 {
			t.Errorf("expected exactly 1 reservation, got %d", allowed.Load())
		}
		if denied.Load() != 9 {
			t.Errorf("expected 9 denials, got %d", denied.Load())
		}

		got, _ := store.Get(ctx, "racer")
		if got.Tier3CallsThisWeek != 1 {
			t.Errorf("expected weekly count 1, got %d", got.Tier3CallsThisWeek)
		}
	})
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	ctx := context.Background()

	store, err := NewSQLiteStore(sqlitedb.Config{Path: path})
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	if _, err := store.Upsert(ctx, "user-1", ledger.Delta{SpendUSD: 0.25, At: testNow, MonthlyBudgetUSD: 0.50}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := NewSQLiteStore(sqlitedb.Config{Path: path})
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Get(ctx, "user-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got == nil || !approxEqual(got.CurrentMonthSpendUSD, 0.25) {
		t.Errorf("expected persisted spend 0.25, got %+v", got)
	}
}
