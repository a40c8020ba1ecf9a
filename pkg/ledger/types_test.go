package ledger

import (
	"errors"
	"testing"
	"time"
)

func TestWindowKeys(t *testing.T) {
	tests := []struct {
		at        time.Time
		wantWeek  string
		wantMonth string
	}{
		{time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC), "2026-W42", "2026-10"},
		{time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), "2026-W01", "2026-01"},
		// Sunday 2027-01-03 belongs to ISO week 53 of 2026.
		{time.Date(2027, 1, 3, 23, 59, 0, 0, time.UTC), "2026-W53", "2027-01"},
		// Non-UTC input is normalized.
		{time.Date(2026, 11, 1, 1, 0, 0, 0, time.FixedZone("UTC+3", 3*3600)), "2026-W44", "2026-10"},
	}

	for _, tt := range tests {
		if got := WeekKey(tt.at); got != tt.wantWeek {
			t.Errorf("WeekKey(%v) = %q, want %q", tt.at, got, tt.wantWeek)
		}
		if got := MonthKey(tt.at); got != tt.wantMonth {
			t.Errorf("MonthKey(%v) = %q, want %q", tt.at, got, tt.wantMonth)
		}
	}
}

func TestApply_NewRow(t *testing.T) {
	at := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
	got, err := Apply(nil, "u", Delta{SpendUSD: 0.5, Tier3Calls: 1, At: at, MonthlyBudgetUSD: 0.5})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if got.UserID != "u" || got.WeekKey != "2026-W42" || got.MonthKey != "2026-10" {
		t.Errorf("unexpected row identity: %+v", got)
	}
	if !got.BudgetExceeded {
		t.Error("expected exceeded flag when spend reaches budget")
	}
	if got.LastTier3CallAt == nil || !got.LastTier3CallAt.Equal(at) {
		t.Errorf("expected last tier3 call at %v, got %v", at, got.LastTier3CallAt)
	}
}

func TestApply_GuardDoesNotMutate(t *testing.T) {
	at := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
	cur := &Ledger{UserID: "u", Tier3CallsThisWeek: 1, WeekKey: WeekKey(at), MonthKey: MonthKey(at)}

	_, err := Apply(cur, "u", Delta{Tier3Calls: 1, At: at, Guard: &Guard{MonthlyBudgetUSD: 1, CheckTier3: true, Tier3WeeklyLimit: 1}})
	if !errors.Is(err, ErrGuardFailed) {
		t.Fatalf("expected ErrGuardFailed, got %v", err)
	}
	if cur.Tier3CallsThisWeek != 1 {
		t.Errorf("expected input row untouched, got %d", cur.Tier3CallsThisWeek)
	}
}

func TestApply_GuardSeesRolledOverWeek(t *testing.T) {
	lastWeek := time.Date(2026, 10, 7, 12, 0, 0, 0, time.UTC)
	at := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
	cur := &Ledger{UserID: "u", Tier3CallsThisWeek: 1, Tier3CallsThisMonth: 1, WeekKey: WeekKey(lastWeek), MonthKey: MonthKey(lastWeek)}

	got, err := Apply(cur, "u", Delta{Tier3Calls: 1, At: at, MonthlyBudgetUSD: 1, Guard: &Guard{MonthlyBudgetUSD: 1, CheckTier3: true, Tier3WeeklyLimit: 1}})
	if err != nil {
		t.Fatalf("expected stale week to pass the guard, got %v", err)
	}
	if got.Tier3CallsThisWeek != 1 {
		t.Errorf("expected weekly count 1, got %d", got.Tier3CallsThisWeek)
	}
	if got.Tier3CallsThisMonth != 2 {
		t.Errorf("expected monthly count 2 within same month, got %d", got.Tier3CallsThisMonth)
	}
}

func TestTier_String(t *testing.T) {
	if TierCheap.String() != "tier2" || TierPremium.String() != "tier3" || TierRules.String() != "rules" {
		t.Error("unexpected tier names")
	}
	if TierTemplate.CostBearing() || TierRules.CostBearing() || !TierCheap.CostBearing() {
		t.Error("unexpected cost-bearing tiers")
	}
}
