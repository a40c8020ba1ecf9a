package ledger

import (
	"errors"
	"fmt"
	"time"
)

// Tier identifies which decision path produced a result.
type Tier int

const (
	// TierTemplate is the static fallback used when no model result exists.
	TierTemplate Tier = 0

	// TierRules is the free deterministic rule classifier.
	TierRules Tier = 1

	// TierCheap is the low-cost model tier.
	TierCheap Tier = 2

	// TierPremium is the expensive model tier with a weekly call cap.
	TierPremium Tier = 3
)

// String returns the tier as used in logs and metric labels.
func (t Tier) String() string {
	switch t {
	case TierTemplate:
		return "template"
	case TierRules:
		return "rules"
	case TierCheap:
		return "tier2"
	case TierPremium:
		return "tier3"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// CostBearing reports whether calls on this tier spend budget.
func (t Tier) CostBearing() bool {
	return t == TierCheap || t == TierPremium
}

// Sentinel errors for ledger operations.
var (
	// ErrGuardFailed is returned by Store.Upsert when a guarded delta would
	// exceed the monthly budget or the tier-3 weekly cap. Nothing is written.
	ErrGuardFailed = errors.New("ledger guard rejected update")

	// ErrEmptyUserID is returned when an operation is called without a user.
	ErrEmptyUserID = errors.New("user id is required")

	// ErrInvalidTier is returned for tiers outside 1..3.
	ErrInvalidTier = errors.New("invalid tier")

	// ErrNegativeCost is returned when a commit carries a negative amount.
	ErrNegativeCost = errors.New("cost cannot be negative")
)

// DenyReason explains a denied budget decision.
type DenyReason string

const (
	// DenyNone is the reason carried by allowed decisions.
	DenyNone DenyReason = ""

	// DenyMonthlyBudget means current month spend reached the ceiling.
	DenyMonthlyBudget DenyReason = "monthly_budget_exhausted"

	// DenyTier3Limit means the weekly tier-3 cap was reached.
	DenyTier3Limit DenyReason = "tier3_weekly_limit"
)

// Ledger is the per-user spend and call accounting row.
//
// Counters belong to the ISO week in WeekKey and the calendar month in
// MonthKey. A row whose keys are older than the current window is read as
// if its window counters were zero.
type Ledger struct {
	UserID               string
	MonthlyBudgetUSD     float64
	CurrentMonthSpendUSD float64
	LifetimeSpendUSD     float64
	Tier3CallsThisWeek   int
	Tier3CallsThisMonth  int
	LastTier3CallAt      *time.Time
	BudgetExceeded       bool
	WeekKey              string
	MonthKey             string
	UpdatedAt            time.Time
}

// Effective returns a copy of l as seen at now: window counters that belong
// to an older week or month are zeroed.
func (l Ledger) Effective(now time.Time) Ledger {
	if l.WeekKey != WeekKey(now) {
		l.Tier3CallsThisWeek = 0
		l.WeekKey = WeekKey(now)
	}
	if l.MonthKey != MonthKey(now) {
		l.CurrentMonthSpendUSD = 0
		l.Tier3CallsThisMonth = 0
		l.BudgetExceeded = false
		l.MonthKey = MonthKey(now)
	}
	return l
}

// Guard is a conditional check applied atomically with an Upsert.
type Guard struct {
	// MonthlyBudgetUSD rejects the delta when current spend is at or above it.
	MonthlyBudgetUSD float64

	// CheckTier3 enables the weekly cap check.
	CheckTier3 bool

	// Tier3WeeklyLimit rejects the delta when weekly tier-3 calls are at or above it.
	Tier3WeeklyLimit int
}

// Allows reports whether the effective ledger passes the guard.
func (g Guard) Allows(l Ledger) bool {
	if l.CurrentMonthSpendUSD >= g.MonthlyBudgetUSD {
		return false
	}
	if g.CheckTier3 && l.Tier3CallsThisWeek >= g.Tier3WeeklyLimit {
		return false
	}
	return true
}

// Delta is one atomic change to a ledger row.
type Delta struct {
	// SpendUSD is added to current month and lifetime spend.
	SpendUSD float64

	// Tier3Calls is added to the weekly and monthly tier-3 counters.
	Tier3Calls int

	// At is the time of the change. It selects the week and month window.
	At time.Time

	// MonthlyBudgetUSD is stored on the row and used for the cached
	// BudgetExceeded flag.
	MonthlyBudgetUSD float64

	// Guard, when set, must pass against the current row or the store returns
	// ErrGuardFailed without writing.
	Guard *Guard
}

// Apply computes the row that results from applying d to cur. cur may be nil
// for a user with no row yet. It returns ErrGuardFailed when d.Guard rejects
// the current state.
//
// Stores that cannot express the update in their native query language call
// Apply inside their own transaction.
func Apply(cur *Ledger, userID string, d Delta) (*Ledger, error) {
	next := Ledger{UserID: userID}
	if cur != nil {
		next = *cur
	}
	next = next.Effective(d.At)

	if d.Guard != nil && !d.Guard.Allows(next) {
		return nil, ErrGuardFailed
	}

	next.MonthlyBudgetUSD = d.MonthlyBudgetUSD
	next.CurrentMonthSpendUSD += d.SpendUSD
	next.LifetimeSpendUSD += d.SpendUSD
	if d.Tier3Calls > 0 {
		next.Tier3CallsThisWeek += d.Tier3Calls
		next.Tier3CallsThisMonth += d.Tier3Calls
		at := d.At.UTC()
		next.LastTier3CallAt = &at
	}
	next.BudgetExceeded = next.CurrentMonthSpendUSD >= next.MonthlyBudgetUSD
	next.UpdatedAt = d.At.UTC()

	return &next, nil
}

// Decision is the result of a budget check.
type Decision struct {
	Allowed          bool
	Reason           DenyReason
	Tier             Tier
	SpendUSD         float64
	BudgetUSD        float64
	Tier3CallsWeek   int
	Tier3WeeklyLimit int
}

// MonthlySummary reports a user's spend for the current month.
type MonthlySummary struct {
	UserID             string
	SpendUSD           float64
	BudgetUSD          float64
	RemainingUSD       float64
	LifetimeSpendUSD   float64
	Tier3CallsThisWeek int
	Tier3WeeklyLimit   int
	LastTier3CallAt    *time.Time
}
