package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"momentum-hq/engine/pkg/telemetry/metrics"
)

// Config holds the deployment-wide ledger limits.
type Config struct {
	// MonthlyBudgetUSD is the per-user spend ceiling for cost-bearing tiers.
	MonthlyBudgetUSD float64

	// Tier3WeeklyLimit is the per-user cap on premium calls per ISO week.
	Tier3WeeklyLimit int
}

// Tracker gates cost-bearing calls and commits their cost.
//
// The Tracker holds no per-user state. Every decision reads the store and
// every write goes through Store.Upsert, so atomicity is delegated to the
// store's conditional update.
type Tracker struct {
	store   Store
	config  Config
	now     func() time.Time
	logger  *slog.Logger
	metrics *metrics.Collector
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracker) { t.logger = logger }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(t *Tracker) { t.metrics = m }
}

// NewTracker creates a tracker backed by store.
//
// Example:
//
//	tracker := ledger.NewTracker(store, ledger.Config{
//	    MonthlyBudgetUSD: 0.50,
//	    Tier3WeeklyLimit: 1,
//	})
func NewTracker(store Store, cfg Config, opts ...Option) *Tracker {
	t := &Tracker{
		store:  store,
		config: cfg,
		now:    time.Now,
		logger: slog.Default().With("component", "ledger"),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Config returns the tracker's limits.
func (t *Tracker) Config() Config {
	return t.config
}

// CheckBudget reports whether userID may make a call on tier.
//
// Tier 1 is always allowed. Tiers 2 and 3 are denied once month spend
// reaches the budget; tier 3 is also denied once the weekly cap is reached.
// A user with no row has the full budget available.
//
// CheckBudget is advisory. Premium calls must use Reserve to claim a slot
// atomically.
func (t *Tracker) CheckBudget(ctx context.Context, userID string, tier Tier) (*Decision, error) {
	if userID == "" {
		return nil, ErrEmptyUserID
	}
	if tier < TierRules || tier > TierPremium {
		return nil, fmt.Errorf("%w: %d", ErrInvalidTier, int(tier))
	}

	decision := &Decision{
		Allowed:          true,
		Tier:             tier,
		BudgetUSD:        t.config.MonthlyBudgetUSD,
		Tier3WeeklyLimit: t.config.Tier3WeeklyLimit,
	}
	if tier == TierRules {
		return decision, nil
	}

	row, err := t.effectiveRow(ctx, userID)
	if err != nil {
		return nil, err
	}

	decision.SpendUSD = row.CurrentMonthSpendUSD
	decision.Tier3CallsWeek = row.Tier3CallsThisWeek
	decision.Reason = t.denyReason(row, tier == TierPremium)
	decision.Allowed = decision.Reason == DenyNone

	if !decision.Allowed {
		t.metrics.RecordBudgetDenial(int(tier), string(decision.Reason))
		t.logger.Debug("budget denied",
			"user_id", userID,
			"tier", tier.String(),
			"reason", decision.Reason,
			"spend_usd", decision.SpendUSD,
		)
	}
	return decision, nil
}

// Reserve atomically claims one premium call for userID.
//
// The weekly counter is incremented only if the guard still holds at write
// time. When two requests race for the last slot exactly one is allowed.
// The reserved slot is consumed whether or not the provider call succeeds.
func (t *Tracker) Reserve(ctx context.Context, userID string) (*Decision, error) {
	if userID == "" {
		return nil, ErrEmptyUserID
	}

	now := t.now()
	decision := &Decision{
		Tier:             TierPremium,
		BudgetUSD:        t.config.MonthlyBudgetUSD,
		Tier3WeeklyLimit: t.config.Tier3WeeklyLimit,
	}

	row, err := t.store.Upsert(ctx, userID, Delta{
		Tier3Calls:       1,
		At:               now,
		MonthlyBudgetUSD: t.config.MonthlyBudgetUSD,
		Guard: &Guard{
			MonthlyBudgetUSD: t.config.MonthlyBudgetUSD,
			CheckTier3:       true,
			Tier3WeeklyLimit: t.config.Tier3WeeklyLimit,
		},
	})
	if errors.Is(err, ErrGuardFailed) {
		current, rerr := t.effectiveRow(ctx, userID)
		if rerr != nil {
			return nil, rerr
		}
		decision.Reason = t.denyReason(current, true)
		if decision.Reason == DenyNone {
			// Raced with a reset between the write and the read.
			decision.Reason = DenyTier3Limit
		}
		decision.SpendUSD = current.CurrentMonthSpendUSD
		decision.Tier3CallsWeek = current.Tier3CallsThisWeek
		t.metrics.RecordBudgetDenial(int(TierPremium), string(decision.Reason))
		t.logger.Debug("tier3 reservation denied", "user_id", userID, "reason", decision.Reason)
		return decision, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reserve tier3 call: %w", err)
	}

	decision.Allowed = true
	decision.SpendUSD = row.CurrentMonthSpendUSD
	decision.Tier3CallsWeek = row.Tier3CallsThisWeek
	return decision, nil
}

// CommitUsage adds costUSD to userID's month and lifetime spend.
//
// When isTier3 is true the tier-3 counters are incremented too. Callers that
// already claimed the slot with Reserve pass false. The commit is
// unconditional: cost that was incurred is always recorded even if it takes
// spend past the budget.
func (t *Tracker) CommitUsage(ctx context.Context, userID string, tier Tier, costUSD float64, isTier3 bool) error {
	if userID == "" {
		return ErrEmptyUserID
	}
	if !tier.CostBearing() {
		return fmt.Errorf("%w: %d", ErrInvalidTier, int(tier))
	}
	if costUSD < 0 {
		return ErrNegativeCost
	}

	delta := Delta{
		SpendUSD:         costUSD,
		At:               t.now(),
		MonthlyBudgetUSD: t.config.MonthlyBudgetUSD,
	}
	if isTier3 {
		delta.Tier3Calls = 1
	}

	row, err := t.store.Upsert(ctx, userID, delta)
	if err != nil {
		return fmt.Errorf("commit usage: %w", err)
	}

	if row.BudgetExceeded {
		t.logger.Info("monthly budget reached",
			"user_id", userID,
			"spend_usd", row.CurrentMonthSpendUSD,
			"budget_usd", row.MonthlyBudgetUSD,
		)
	}
	return nil
}

// Summary returns userID's spend for the current month.
func (t *Tracker) Summary(ctx context.Context, userID string) (*MonthlySummary, error) {
	if userID == "" {
		return nil, ErrEmptyUserID
	}

	row, err := t.effectiveRow(ctx, userID)
	if err != nil {
		return nil, err
	}

	remaining := t.config.MonthlyBudgetUSD - row.CurrentMonthSpendUSD
	if remaining < 0 {
		remaining = 0
	}
	return &MonthlySummary{
		UserID:             userID,
		SpendUSD:           row.CurrentMonthSpendUSD,
		BudgetUSD:          t.config.MonthlyBudgetUSD,
		RemainingUSD:       remaining,
		LifetimeSpendUSD:   row.LifetimeSpendUSD,
		Tier3CallsThisWeek: row.Tier3CallsThisWeek,
		Tier3WeeklyLimit:   t.config.Tier3WeeklyLimit,
		LastTier3CallAt:    row.LastTier3CallAt,
	}, nil
}

// ResetWeekly zeroes weekly tier-3 counters for all users. Running it twice
// in the same week changes nothing the second time.
func (t *Tracker) ResetWeekly(ctx context.Context) (int64, error) {
	n, err := t.store.ResetWeekly(ctx, t.now())
	if err != nil {
		return 0, fmt.Errorf("reset weekly counters: %w", err)
	}
	return n, nil
}

// ResetMonthly zeroes month spend and monthly tier-3 counters for all users.
// Lifetime spend is untouched.
func (t *Tracker) ResetMonthly(ctx context.Context) (int64, error) {
	n, err := t.store.ResetMonthly(ctx, t.now())
	if err != nil {
		return 0, fmt.Errorf("reset monthly budgets: %w", err)
	}
	return n, nil
}

func (t *Tracker) effectiveRow(ctx context.Context, userID string) (Ledger, error) {
	now := t.now()
	row, err := t.store.Get(ctx, userID)
	if err != nil {
		return Ledger{}, fmt.Errorf("get ledger: %w", err)
	}
	if row == nil {
		return Ledger{
			UserID:           userID,
			MonthlyBudgetUSD: t.config.MonthlyBudgetUSD,
			WeekKey:          WeekKey(now),
			MonthKey:         MonthKey(now),
		}, nil
	}
	return row.Effective(now), nil
}

func (t *Tracker) denyReason(row Ledger, premium bool) DenyReason {
	if row.CurrentMonthSpendUSD >= t.config.MonthlyBudgetUSD {
		return DenyMonthlyBudget
	}
	if premium && row.Tier3CallsThisWeek >= t.config.Tier3WeeklyLimit {
		return DenyTier3Limit
	}
	return DenyNone
}
