package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"momentum-hq/engine/pkg/ledger"
)

const postgresLedgerSchema = `
CREATE TABLE IF NOT EXISTS budget_ledgers (
	user_id TEXT PRIMARY KEY,
	monthly_budget_usd DOUBLE PRECISION NOT NULL,
	current_month_spend_usd DOUBLE PRECISION NOT NULL DEFAULT 0,
	lifetime_spend_usd DOUBLE PRECISION NOT NULL DEFAULT 0,
	tier3_calls_this_week INTEGER NOT NULL DEFAULT 0,
	tier3_calls_this_month INTEGER NOT NULL DEFAULT 0,
	last_tier3_call_at TIMESTAMPTZ,
	budget_exceeded BOOLEAN NOT NULL DEFAULT FALSE,
	week_key TEXT NOT NULL,
	month_key TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
)`

const selectLedgerSQL = `SELECT user_id, monthly_budget_usd, current_month_spend_usd, lifetime_spend_usd, tier3_calls_this_week, tier3_calls_this_month, last_tier3_call_at, budget_exceeded, week_key, month_key, updated_at FROM budget_ledgers WHERE user_id = $1`

// upsertLedgerSQL applies a delta in one statement. The existing row is
// rolled over to the current week and month inline, and the optional guard
// is the DO UPDATE's WHERE clause, so a rejected guard returns no row.
//
//	$1 user  $2 budget  $3 spend  $4 tier3 calls  $5 at  $6 week  $7 month
//	$8 guarded  $9 guard budget  $10 check tier3  $11 tier3 limit
const upsertLedgerSQL = `
INSERT INTO budget_ledgers AS l (user_id, monthly_budget_usd, current_month_spend_usd, lifetime_spend_usd,
	tier3_calls_this_week, tier3_calls_this_month, last_tier3_call_at, budget_exceeded, week_key, month_key, updated_at)
VALUES ($1::text, $2::double precision, $3::double precision, $3::double precision,
	$4::integer, $4::integer, CASE WHEN $4::integer > 0 THEN $5::timestamptz END,
	$3::double precision >= $2::double precision, $6::text, $7::text, $5::timestamptz)
ON CONFLICT (user_id) DO UPDATE SET
	monthly_budget_usd = $2::double precision,
	current_month_spend_usd = (CASE WHEN l.month_key = $7::text THEN l.current_month_spend_usd ELSE 0 END) + $3::double precision,
	lifetime_spend_usd = l.lifetime_spend_usd + $3::double precision,
	tier3_calls_this_week = (CASE WHEN l.week_key = $6::text THEN l.tier3_calls_this_week ELSE 0 END) + $4::integer,
	tier3_calls_this_month = (CASE WHEN l.month_key = $7::text THEN l.tier3_calls_this_month ELSE 0 END) + $4::integer,
	last_tier3_call_at = CASE WHEN $4::integer > 0 THEN $5::timestamptz ELSE l.last_tier3_call_at END,
	budget_exceeded = (CASE WHEN l.month_key = $7::text THEN l.current_month_spend_usd ELSE 0 END) + $3::double precision >= $2::double precision,
	week_key = $6::text,
	month_key = $7::text,
	updated_at = $5::timestamptz
WHERE NOT $8::boolean OR (
	(CASE WHEN l.month_key = $7::text THEN l.current_month_spend_usd ELSE 0 END) < $9::double precision
	AND (NOT $10::boolean OR (CASE WHEN l.week_key = $6::text THEN l.tier3_calls_this_week ELSE 0 END) < $11::integer)
)
RETURNING user_id, monthly_budget_usd, current_month_spend_usd, lifetime_spend_usd, tier3_calls_this_week, tier3_calls_this_month, last_tier3_call_at, budget_exceeded, week_key, month_key, updated_at`

const resetWeeklySQL = `UPDATE budget_ledgers SET tier3_calls_this_week = 0, week_key = $1, updated_at = $2 WHERE week_key <> $1`

const resetMonthlySQL = `UPDATE budget_ledgers SET current_month_spend_usd = 0, tier3_calls_this_month = 0, budget_exceeded = FALSE, month_key = $1, updated_at = $2 WHERE month_key <> $1`

// PostgresStore implements ledger.Store using PostgreSQL.
//
// Every Upsert is a single INSERT ... ON CONFLICT DO UPDATE statement. The
// conflicting row is locked for the statement, so concurrent guarded updates
// for one user are serialized by the database.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an open database. The schema is not created.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// OpenPostgres connects to dsn and ensures the ledger table exists.
func OpenPostgres(ctx context.Context, dsn string, maxOpenConns int) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	store := NewPostgresStore(db)
	if err := store.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// EnsureSchema creates the ledger table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, postgresLedgerSchema); err != nil {
		return fmt.Errorf("failed to create ledger table: %w", err)
	}
	return nil
}

// Get loads the user's row.
func (s *PostgresStore) Get(ctx context.Context, userID string) (*ledger.Ledger, error) {
	l, err := scanPostgresLedger(s.db.QueryRowContext(ctx, selectLedgerSQL, userID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger: %w", err)
	}
	return l, nil
}

// Upsert applies d in one statement. Serialization failures and deadlocks
// are retried once.
func (s *PostgresStore) Upsert(ctx context.Context, userID string, d ledger.Delta) (*ledger.Ledger, error) {
	guarded := d.Guard != nil
	var guard ledger.Guard
	if guarded {
		guard = *d.Guard
		// A fresh row has zero spend and zero calls; the INSERT branch has no
		// WHERE clause, so reject limits no row could pass before writing.
		if !guard.Allows(ledger.Ledger{}) {
			return nil, ledger.ErrGuardFailed
		}
	}

	at := d.At.UTC()
	args := []any{
		userID,
		d.MonthlyBudgetUSD,
		d.SpendUSD,
		d.Tier3Calls,
		at,
		ledger.WeekKey(at),
		ledger.MonthKey(at),
		guarded,
		guard.MonthlyBudgetUSD,
		guard.CheckTier3,
		guard.Tier3WeeklyLimit,
	}

	l, err := scanPostgresLedger(s.db.QueryRowContext(ctx, upsertLedgerSQL, args...))
	if isRetryable(err) {
		l, err = scanPostgresLedger(s.db.QueryRowContext(ctx, upsertLedgerSQL, args...))
	}
	if err == sql.ErrNoRows {
		return nil, ledger.ErrGuardFailed
	}
	if err != nil {
		return nil, fmt.Errorf("failed to upsert ledger: %w", err)
	}
	return l, nil
}

// ResetWeekly zeroes weekly counters on rows outside the current week.
func (s *PostgresStore) ResetWeekly(ctx context.Context, now time.Time) (int64, error) {
	return s.reset(ctx, resetWeeklySQL, ledger.WeekKey(now), now.UTC())
}

// ResetMonthly zeroes month counters on rows outside the current month.
func (s *PostgresStore) ResetMonthly(ctx context.Context, now time.Time) (int64, error) {
	return s.reset(ctx, resetMonthlySQL, ledger.MonthKey(now), now.UTC())
}

func (s *PostgresStore) reset(ctx context.Context, query, key string, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, query, key, now)
	if isRetryable(err) {
		result, err = s.db.ExecContext(ctx, query, key, now)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to reset ledgers: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// Ping checks connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// isRetryable reports serialization_failure and deadlock_detected.
func isRetryable(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "40001" || pqErr.Code == "40P01"
	}
	return false
}

func scanPostgresLedger(row *sql.Row) (*ledger.Ledger, error) {
	var (
		l      ledger.Ledger
		lastT3 sql.NullTime
	)
	err := row.Scan(
		&l.UserID,
		&l.MonthlyBudgetUSD,
		&l.CurrentMonthSpendUSD,
		&l.LifetimeSpendUSD,
		&l.Tier3CallsThisWeek,
		&l.Tier3CallsThisMonth,
		&lastT3,
		&l.BudgetExceeded,
		&l.WeekKey,
		&l.MonthKey,
		&l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lastT3.Valid {
		at := lastT3.Time.UTC()
		l.LastTier3CallAt = &at
	}
	l.UpdatedAt = l.UpdatedAt.UTC()
	return &l, nil
}
