package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"momentum-hq/engine/internal/sqlitedb"
	"momentum-hq/engine/pkg/ledger"
)

const sqliteLedgerSchema = `
CREATE TABLE IF NOT EXISTS budget_ledgers (
	user_id TEXT PRIMARY KEY,
	monthly_budget_usd REAL NOT NULL,
	current_month_spend_usd REAL NOT NULL DEFAULT 0,
	lifetime_spend_usd REAL NOT NULL DEFAULT 0,
	tier3_calls_this_week INTEGER NOT NULL DEFAULT 0,
	tier3_calls_this_month INTEGER NOT NULL DEFAULT 0,
	last_tier3_call_at INTEGER,
	budget_exceeded INTEGER NOT NULL DEFAULT 0,
	week_key TEXT NOT NULL,
	month_key TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_budget_ledgers_week ON budget_ledgers(week_key);
CREATE INDEX IF NOT EXISTS idx_budget_ledgers_month ON budget_ledgers(month_key);
`

const (
	sqliteSelectLedger = `
		SELECT user_id, monthly_budget_usd, current_month_spend_usd, lifetime_spend_usd,
			tier3_calls_this_week, tier3_calls_this_month, last_tier3_call_at,
			budget_exceeded, week_key, month_key, updated_at
		FROM budget_ledgers
		WHERE user_id = ?`

	sqliteUpsertLedger = `
		INSERT INTO budget_ledgers (user_id, monthly_budget_usd, current_month_spend_usd,
			lifetime_spend_usd, tier3_calls_this_week, tier3_calls_this_month,
			last_tier3_call_at, budget_exceeded, week_key, month_key, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			monthly_budget_usd = excluded.monthly_budget_usd,
			current_month_spend_usd = excluded.current_month_spend_usd,
			lifetime_spend_usd = excluded.lifetime_spend_usd,
			tier3_calls_this_week = excluded.tier3_calls_this_week,
			tier3_calls_this_month = excluded.tier3_calls_this_month,
			last_tier3_call_at = excluded.last_tier3_call_at,
			budget_exceeded = excluded.budget_exceeded,
			week_key = excluded.week_key,
			month_key = excluded.month_key,
			updated_at = excluded.updated_at`

	sqliteResetWeekly = `
		UPDATE budget_ledgers
		SET tier3_calls_this_week = 0, week_key = ?, updated_at = ?
		WHERE week_key <> ?`

	sqliteResetMonthly = `
		UPDATE budget_ledgers
		SET current_month_spend_usd = 0, tier3_calls_this_month = 0,
			budget_exceeded = 0, month_key = ?, updated_at = ?
		WHERE month_key <> ?`
)

// SQLiteStore implements ledger.Store on SQLite.
//
// Upsert reads and writes the row inside one IMMEDIATE transaction, which
// takes the database write lock before the read. The guard and the write are
// therefore atomic across processes sharing the file.
type SQLiteStore struct {
	db *sqlitedb.DB
}

// NewSQLiteStore opens (or creates) a ledger database at cfg.Path.
func NewSQLiteStore(cfg sqlitedb.Config) (*SQLiteStore, error) {
	db, err := sqlitedb.Open(cfg)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(context.Background(), sqliteLedgerSchema); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// NewSQLiteStoreFromDB uses an already opened handle. Closing the store
// closes the handle.
func NewSQLiteStoreFromDB(db *sqlitedb.DB) (*SQLiteStore, error) {
	if err := db.Migrate(context.Background(), sqliteLedgerSchema); err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Get loads the user's row.
func (s *SQLiteStore) Get(ctx context.Context, userID string) (*ledger.Ledger, error) {
	row, err := scanSQLiteLedger(s.db.QueryRowContext(ctx, sqliteSelectLedger, userID))
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger: %w", err)
	}
	return row, nil
}

// Upsert applies d atomically. A busy database is retried once.
func (s *SQLiteStore) Upsert(ctx context.Context, userID string, d ledger.Delta) (*ledger.Ledger, error) {
	var out *ledger.Ledger
	err := sqlitedb.WithRetry(func() error {
		var err error
		out, err = s.upsertTx(ctx, userID, d)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *SQLiteStore) upsertTx(ctx context.Context, userID string, d ledger.Delta) (*ledger.Ledger, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	cur, err := scanSQLiteLedger(tx.QueryRowContext(ctx, sqliteSelectLedger, userID))
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger: %w", err)
	}

	next, err := ledger.Apply(cur, userID, d)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, sqliteUpsertLedger,
		next.UserID,
		next.MonthlyBudgetUSD,
		next.CurrentMonthSpendUSD,
		next.LifetimeSpendUSD,
		next.Tier3CallsThisWeek,
		next.Tier3CallsThisMonth,
		sqlitedb.NullUnix(next.LastTier3CallAt),
		next.BudgetExceeded,
		next.WeekKey,
		next.MonthKey,
		next.UpdatedAt.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to save ledger: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit ledger: %w", err)
	}
	return next, nil
}

// ResetWeekly zeroes weekly counters on rows outside the current week.
func (s *SQLiteStore) ResetWeekly(ctx context.Context, now time.Time) (int64, error) {
	week := ledger.WeekKey(now)
	return s.exec(ctx, sqliteResetWeekly, week, now.Unix(), week)
}

// ResetMonthly zeroes month counters on rows outside the current month.
func (s *SQLiteStore) ResetMonthly(ctx context.Context, now time.Time) (int64, error) {
	month := ledger.MonthKey(now)
	return s.exec(ctx, sqliteResetMonthly, month, now.Unix(), month)
}

func (s *SQLiteStore) exec(ctx context.Context, query string, args ...any) (int64, error) {
	var affected int64
	err := sqlitedb.WithRetry(func() error {
		result, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		affected, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to reset ledgers: %w", err)
	}
	return affected, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func scanSQLiteLedger(row *sql.Row) (*ledger.Ledger, error) {
	var (
		l         ledger.Ledger
		lastT3    sql.NullInt64
		exceeded  bool
		updatedAt int64
	)
	err := row.Scan(
		&l.UserID,
		&l.MonthlyBudgetUSD,
		&l.CurrentMonthSpendUSD,
		&l.LifetimeSpendUSD,
		&l.Tier3CallsThisWeek,
		&l.Tier3CallsThisMonth,
		&lastT3,
		&exceeded,
		&l.WeekKey,
		&l.MonthKey,
		&updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	l.LastTier3CallAt = sqlitedb.NullTime(lastT3)
	l.BudgetExceeded = exceeded
	l.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &l, nil
}
