package storage

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"momentum-hq/engine/internal/sqlitedb"
	"momentum-hq/engine/pkg/ledger"
	"momentum-hq/engine/pkg/usage"
)

const usageSchema = `
CREATE TABLE IF NOT EXISTS usage_records (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	operation TEXT NOT NULL,
	tier INTEGER NOT NULL,
	provider TEXT NOT NULL,
	model TEXT NOT NULL,
	tokens_in INTEGER NOT NULL,
	tokens_out INTEGER NOT NULL,
	cost_usd REAL NOT NULL,
	latency_ms INTEGER NOT NULL,
	success INTEGER NOT NULL,
	error_message TEXT,
	timestamp INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_usage_user_time ON usage_records(user_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_usage_tier ON usage_records(tier);
`

const insertUsageSQL = `
	INSERT INTO usage_records (id, user_id, operation, tier, provider, model,
		tokens_in, tokens_out, cost_usd, latency_ms, success, error_message, timestamp)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// SQLiteStorage implements usage.Storage on SQLite. There is no update or
// delete path; the table is append-only.
type SQLiteStorage struct {
	db *sqlitedb.DB
}

// NewSQLiteStorage opens (or creates) the usage log at cfg.Path.
func NewSQLiteStorage(cfg sqlitedb.Config) (*SQLiteStorage, error) {
	db, err := sqlitedb.Open(cfg)
	if err != nil {
		return nil, usage.NewStorageError("sqlite", "open", err)
	}
	s, err := NewSQLiteStorageFromDB(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLiteStorageFromDB uses an already opened handle. Closing the storage
// closes the handle.
func NewSQLiteStorageFromDB(db *sqlitedb.DB) (*SQLiteStorage, error) {
	if err := db.Migrate(context.Background(), usageSchema); err != nil {
		return nil, usage.NewStorageError("sqlite", "migrate", err)
	}
	return &SQLiteStorage{db: db}, nil
}

// Append inserts a record.
func (s *SQLiteStorage) Append(ctx context.Context, r *usage.Record) error {
	var errMsg sql.NullString
	if r.ErrorMessage != "" {
		errMsg = sql.NullString{String: r.ErrorMessage, Valid: true}
	}

	err := sqlitedb.WithRetry(func() error {
		_, err := s.db.ExecContext(ctx, insertUsageSQL,
			r.ID,
			r.UserID,
			r.Operation,
			int(r.Tier),
			r.Provider,
			r.Model,
			r.TokensIn,
			r.TokensOut,
			r.CostUSD,
			r.LatencyMs,
			r.Success,
			errMsg,
			r.Timestamp.UnixMilli(),
		)
		return err
	})
	if err != nil {
		return usage.NewStorageError("sqlite", "append", err)
	}
	return nil
}

// List returns matching records, newest first.
func (s *SQLiteStorage) List(ctx context.Context, filter usage.Filter) ([]*usage.Record, error) {
	query := `SELECT id, user_id, operation, tier, provider, model, tokens_in, tokens_out,
		cost_usd, latency_ms, success, error_message, timestamp FROM usage_records`

	where, args := buildWhereClause(filter)
	if where != "" {
		query += " WHERE " + where
	}
	query += " ORDER BY timestamp DESC, rowid DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, usage.NewStorageError("sqlite", "list", err)
	}
	defer rows.Close()

	var results []*usage.Record
	for rows.Next() {
		var (
			r      usage.Record
			tier   int
			errMsg sql.NullString
			ts     int64
		)
		if err := rows.Scan(&r.ID, &r.UserID, &r.Operation, &tier, &r.Provider, &r.Model,
			&r.TokensIn, &r.TokensOut, &r.CostUSD, &r.LatencyMs, &r.Success, &errMsg, &ts); err != nil {
			return nil, usage.NewStorageError("sqlite", "list", err)
		}
		r.Tier = ledger.Tier(tier)
		r.ErrorMessage = errMsg.String
		r.Timestamp = time.UnixMilli(ts).UTC()
		results = append(results, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, usage.NewStorageError("sqlite", "list", err)
	}
	return results, nil
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func buildWhereClause(f usage.Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.UserID != "" {
		conds = append(conds, "user_id = ?")
		args = append(args, f.UserID)
	}
	if f.Tier != 0 {
		conds = append(conds, "tier = ?")
		args = append(args, int(f.Tier))
	}
	if !f.Since.IsZero() {
		conds = append(conds, "timestamp >= ?")
		args = append(args, f.Since.UnixMilli())
	}
	if !f.Until.IsZero() {
		conds = append(conds, "timestamp < ?")
		args = append(args, f.Until.UnixMilli())
	}
	return strings.Join(conds, " AND "), args
}
