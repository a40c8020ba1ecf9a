// Package sqlitedb opens SQLite databases with the settings shared by every
// SQLite-backed store in the engine.
package sqlitedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Config configures an SQLite handle.
type Config struct {
	// Path is the database file. ":memory:" opens a private in-memory database.
	Path string

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds
	BusyTimeout time.Duration

	// CheckpointInterval is how often to checkpoint the WAL. Zero disables
	// the background checkpoint.
	CheckpointInterval time.Duration
}

// DB wraps *sql.DB with a WAL checkpoint loop.
type DB struct {
	*sql.DB

	path      string
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	logger    *slog.Logger
}

// Open opens the database in WAL mode with a single connection, since SQLite
// supports only one writer. Write transactions begin IMMEDIATE so that a
// read-then-write sequence holds the write lock from the start.
func Open(cfg Config) (*DB, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	if cfg.Path != ":memory:" {
		if dir := filepath.Dir(cfg.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	dsn := fmt.Sprintf("%s?_txlock=immediate&_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)",
		cfg.Path, cfg.BusyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	h := &DB{
		DB:     db,
		path:   cfg.Path,
		done:   make(chan struct{}),
		logger: slog.Default().With("component", "sqlite", "path", cfg.Path),
	}

	if cfg.CheckpointInterval > 0 {
		h.wg.Add(1)
		go h.checkpointLoop(cfg.CheckpointInterval)
	}

	return h, nil
}

// Migrate executes schema statements.
func (h *DB) Migrate(ctx context.Context, schema string) error {
	if _, err := h.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// Close stops the checkpoint loop, runs a final checkpoint and closes the
// database. It is safe to call more than once.
func (h *DB) Close() error {
	var err error
	h.closeOnce.Do(func() {
		close(h.done)
		h.wg.Wait()
		h.checkpoint()
		err = h.DB.Close()
	})
	return err
}

func (h *DB) checkpointLoop(interval time.Duration) {
	defer h.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.checkpoint()
		case <-h.done:
			return
		}
	}
}

func (h *DB) checkpoint() {
	if _, err := h.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		h.logger.Warn("wal checkpoint failed", "error", err)
	}
}

// IsBusy reports whether err is an SQLite busy or locked error.
func IsBusy(err error) bool {
	var serr *sqlite.Error
	if errors.As(err, &serr) {
		code := serr.Code() & 0xff
		return code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED
	}
	return err != nil && strings.Contains(err.Error(), "database is locked")
}

// IsUniqueViolation reports whether err is a UNIQUE or PRIMARY KEY
// constraint failure.
func IsUniqueViolation(err error) bool {
	var serr *sqlite.Error
	if errors.As(err, &serr) {
		code := serr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// WithRetry runs fn and runs it once more if it fails with a busy error.
func WithRetry(fn func() error) error {
	err := fn()
	if IsBusy(err) {
		err = fn()
	}
	return err
}

// NullTime converts a nullable unix timestamp column.
func NullTime(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0).UTC()
	return &t
}

// NullUnix converts t into a nullable unix timestamp column.
func NullUnix(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}
