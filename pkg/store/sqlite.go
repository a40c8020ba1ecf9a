package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"momentum-hq/engine/internal/sqlitedb"
	"momentum-hq/engine/pkg/rules"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS learners (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	email TEXT NOT NULL,
	test_type TEXT NOT NULL,
	diagnostic_score REAL NOT NULL,
	exam_date TEXT NOT NULL,
	track_id TEXT NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_learners_email ON learners(email COLLATE NOCASE);

CREATE TABLE IF NOT EXISTS streaks (
	user_id TEXT PRIMARY KEY,
	current_streak INTEGER NOT NULL DEFAULT 0,
	longest_streak INTEGER NOT NULL DEFAULT 0,
	last_activity_date TEXT,
	version INTEGER NOT NULL DEFAULT 0,
	updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_streaks_last_activity ON streaks(last_activity_date);

CREATE TABLE IF NOT EXISTS tasks (
	id TEXT PRIMARY KEY,
	track_id TEXT NOT NULL,
	title TEXT NOT NULL,
	type TEXT NOT NULL,
	module TEXT NOT NULL DEFAULT '',
	difficulty INTEGER NOT NULL DEFAULT 0,
	estimated_minutes INTEGER NOT NULL DEFAULT 0,
	order_in_track INTEGER NOT NULL DEFAULT 0,
	description TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_tasks_track ON tasks(track_id, order_in_track);

CREATE TABLE IF NOT EXISTS interventions (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	module TEXT NOT NULL,
	day TEXT NOT NULL,
	trigger_reason TEXT NOT NULL,
	reason TEXT NOT NULL,
	original_task_ref TEXT NOT NULL,
	intervention_task_ref TEXT NOT NULL,
	intervention_title TEXT NOT NULL,
	intervention_type TEXT NOT NULL DEFAULT '',
	recommendation TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_interventions_daily ON interventions(user_id, module, day);
CREATE INDEX IF NOT EXISTS idx_interventions_user ON interventions(user_id, created_at DESC);
`

const (
	learnerColumns      = `id, name, email, test_type, diagnostic_score, exam_date, track_id, created_at`
	streakColumns       = `user_id, current_streak, longest_streak, last_activity_date, version`
	taskColumns         = `id, track_id, title, type, module, difficulty, estimated_minutes, order_in_track, description`
	interventionColumns = `id, user_id, module, trigger_reason, reason, original_task_ref,
		intervention_task_ref, intervention_title, intervention_type, recommendation, created_at`
)

// SQLiteStore implements Store on SQLite.
type SQLiteStore struct {
	db *sqlitedb.DB
}

// NewSQLiteStore opens (or creates) the learner database at cfg.Path.
func NewSQLiteStore(cfg sqlitedb.Config) (*SQLiteStore, error) {
	db, err := sqlitedb.Open(cfg)
	if err != nil {
		return nil, err
	}
	s, err := NewSQLiteStoreFromDB(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLiteStoreFromDB uses an already opened handle. Closing the store
// closes the handle.
func NewSQLiteStoreFromDB(db *sqlitedb.DB) (*SQLiteStore, error) {
	if err := db.Migrate(context.Background(), sqliteSchema); err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// CreateLearner inserts l.
func (s *SQLiteStore) CreateLearner(ctx context.Context, l *Learner) error {
	err := sqlitedb.WithRetry(func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO learners (`+learnerColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			l.ID, l.Name, l.Email, string(l.TestType), l.DiagnosticScore,
			l.ExamDate.UTC().Format(time.DateOnly), string(l.TrackID), l.CreatedAt.Unix(),
		)
		return err
	})
	if sqlitedb.IsUniqueViolation(err) {
		return fmt.Errorf("learner %q: %w", l.Email, ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("failed to insert learner: %w", err)
	}
	return nil
}

// GetLearner loads a learner by ID.
func (s *SQLiteStore) GetLearner(ctx context.Context, id string) (*Learner, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+learnerColumns+` FROM learners WHERE id = ?`, id)
	l, err := scanLearner(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("learner %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load learner: %w", err)
	}
	return l, nil
}

// GetLearnerByEmail loads a learner by email, ignoring case.
func (s *SQLiteStore) GetLearnerByEmail(ctx context.Context, email string) (*Learner, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+learnerColumns+` FROM learners WHERE email = ? COLLATE NOCASE`, email)
	l, err := scanLearner(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("learner %q: %w", email, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load learner: %w", err)
	}
	return l, nil
}

// CreateStreak creates a zero streak if none exists.
func (s *SQLiteStore) CreateStreak(ctx context.Context, userID string) (*rules.StreakRecord, error) {
	err := sqlitedb.WithRetry(func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO streaks (user_id, updated_at) VALUES (?, ?) ON CONFLICT (user_id) DO NOTHING`,
			userID, time.Now().Unix())
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create streak: %w", err)
	}
	return s.GetStreak(ctx, userID)
}

// GetStreak loads a streak.
func (s *SQLiteStore) GetStreak(ctx context.Context, userID string) (*rules.StreakRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+streakColumns+` FROM streaks WHERE user_id = ?`, userID)
	rec, err := scanStreak(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("streak %q: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load streak: %w", err)
	}
	return rec, nil
}

// PutStreak writes rec with a conditional UPDATE on version.
func (s *SQLiteStore) PutStreak(ctx context.Context, rec rules.StreakRecord) (*rules.StreakRecord, error) {
	var last sql.NullString
	if rec.LastActivityDate != nil {
		last = sql.NullString{String: dayKey(*rec.LastActivityDate), Valid: true}
	}

	var affected int64
	err := sqlitedb.WithRetry(func() error {
		result, err := s.db.ExecContext(ctx, `
			UPDATE streaks
			SET current_streak = ?, longest_streak = ?, last_activity_date = ?,
				version = version + 1, updated_at = ?
			WHERE user_id = ? AND version = ?`,
			rec.CurrentStreak, rec.LongestStreak, last, time.Now().Unix(), rec.UserID, rec.Version)
		if err != nil {
			return err
		}
		affected, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save streak: %w", err)
	}

	if affected == 0 {
		if _, err := s.GetStreak(ctx, rec.UserID); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("streak %q at version %d: %w", rec.UserID, rec.Version, ErrConflict)
	}

	out := rec
	out.Version++
	return &out, nil
}

// ResetBrokenStreaks zeroes streaks last active before cutoff.
func (s *SQLiteStore) ResetBrokenStreaks(ctx context.Context, cutoff time.Time) (int64, error) {
	var affected int64
	err := sqlitedb.WithRetry(func() error {
		result, err := s.db.ExecContext(ctx, `
			UPDATE streaks
			SET current_streak = 0, version = version + 1, updated_at = ?
			WHERE current_streak > 0 AND last_activity_date IS NOT NULL AND last_activity_date < ?`,
			time.Now().Unix(), dayKey(cutoff))
		if err != nil {
			return err
		}
		affected, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to reset streaks: %w", err)
	}
	return affected, nil
}

// PutTasks inserts or replaces tasks in one transaction.
func (s *SQLiteStore) PutTasks(ctx context.Context, tasks []Task) error {
	return sqlitedb.WithRetry(func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer tx.Rollback() //nolint:errcheck

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO tasks (`+taskColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET
				track_id = excluded.track_id, title = excluded.title, type = excluded.type,
				module = excluded.module, difficulty = excluded.difficulty,
				estimated_minutes = excluded.estimated_minutes,
				order_in_track = excluded.order_in_track, description = excluded.description`)
		if err != nil {
			return fmt.Errorf("failed to prepare task insert: %w", err)
		}
		defer stmt.Close()

		for _, t := range tasks {
			if _, err := stmt.ExecContext(ctx, t.ID, string(t.TrackID), t.Title, t.Type, t.Module,
				t.Difficulty, t.EstimatedMinutes, t.OrderInTrack, t.Description); err != nil {
				return fmt.Errorf("failed to insert task %q: %w", t.ID, err)
			}
		}
		return tx.Commit()
	})
}

// GetTask loads a task by ID.
func (s *SQLiteStore) GetTask(ctx context.Context, id string) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load task: %w", err)
	}
	return t, nil
}

// ListTasks returns a track's tasks in catalogue order.
func (s *SQLiteStore) ListTasks(ctx context.Context, trackID rules.TrackID, limit int) ([]Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE track_id = ? ORDER BY order_in_track, id`
	args := []any{string(trackID)}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryTasks(ctx, query, args...)
}

// FindTasks implements rules.TaskFinder.
func (s *SQLiteStore) FindTasks(ctx context.Context, q rules.TaskQuery) ([]rules.TaskRef, error) {
	where, args := buildTaskWhere(q)
	query := `SELECT ` + taskColumns + ` FROM tasks` + where + ` ORDER BY order_in_track, id`
	if q.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, q.Limit)
	}

	tasks, err := s.queryTasks(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	refs := make([]rules.TaskRef, len(tasks))
	for i, t := range tasks {
		refs[i] = t.Ref()
	}
	return refs, nil
}

func buildTaskWhere(q rules.TaskQuery) (string, []any) {
	var (
		conditions []string
		args       []any
	)
	if q.TrackID != "" {
		conditions = append(conditions, "track_id = ?")
		args = append(args, string(q.TrackID))
	}
	if len(q.Types) > 0 {
		conditions = append(conditions, "type IN ("+placeholders(len(q.Types))+")")
		for _, t := range q.Types {
			args = append(args, t)
		}
	}
	if len(q.TitlePatterns) > 0 {
		likes := make([]string, len(q.TitlePatterns))
		for i, p := range q.TitlePatterns {
			likes[i] = "lower(title) LIKE lower(?)"
			args = append(args, p)
		}
		conditions = append(conditions, "("+strings.Join(likes, " OR ")+")")
	}
	if len(conditions) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func (s *SQLiteStore) queryTasks(ctx context.Context, query string, args ...any) ([]Task, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var out []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tasks: %w", err)
	}
	return out, nil
}

// RecordIntervention inserts ev; the unique (user, module, day) index turns
// a second swap on the same day into a read of the first.
func (s *SQLiteStore) RecordIntervention(ctx context.Context, ev *rules.InterventionEvent) (*rules.InterventionEvent, bool, error) {
	var affected int64
	err := sqlitedb.WithRetry(func() error {
		result, err := s.db.ExecContext(ctx, `
			INSERT INTO interventions (id, user_id, module, day, trigger_reason, reason,
				original_task_ref, intervention_task_ref, intervention_title,
				intervention_type, recommendation, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (user_id, module, day) DO NOTHING`,
			ev.ID, ev.UserID, ev.Module, dayKey(ev.CreatedAt), ev.TriggerReason, ev.Reason,
			ev.OriginalTaskRef, ev.InterventionTaskRef, ev.InterventionTitle,
			ev.InterventionType, ev.Recommendation, ev.CreatedAt.UnixMilli())
		if err != nil {
			return err
		}
		affected, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert intervention: %w", err)
	}

	if affected == 1 {
		out := *ev
		return &out, true, nil
	}
	existing, err := s.InterventionOn(ctx, ev.UserID, ev.Module, ev.CreatedAt)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, fmt.Errorf("intervention for %q on %s vanished after conflict", ev.UserID, dayKey(ev.CreatedAt))
	}
	return existing, false, nil
}

// InterventionOn returns the swap for user and module on day, or nil.
func (s *SQLiteStore) InterventionOn(ctx context.Context, userID, module string, day time.Time) (*rules.InterventionEvent, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+interventionColumns+` FROM interventions WHERE user_id = ? AND module = ? AND day = ?`,
		userID, module, dayKey(day))
	ev, err := scanIntervention(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load intervention: %w", err)
	}
	return ev, nil
}

// ListInterventions returns a user's swaps, newest first.
func (s *SQLiteStore) ListInterventions(ctx context.Context, userID string, limit int) ([]rules.InterventionEvent, error) {
	query := `SELECT ` + interventionColumns + ` FROM interventions WHERE user_id = ? ORDER BY created_at DESC, rowid DESC`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query interventions: %w", err)
	}
	defer rows.Close()

	var out []rules.InterventionEvent
	for rows.Next() {
		ev, err := scanIntervention(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan intervention: %w", err)
		}
		out = append(out, *ev)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanLearner(row scanner) (*Learner, error) {
	var (
		l         Learner
		testType  string
		trackID   string
		examDate  string
		createdAt int64
	)
	if err := row.Scan(&l.ID, &l.Name, &l.Email, &testType, &l.DiagnosticScore, &examDate, &trackID, &createdAt); err != nil {
		return nil, err
	}
	d, err := time.Parse(time.DateOnly, examDate)
	if err != nil {
		return nil, fmt.Errorf("bad exam_date %q: %w", examDate, err)
	}
	l.TestType = rules.TestType(testType)
	l.TrackID = rules.TrackID(trackID)
	l.ExamDate = d
	l.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &l, nil
}

func scanStreak(row scanner) (*rules.StreakRecord, error) {
	var (
		rec  rules.StreakRecord
		last sql.NullString
	)
	if err := row.Scan(&rec.UserID, &rec.CurrentStreak, &rec.LongestStreak, &last, &rec.Version); err != nil {
		return nil, err
	}
	if last.Valid {
		d, err := time.Parse(time.DateOnly, last.String)
		if err != nil {
			return nil, fmt.Errorf("bad last_activity_date %q: %w", last.String, err)
		}
		rec.LastActivityDate = &d
	}
	return &rec, nil
}

func scanTask(row scanner) (*Task, error) {
	var (
		t       Task
		trackID string
	)
	if err := row.Scan(&t.ID, &trackID, &t.Title, &t.Type, &t.Module, &t.Difficulty,
		&t.EstimatedMinutes, &t.OrderInTrack, &t.Description); err != nil {
		return nil, err
	}
	t.TrackID = rules.TrackID(trackID)
	return &t, nil
}

func scanIntervention(row scanner) (*rules.InterventionEvent, error) {
	var (
		ev        rules.InterventionEvent
		createdAt int64
	)
	if err := row.Scan(&ev.ID, &ev.UserID, &ev.Module, &ev.TriggerReason, &ev.Reason,
		&ev.OriginalTaskRef, &ev.InterventionTaskRef, &ev.InterventionTitle,
		&ev.InterventionType, &ev.Recommendation, &createdAt); err != nil {
		return nil, err
	}
	ev.CreatedAt = time.UnixMilli(createdAt).UTC()
	return &ev, nil
}
