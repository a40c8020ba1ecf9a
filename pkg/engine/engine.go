package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"momentum-hq/engine/pkg/escalation"
	"momentum-hq/engine/pkg/ledger"
	"momentum-hq/engine/pkg/rules"
	"momentum-hq/engine/pkg/store"
	"momentum-hq/engine/pkg/telemetry/logging"
)

// Engine is the decision engine facade. It is safe for concurrent use and
// keeps no per-user state; all state lives in the store and the ledger.
type Engine struct {
	store      store.Store
	ledger     *ledger.Tracker
	router     *escalation.Router
	thresholds rules.Thresholds
	now        func() time.Time
	newID      func() string
	logger     *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithIDGenerator overrides how learner and intervention IDs are made.
func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) { e.newID = newID }
}

// New creates an engine.
func New(st store.Store, tracker *ledger.Tracker, router *escalation.Router, thresholds rules.Thresholds, opts ...Option) *Engine {
	e := &Engine{
		store:      st,
		ledger:     tracker,
		router:     router,
		thresholds: thresholds,
		now:        time.Now,
		newID:      func() string { return uuid.New().String() },
		logger:     slog.Default().With("component", "engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// AssignTrack maps a diagnostic to a study track.
func (e *Engine) AssignTrack(ctx context.Context, req AssignTrackRequest) (rules.TrackID, error) {
	track, rule, err := rules.AssignTrackExplain(req.trackInput())
	if err != nil {
		return "", translate(err)
	}
	e.logger.Debug("track assigned", "track", track, "rule", rule)
	return track, nil
}

// Enroll creates a learner with an assigned track and a zero streak. An
// email that is already enrolled returns the existing learner.
func (e *Engine) Enroll(ctx context.Context, req EnrollRequest) (*Enrollment, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	if req.Name == "" {
		return nil, invalid("name is required")
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		return nil, invalid("email %q: %v", req.Email, err)
	}

	if existing, err := e.store.GetLearnerByEmail(ctx, req.Email); err == nil {
		return welcomeBack(existing), nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("look up learner: %w", err)
	}

	track, err := e.AssignTrack(ctx, req.AssignTrackRequest)
	if err != nil {
		return nil, err
	}

	now := e.now().UTC()
	learner := &store.Learner{
		ID:              e.newID(),
		Name:            req.Name,
		Email:           req.Email,
		TestType:        req.TestType,
		DiagnosticScore: req.DiagnosticScore,
		ExamDate:        rules.Day(now).AddDate(0, 0, req.DaysUntilExam),
		TrackID:         track,
		CreatedAt:       now,
	}
	if err := e.store.CreateLearner(ctx, learner); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			// Lost a race with a concurrent enrollment of the same email.
			existing, gerr := e.store.GetLearnerByEmail(ctx, req.Email)
			if gerr != nil {
				return nil, fmt.Errorf("look up learner: %w", gerr)
			}
			return welcomeBack(existing), nil
		}
		return nil, fmt.Errorf("create learner: %w", err)
	}
	if _, err := e.store.CreateStreak(ctx, learner.ID); err != nil {
		return nil, fmt.Errorf("create streak: %w", err)
	}

	e.logger.Info("learner enrolled", "user_id", learner.ID, "track", track)
	return &Enrollment{
		Learner: learner,
		Created: true,
		Message: fmt.Sprintf("Welcome! You've been assigned to the %s track.", track.DisplayName()),
	}, nil
}

func welcomeBack(l *store.Learner) *Enrollment {
	return &Enrollment{
		Learner: l,
		Message: fmt.Sprintf("Welcome back! Continuing with your %s track.",
			strings.ReplaceAll(string(l.TrackID), "_", " ")),
	}
}

// SelectTask chooses the learner's next task. Struggling learners are
// escalated to tier 2 when budget allows; everyone else gets the rule
// choice.
func (e *Engine) SelectTask(ctx context.Context, userID string, req SelectTaskRequest) (*TaskSelection, error) {
	if req.RecentAccuracy < 0 || req.RecentAccuracy > 100 {
		return nil, invalid("recent_accuracy must be between 0 and 100, got %v", req.RecentAccuracy)
	}
	if req.ConsecutiveFailures < 0 {
		return nil, invalid("consecutive_failures cannot be negative")
	}
	for _, m := range req.WeakModules {
		if !rules.ValidModule(m) {
			return nil, invalid("unknown module %q", m)
		}
	}

	learner, err := e.store.GetLearner(ctx, userID)
	if err != nil {
		return nil, translate(err)
	}
	candidates, err := e.candidates(ctx, learner, req)
	if err != nil {
		return nil, err
	}

	out := e.router.SelectTask(ctx, userID, escalation.SelectTaskInput{
		RecentAccuracy:      req.RecentAccuracy,
		ConsecutiveFailures: req.ConsecutiveFailures,
		WeakModules:         req.WeakModules,
		RecentTasks:         req.RecentTasks,
		Candidates:          candidates,
	})
	return &TaskSelection{
		Tier:           out.Tier,
		TaskID:         out.Value.TaskID,
		CostUSD:        out.CostUSD,
		Reasoning:      out.Value.Reasoning,
		FallbackReason: string(out.Reason),
	}, nil
}

func (e *Engine) candidates(ctx context.Context, learner *store.Learner, req SelectTaskRequest) ([]rules.TaskRef, error) {
	if len(req.CandidateTaskIDs) > 0 {
		refs := make([]rules.TaskRef, 0, len(req.CandidateTaskIDs))
		for _, id := range req.CandidateTaskIDs {
			task, err := e.store.GetTask(ctx, id)
			if err != nil {
				return nil, translate(err)
			}
			refs = append(refs, task.Ref())
		}
		return refs, nil
	}

	limit := req.CandidateLimit
	if limit <= 0 {
		limit = DefaultCandidateLimit
	}
	tasks, err := e.store.ListTasks(ctx, learner.TrackID, limit)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	if len(tasks) == 0 {
		return nil, fmt.Errorf("%w: no tasks in track %s", ErrNotFound, learner.TrackID)
	}
	refs := make([]rules.TaskRef, len(tasks))
	for i, t := range tasks {
		refs[i] = t.Ref()
	}
	return refs, nil
}

// GenerateWeeklyReport produces the learner's weekly report, from tier 3
// when budget allows and from the template otherwise.
func (e *Engine) GenerateWeeklyReport(ctx context.Context, userID string, req WeeklyReportRequest) (*WeeklyReport, error) {
	if req.WeekNumber < 0 || req.TasksCompleted < 0 || req.PracticeMinutes < 0 {
		return nil, invalid("week_number, tasks_completed and practice_minutes cannot be negative")
	}
	if req.CompletionRate < 0 || req.CompletionRate > 100 {
		return nil, invalid("completion_rate must be between 0 and 100, got %v", req.CompletionRate)
	}
	if _, err := e.store.GetLearner(ctx, userID); err != nil {
		return nil, translate(err)
	}

	out := e.router.GenerateWeeklyReport(ctx, userID, escalation.ReportInput{
		WeekNumber:        req.WeekNumber,
		TasksCompleted:    req.TasksCompleted,
		PracticeMinutes:   req.PracticeMinutes,
		LVS:               req.LVS,
		CompletionRate:    req.CompletionRate,
		ModulePerformance: req.ModulePerformance,
	})
	return &WeeklyReport{
		Tier:           out.Tier,
		Report:         out.Value.Markdown,
		CostUSD:        out.CostUSD,
		FallbackReason: string(out.Reason),
	}, nil
}

// BudgetSummary reports the learner's spend for the current month.
func (e *Engine) BudgetSummary(ctx context.Context, userID string) (*ledger.MonthlySummary, error) {
	if _, err := e.store.GetLearner(ctx, userID); err != nil {
		return nil, translate(err)
	}
	return e.ledger.Summary(ctx, userID)
}

// RecordCompletionAndMaybeSwap records a task score and, when the score is
// failing, swaps in remedial content for the module. It returns nil when no
// swap is needed or no remedial task exists. A second failing score on the
// same module and day returns the swap already made.
func (e *Engine) RecordCompletionAndMaybeSwap(ctx context.Context, userID, taskID string, score int, module string) (*rules.InterventionEvent, error) {
	if score < 0 || score > 100 {
		return nil, invalid("score must be between 0 and 100, got %d", score)
	}
	if !rules.ValidModule(module) {
		return nil, invalid("unknown module %q", module)
	}

	learner, err := e.store.GetLearner(ctx, userID)
	if err != nil {
		return nil, translate(err)
	}
	task, err := e.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, translate(err)
	}

	if !e.thresholds.CheckInterventionTrigger(score) {
		return nil, nil
	}

	logger := logging.FromContext(logging.WithUser(ctx, userID), e.logger)
	now := e.now()

	existing, err := e.store.InterventionOn(ctx, userID, module, now)
	if err != nil {
		return nil, fmt.Errorf("look up intervention: %w", err)
	}
	if existing != nil {
		logger.Debug("intervention already made today", "intervention_id", existing.ID, "module", module)
		return existing, nil
	}

	replacement, err := rules.FindIntervention(ctx, e.store, module, learner.TrackID)
	if err != nil {
		return nil, translate(err)
	}
	if replacement == nil {
		logger.Info("no intervention available", "module", module, "track", learner.TrackID)
		return nil, nil
	}

	ev := e.thresholds.NewInterventionEvent(e.newID(), userID, module, score, task.ID, *replacement, now)

	diagnosis := e.router.DiagnoseIntervention(ctx, userID, escalation.DiagnosisInput{
		RecentTasks:         []string{fmt.Sprintf("%s (%d%%)", task.Title, score)},
		Accuracy:            float64(score),
		Module:              module,
		ConsecutiveFailures: 1,
	})
	ev.InterventionType = diagnosis.Value.InterventionType
	ev.Recommendation = diagnosis.Value.Recommendation

	stored, created, err := e.store.RecordIntervention(ctx, ev)
	if err != nil {
		return nil, fmt.Errorf("record intervention: %w", err)
	}
	if created {
		logger.Info("intervention created",
			"intervention_id", stored.ID,
			"module", module,
			"replacement_task", stored.InterventionTaskRef,
			"diagnosis_tier", diagnosis.Tier.String(),
		)
	}
	return stored, nil
}

// Interventions lists a learner's swaps, newest first.
func (e *Engine) Interventions(ctx context.Context, userID string, limit int) ([]rules.InterventionEvent, error) {
	if _, err := e.store.GetLearner(ctx, userID); err != nil {
		return nil, translate(err)
	}
	return e.store.ListInterventions(ctx, userID, limit)
}
