package escalation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"momentum-hq/engine/pkg/config"
	"momentum-hq/engine/pkg/ledger"
	"momentum-hq/engine/pkg/providers"
	"momentum-hq/engine/pkg/rules"
	"momentum-hq/engine/pkg/telemetry/logging"
	"momentum-hq/engine/pkg/telemetry/metrics"
	"momentum-hq/engine/pkg/usage"
)

// Budget is the ledger surface the router needs.
type Budget interface {
	CheckBudget(ctx context.Context, userID string, tier ledger.Tier) (*ledger.Decision, error)
	Reserve(ctx context.Context, userID string) (*ledger.Decision, error)
}

// UsageRecorder commits the cost of an attempt and logs it.
type UsageRecorder interface {
	Record(ctx context.Context, record *usage.Record, isTier3 bool) error
}

// ProviderSource resolves the provider named by a tier.
type ProviderSource interface {
	Get(name string) (providers.Provider, error)
}

// Config holds the router settings.
type Config struct {
	Tier2     config.TierConfig
	Tier3     config.TierConfig
	MaxTokens config.MaxTokensConfig
	RateLimit config.RateLimitConfig

	// Thresholds decide when task selection and intervention diagnosis are
	// worth a model call.
	Thresholds rules.Thresholds
}

// ConfigFrom extracts the router settings from the engine config.
func ConfigFrom(cfg *config.Config, thresholds rules.Thresholds) Config {
	return Config{
		Tier2:      cfg.Tiers.Tier2,
		Tier3:      cfg.Tiers.Tier3,
		MaxTokens:  cfg.Tiers.MaxTokens,
		RateLimit:  cfg.RateLimit,
		Thresholds: thresholds,
	}
}

// Router routes decisions between the rule tier and the model tiers.
// It is safe for concurrent use and holds no per-user state.
type Router struct {
	budget    Budget
	recorder  UsageRecorder
	providers ProviderSource
	config    Config
	limiter   *rate.Limiter
	logger    *slog.Logger
	metrics   *metrics.Collector
	now       func() time.Time
}

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) { r.logger = logger }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(r *Router) { r.metrics = m }
}

// WithClock overrides the time source used for usage timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Router) { r.now = now }
}

// NewRouter creates a router. A tier whose provider cannot be resolved is
// logged here and falls back as disabled on every call.
func NewRouter(budget Budget, recorder UsageRecorder, source ProviderSource, cfg Config, opts ...Option) *Router {
	if cfg.Thresholds.EscalationAccuracy == 0 && cfg.Thresholds.EscalationFailures == 0 {
		cfg.Thresholds = rules.DefaultThresholds()
	}

	r := &Router{
		budget:    budget,
		recorder:  recorder,
		providers: source,
		config:    cfg,
		logger:    slog.Default().With("component", "escalation"),
		now:       time.Now,
	}
	if cfg.RateLimit.RequestsPerMinute > 0 {
		burst := cfg.RateLimit.Burst
		if burst <= 0 {
			burst = 1
		}
		r.limiter = rate.NewLimiter(rate.Limit(float64(cfg.RateLimit.RequestsPerMinute)/60), burst)
	}
	for _, opt := range opts {
		opt(r)
	}

	for _, tier := range []ledger.Tier{ledger.TierCheap, ledger.TierPremium} {
		tc := r.tierConfig(tier)
		if !tc.IsEnabled() {
			r.logger.Info("escalation tier disabled", "tier", tier.String())
			continue
		}
		if _, err := source.Get(tc.Provider); err != nil {
			r.logger.Warn("escalation tier has no provider, calls will fall back",
				"tier", tier.String(),
				"provider", tc.Provider,
				"error", err,
			)
		}
	}
	return r
}

// Cost returns the USD price of a call from token counts and per-1000-token
// rates.
func Cost(tokensIn, tokensOut int, inputRatePer1K, outputRatePer1K float64) float64 {
	return float64(tokensIn)/1000*inputRatePer1K + float64(tokensOut)/1000*outputRatePer1K
}

// SelectTask picks the learner's next task. Learners who are not struggling
// get the rule choice at tier 1 without touching the ledger. Struggling
// learners get a tier-2 choice, which must name one of the candidates.
func (r *Router) SelectTask(ctx context.Context, userID string, in SelectTaskInput) Outcome[TaskChoice] {
	fallback := ruleTaskChoice(in)
	if !r.config.Thresholds.NeedsEscalation(in.RecentAccuracy, in.ConsecutiveFailures) || len(in.Candidates) == 0 {
		r.metrics.RecordEscalation(string(OpSelectTask), int(ledger.TierRules), KindOK.String())
		return Outcome[TaskChoice]{Kind: KindOK, Tier: ledger.TierRules, Value: fallback}
	}

	call := attempt{
		op:        OpSelectTask,
		tier:      ledger.TierCheap,
		userID:    userID,
		prompt:    buildTaskSelectionPrompt(in),
		maxTokens: r.config.MaxTokens.TaskSelection,
	}
	return escalate(ctx, r, call, parseTaskChoice(in.Candidates), fallback, ledger.TierRules)
}

// GenerateWeeklyReport asks tier 3 for a personalized report and falls back
// to the template report at tier 0.
func (r *Router) GenerateWeeklyReport(ctx context.Context, userID string, in ReportInput) Outcome[Report] {
	call := attempt{
		op:        OpWeeklyReport,
		tier:      ledger.TierPremium,
		userID:    userID,
		prompt:    buildWeeklyReportPrompt(in),
		maxTokens: r.config.MaxTokens.WeeklyReport,
	}
	return escalate(ctx, r, call, parseReport, TemplateReport(in), ledger.TierTemplate)
}

// DiagnoseIntervention asks tier 2 why a learner is failing a module and
// falls back to recommending targeted practice at tier 1. Learners below the
// escalation thresholds get the tier-1 recommendation without a model call.
func (r *Router) DiagnoseIntervention(ctx context.Context, userID string, in DiagnosisInput) Outcome[Diagnosis] {
	if !r.config.Thresholds.NeedsEscalation(in.Accuracy, in.ConsecutiveFailures) {
		r.metrics.RecordEscalation(string(OpInterventionDiagnosis), int(ledger.TierRules), KindOK.String())
		return Outcome[Diagnosis]{Kind: KindOK, Tier: ledger.TierRules, Value: ruleDiagnosis(in)}
	}

	call := attempt{
		op:        OpInterventionDiagnosis,
		tier:      ledger.TierCheap,
		userID:    userID,
		prompt:    buildDiagnosisPrompt(in),
		maxTokens: r.config.MaxTokens.InterventionDiagnosis,
	}
	return escalate(ctx, r, call, parseDiagnosis, ruleDiagnosis(in), ledger.TierRules)
}

type attempt struct {
	op        Operation
	tier      ledger.Tier
	userID    string
	prompt    string
	maxTokens int
}

// escalate runs one model attempt and converts every failure into the
// fallback value at fallbackTier.
func escalate[T any](ctx context.Context, r *Router, call attempt, parse func(string) (T, error), fallback T, fallbackTier ledger.Tier) Outcome[T] {
	ctx = logging.WithOperation(logging.WithUser(ctx, call.userID), string(call.op))
	logger := logging.FromContext(ctx, r.logger).With("tier", call.tier.String())

	fail := func(reason FallbackReason, cost float64) Outcome[T] {
		r.metrics.RecordEscalation(string(call.op), int(call.tier), KindFallback.String())
		r.metrics.RecordFallback(string(call.op), string(reason))
		logger.Info("escalation fell back", "reason", reason, "cost_usd", cost)
		return Outcome[T]{Kind: KindFallback, Tier: fallbackTier, Value: fallback, CostUSD: cost, Reason: reason}
	}

	tc := r.tierConfig(call.tier)
	if !tc.IsEnabled() {
		return fail(ReasonDisabled, 0)
	}
	provider, err := r.providers.Get(tc.Provider)
	if err != nil {
		return fail(ReasonDisabled, 0)
	}

	decision, err := r.budget.CheckBudget(ctx, call.userID, call.tier)
	if err != nil {
		logger.Error("budget check failed", "error", err)
		return fail(ReasonLedgerUnavailable, 0)
	}
	if !decision.Allowed {
		return fail(denyReason(decision.Reason), 0)
	}

	if r.limiter != nil && !r.limiter.Allow() {
		return fail(ReasonRateLimited, 0)
	}

	// The weekly slot is claimed atomically just before the call so that
	// concurrent premium requests cannot both pass the advisory check.
	if call.tier == ledger.TierPremium {
		decision, err = r.budget.Reserve(ctx, call.userID)
		if err != nil {
			logger.Error("tier3 reservation failed", "error", err)
			return fail(ReasonLedgerUnavailable, 0)
		}
		if !decision.Allowed {
			return fail(denyReason(decision.Reason), 0)
		}
	}

	callCtx := ctx
	if tc.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, tc.Timeout)
		defer cancel()
	}

	req := &providers.CompletionRequest{
		Model:     tc.Model,
		Messages:  []providers.Message{{Role: providers.RoleUser, Content: call.prompt}},
		MaxTokens: call.maxTokens,
		Metadata: map[string]string{
			"user_id":   call.userID,
			"operation": string(call.op),
		},
	}

	start := time.Now()
	resp, err := provider.SendCompletion(callCtx, req)
	latency := time.Since(start)
	r.metrics.RecordProviderLatency(provider.GetName(), int(call.tier), latency)

	record := &usage.Record{
		UserID:    call.userID,
		Operation: string(call.op),
		Tier:      call.tier,
		Provider:  provider.GetName(),
		Model:     tc.Model,
		LatencyMs: latency.Milliseconds(),
		Timestamp: r.now().UTC(),
	}

	if err != nil {
		reason := classifyProviderError(callCtx, err)
		record.ErrorMessage = err.Error()
		logger.Warn("provider call failed", "provider", provider.GetName(), "error", err, "latency_ms", latency.Milliseconds())
		r.recordUsage(ctx, logger, record)
		return fail(reason, 0)
	}

	record.TokensIn = resp.Usage.PromptTokens
	record.TokensOut = resp.Usage.CompletionTokens
	record.CostUSD = Cost(record.TokensIn, record.TokensOut, tc.InputRatePer1K, tc.OutputRatePer1K)

	value, perr := parse(resp.Content)
	if perr != nil {
		record.ErrorMessage = perr.Error()
		logger.Warn("model reply rejected", "error", perr)
		r.recordUsage(ctx, logger, record)
		return fail(ReasonInvalidResponse, record.CostUSD)
	}

	record.Success = true
	r.recordUsage(ctx, logger, record)
	r.metrics.RecordEscalation(string(call.op), int(call.tier), KindOK.String())
	logger.Info("escalation succeeded",
		"model", tc.Model,
		"tokens_in", record.TokensIn,
		"tokens_out", record.TokensOut,
		"cost_usd", record.CostUSD,
		"latency_ms", record.LatencyMs,
	)
	return Outcome[T]{Kind: KindOK, Tier: call.tier, Value: value, CostUSD: record.CostUSD}
}

// recordUsage commits the attempt. The tier-3 slot was already reserved, so
// the commit never counts it again. A failed commit is logged; the result
// stands.
func (r *Router) recordUsage(ctx context.Context, logger *slog.Logger, record *usage.Record) {
	if err := r.recorder.Record(context.WithoutCancel(ctx), record, false); err != nil {
		logger.Error("failed to commit usage", "record_id", record.ID, "cost_usd", record.CostUSD, "error", err)
	}
}

func (r *Router) tierConfig(tier ledger.Tier) config.TierConfig {
	if tier == ledger.TierPremium {
		return r.config.Tier3
	}
	return r.config.Tier2
}

func denyReason(reason ledger.DenyReason) FallbackReason {
	if reason == ledger.DenyTier3Limit {
		return ReasonTier3Limit
	}
	return ReasonBudgetDenied
}

func classifyProviderError(ctx context.Context, err error) FallbackReason {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ReasonProviderTimeout
	}
	switch providers.Classify(err) {
	case providers.FailureTimeout:
		return ReasonProviderTimeout
	case providers.FailureRateLimited:
		return ReasonRateLimited
	default:
		return ReasonProviderError
	}
}

// String describes the outcome for logs and CLI output.
func (o Outcome[T]) String() string {
	if o.Kind == KindOK {
		return fmt.Sprintf("%s ok ($%.6f)", o.Tier, o.CostUSD)
	}
	return fmt.Sprintf("%s fallback: %s", o.Tier, o.Reason)
}
