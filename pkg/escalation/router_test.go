package escalation_test

import (
	"context"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	mtestutil "momentum-hq/engine/internal/testutil"
	"momentum-hq/engine/pkg/config"
	"momentum-hq/engine/pkg/escalation"
	"momentum-hq/engine/pkg/ledger"
	ledgerstorage "momentum-hq/engine/pkg/ledger/storage"
	"momentum-hq/engine/pkg/providerfactory"
	"momentum-hq/engine/pkg/providers"
	"momentum-hq/engine/pkg/rules"
	"momentum-hq/engine/pkg/telemetry/metrics"
	"momentum-hq/engine/pkg/usage"
	usagestorage "momentum-hq/engine/pkg/usage/storage"
)

const testProvider = "scripted"

var testNow = time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

type harness struct {
	router   *escalation.Router
	tracker  *ledger.Tracker
	recorder *usage.Recorder
	records  *usagestorage.MemoryStorage
	provider *mtestutil.ScriptedProvider
	metrics  *metrics.Collector
}

func testConfig() escalation.Config {
	return escalation.Config{
		Tier2: config.TierConfig{
			Provider:        testProvider,
			Model:           "claude-3-5-haiku-latest",
			InputRatePer1K:  0.00025,
			OutputRatePer1K: 0.00125,
			Timeout:         time.Second,
		},
		Tier3: config.TierConfig{
			Provider:        testProvider,
			Model:           "claude-sonnet-4-20250514",
			InputRatePer1K:  0.003,
			OutputRatePer1K: 0.015,
			Timeout:         time.Second,
		},
		MaxTokens: config.MaxTokensConfig{
			TaskSelection:         50,
			WeeklyReport:          500,
			InterventionDiagnosis: 200,
		},
		Thresholds: rules.DefaultThresholds(),
	}
}

func newHarness(t *testing.T, cfg escalation.Config, replies ...mtestutil.Reply) *harness {
	t.Helper()
	clock := mtestutil.NewClock(testNow)

	tracker := ledger.NewTracker(ledgerstorage.NewMemoryStore(), ledger.Config{
		MonthlyBudgetUSD: 0.50,
		Tier3WeeklyLimit: 1,
	}, ledger.WithClock(clock.Now))

	collector := metrics.NewCollector(config.MetricsConfig{Enabled: true, Namespace: "test"}, nil)
	records := usagestorage.NewMemoryStorage()
	recorder := usage.NewRecorder(records, tracker, usage.DefaultConfig(), collector)
	t.Cleanup(func() { recorder.Close() })

	provider := mtestutil.NewScriptedProvider(testProvider, replies...)
	manager := providerfactory.NewManager()
	manager.Add(provider)
	t.Cleanup(func() { manager.Close() })

	router := escalation.NewRouter(tracker, recorder, manager, cfg,
		escalation.WithMetrics(collector),
		escalation.WithClock(clock.Now),
	)
	return &harness{
		router:   router,
		tracker:  tracker,
		recorder: recorder,
		records:  records,
		provider: provider,
		metrics:  collector,
	}
}

// flushedRecords closes the recorder and returns every stored usage record.
func (h *harness) flushedRecords(t *testing.T) []*usage.Record {
	t.Helper()
	h.recorder.Close()
	records, err := h.records.List(context.Background(), usage.Filter{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	return records
}

func (h *harness) spend(t *testing.T, userID string) *ledger.MonthlySummary {
	t.Helper()
	summary, err := h.tracker.Summary(context.Background(), userID)
	if err != nil {
		t.Fatalf("Summary failed: %v", err)
	}
	return summary
}

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

var candidates = []rules.TaskRef{
	{ID: "101", Title: "Reading Skimming", Module: rules.ModuleReading},
	{ID: "102", Title: "Writing Task 2 Strategy", Module: rules.ModuleWriting},
	{ID: "103", Title: "Listening Section 3", Module: rules.ModuleListening},
}

func strugglingInput() escalation.SelectTaskInput {
	return escalation.SelectTaskInput{
		RecentAccuracy:      40,
		ConsecutiveFailures: 3,
		WeakModules:         []string{rules.ModuleWriting},
		RecentTasks:         []string{"Writing Task 1 (45%)", "Writing Task 2 (38%)"},
		Candidates:          candidates,
	}
}

func TestCost(t *testing.T) {
	tests := []struct {
		name            string
		tokensIn        int
		tokensOut       int
		inRate, outRate float64
		want            float64
	}{
		{"tier2 rates", 500, 50, 0.00025, 0.00125, 0.0001875},
		{"tier3 rates", 1000, 500, 0.003, 0.015, 0.0105},
		{"no tokens", 0, 0, 0.003, 0.015, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := escalation.Cost(tt.tokensIn, tt.tokensOut, tt.inRate, tt.outRate)
			if !approxEqual(got, tt.want) {
				t.Errorf("Cost = %v, want %v", got, tt.want)
			}
			if math.Round(got*1e6)/1e6 != math.Round(tt.want*1e6)/1e6 {
				t.Errorf("Cost rounds to %v, want %v", math.Round(got*1e6)/1e6, tt.want)
			}
		})
	}
}

func TestSelectTask_NotStrugglingUsesRules(t *testing.T) {
	h := newHarness(t, testConfig(), mtestutil.Reply{Content: "101"})

	in := strugglingInput()
	in.RecentAccuracy = 85
	in.ConsecutiveFailures = 0

	out := h.router.SelectTask(context.Background(), "u1", in)

	if !out.OK() || out.Tier != ledger.TierRules || out.CostUSD != 0 {
		t.Fatalf("expected tier-1 ok outcome, got %+v", out)
	}
	if out.Value.TaskID != "102" {
		t.Errorf("expected weak-module candidate 102, got %s", out.Value.TaskID)
	}
	if out.Value.Reasoning != "Rule-based selection" {
		t.Errorf("unexpected reasoning %q", out.Value.Reasoning)
	}
	if h.provider.Calls() != 0 {
		t.Errorf("expected no provider calls, got %d", h.provider.Calls())
	}
}

func TestSelectTask_Tier2Success(t *testing.T) {
	h := newHarness(t, testConfig(), mtestutil.Reply{Content: " 103\n", TokensIn: 500, TokensOut: 50})

	out := h.router.SelectTask(context.Background(), "u1", strugglingInput())

	if !out.OK() || out.Tier != ledger.TierCheap {
		t.Fatalf("expected tier-2 ok outcome, got %+v", out)
	}
	if out.Value.TaskID != "103" {
		t.Errorf("expected 103, got %s", out.Value.TaskID)
	}
	if !approxEqual(out.CostUSD, 0.0001875) {
		t.Errorf("expected cost 0.0001875, got %v", out.CostUSD)
	}

	req := h.provider.LastRequest()
	if req.Model != "claude-3-5-haiku-latest" || req.MaxTokens != 50 {
		t.Errorf("unexpected request model=%s max_tokens=%d", req.Model, req.MaxTokens)
	}
	prompt := req.Messages[0].Content
	for _, want := range []string{"Available task IDs: 101, 102, 103", "Weak areas: writing", "Writing Task 2 (38%)"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}

	if got := h.spend(t, "u1").SpendUSD; !approxEqual(got, 0.0001875) {
		t.Errorf("expected ledger spend 0.0001875, got %v", got)
	}

	records := h.flushedRecords(t)
	if len(records) != 1 {
		t.Fatalf("expected 1 usage record, got %d", len(records))
	}
	r := records[0]
	if !r.Success || r.Tier != ledger.TierCheap || r.TokensIn != 500 || r.Operation != "select_task" {
		t.Errorf("unexpected usage record: %+v", r)
	}
	if !r.Timestamp.Equal(testNow) {
		t.Errorf("expected record timestamp from the router clock, got %v", r.Timestamp)
	}
}

func TestSelectTask_BudgetDeniedNeverCallsProvider(t *testing.T) {
	h := newHarness(t, testConfig(), mtestutil.Reply{Content: "101"})
	ctx := context.Background()

	if err := h.tracker.CommitUsage(ctx, "u1", ledger.TierCheap, 0.52, false); err != nil {
		t.Fatalf("CommitUsage failed: %v", err)
	}

	out := h.router.SelectTask(ctx, "u1", strugglingInput())

	if out.OK() || out.Tier != ledger.TierRules || out.Reason != escalation.ReasonBudgetDenied {
		t.Fatalf("expected tier-1 budget fallback, got %+v", out)
	}
	if out.Value.TaskID != "102" || out.CostUSD != 0 {
		t.Errorf("unexpected fallback value: %+v", out)
	}
	if h.provider.Calls() != 0 {
		t.Errorf("provider called %d times after denial", h.provider.Calls())
	}
	if n, _ := testutil.GatherAndCount(h.metrics.Registry(), "test_fallbacks_total"); n != 1 {
		t.Errorf("expected 1 fallback series, got %d", n)
	}
}

func TestSelectTask_Fallbacks(t *testing.T) {
	tests := []struct {
		name       string
		reply      mtestutil.Reply
		wantReason escalation.FallbackReason
		wantCost   float64
		timeout    time.Duration
	}{
		{
			name:       "not a candidate",
			reply:      mtestutil.Reply{Content: "I suggest task 999", TokensIn: 1000, TokensOut: 100},
			wantReason: escalation.ReasonInvalidResponse,
			wantCost:   0.000375,
		},
		{
			name:       "provider error",
			reply:      mtestutil.Reply{Err: &providers.ProviderError{Provider: testProvider, StatusCode: 500, Message: "boom"}},
			wantReason: escalation.ReasonProviderError,
		},
		{
			name:       "upstream rate limit",
			reply:      mtestutil.Reply{Err: &providers.RateLimitError{Provider: testProvider, RetryAfter: time.Second}},
			wantReason: escalation.ReasonRateLimited,
		},
		{
			name:       "timeout",
			reply:      mtestutil.Reply{Block: true},
			wantReason: escalation.ReasonProviderTimeout,
			timeout:    30 * time.Millisecond,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			if tt.timeout > 0 {
				cfg.Tier2.Timeout = tt.timeout
			}
			h := newHarness(t, cfg, tt.reply)

			out := h.router.SelectTask(context.Background(), "u1", strugglingInput())

			if out.Kind != escalation.KindFallback || out.Reason != tt.wantReason {
				t.Fatalf("expected fallback %s, got %+v", tt.wantReason, out)
			}
			if out.Tier != ledger.TierRules || out.Value.TaskID != "102" {
				t.Errorf("expected tier-1 rule choice, got %+v", out)
			}
			if !approxEqual(out.CostUSD, tt.wantCost) {
				t.Errorf("expected cost %v, got %v", tt.wantCost, out.CostUSD)
			}
			if got := h.spend(t, "u1").SpendUSD; !approxEqual(got, tt.wantCost) {
				t.Errorf("expected ledger spend %v, got %v", tt.wantCost, got)
			}

			records := h.flushedRecords(t)
			if len(records) != 1 || records[0].Success || records[0].ErrorMessage == "" {
				t.Errorf("expected one failed usage record, got %+v", records)
			}
		})
	}
}

func TestSelectTask_RateLimiterRefuses(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit = config.RateLimitConfig{RequestsPerMinute: 1, Burst: 1}
	h := newHarness(t, cfg, mtestutil.Reply{Content: "101", TokensIn: 10, TokensOut: 1})
	ctx := context.Background()

	first := h.router.SelectTask(ctx, "u1", strugglingInput())
	second := h.router.SelectTask(ctx, "u2", strugglingInput())

	if !first.OK() {
		t.Fatalf("expected first call to succeed, got %+v", first)
	}
	if second.Reason != escalation.ReasonRateLimited {
		t.Errorf("expected rate_limited, got %+v", second)
	}
	if h.provider.Calls() != 1 {
		t.Errorf("expected 1 provider call, got %d", h.provider.Calls())
	}
}

func TestSelectTask_DisabledOrMissingProvider(t *testing.T) {
	disabled := false

	tests := []struct {
		name   string
		mutate func(*escalation.Config)
	}{
		{"tier disabled", func(c *escalation.Config) { c.Tier2.Enabled = &disabled }},
		{"provider missing", func(c *escalation.Config) { c.Tier2.Provider = "absent" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			h := newHarness(t, cfg, mtestutil.Reply{Content: "101"})

			out := h.router.SelectTask(context.Background(), "u1", strugglingInput())
			if out.Reason != escalation.ReasonDisabled || out.Tier != ledger.TierRules {
				t.Errorf("expected disabled fallback, got %+v", out)
			}
			if h.provider.Calls() != 0 {
				t.Errorf("expected no provider calls, got %d", h.provider.Calls())
			}
		})
	}
}

func TestGenerateWeeklyReport_WeeklyCap(t *testing.T) {
	h := newHarness(t, testConfig(), mtestutil.Reply{Content: "Great week!", TokensIn: 1000, TokensOut: 500})
	ctx := context.Background()
	in := escalation.ReportInput{WeekNumber: 3, TasksCompleted: 9, PracticeMinutes: 180, CompletionRate: 64.3}

	first := h.router.GenerateWeeklyReport(ctx, "u1", in)
	if !first.OK() || first.Tier != ledger.TierPremium || first.Value.Markdown != "Great week!" {
		t.Fatalf("expected tier-3 report, got %+v", first)
	}
	if !approxEqual(first.CostUSD, 0.0105) {
		t.Errorf("expected cost 0.0105, got %v", first.CostUSD)
	}
	if req := h.provider.LastRequest(); req.MaxTokens != 500 || req.Model != "claude-sonnet-4-20250514" {
		t.Errorf("unexpected request model=%s max_tokens=%d", req.Model, req.MaxTokens)
	}

	second := h.router.GenerateWeeklyReport(ctx, "u1", in)
	if second.OK() || second.Reason != escalation.ReasonTier3Limit || second.Tier != ledger.TierTemplate {
		t.Fatalf("expected template fallback on weekly cap, got %+v", second)
	}
	if !strings.Contains(second.Value.Markdown, "## Week 3 Summary") {
		t.Errorf("expected template report, got %q", second.Value.Markdown)
	}

	summary := h.spend(t, "u1")
	if summary.Tier3CallsThisWeek != 1 {
		t.Errorf("expected 1 tier-3 call this week, got %d", summary.Tier3CallsThisWeek)
	}
	if h.provider.Calls() != 1 {
		t.Errorf("expected 1 provider call, got %d", h.provider.Calls())
	}
}

func TestGenerateWeeklyReport_FailedAttemptConsumesSlot(t *testing.T) {
	h := newHarness(t, testConfig(),
		mtestutil.Reply{Err: &providers.ProviderError{Provider: testProvider, Message: "overloaded"}},
		mtestutil.Reply{Content: "report"},
	)
	ctx := context.Background()

	first := h.router.GenerateWeeklyReport(ctx, "u1", escalation.ReportInput{WeekNumber: 1})
	if first.Reason != escalation.ReasonProviderError || first.Tier != ledger.TierTemplate || first.CostUSD != 0 {
		t.Fatalf("expected provider_error template fallback, got %+v", first)
	}

	second := h.router.GenerateWeeklyReport(ctx, "u1", escalation.ReportInput{WeekNumber: 1})
	if second.Reason != escalation.ReasonTier3Limit {
		t.Errorf("expected tier3_limit after a failed attempt, got %+v", second)
	}
	if summary := h.spend(t, "u1"); summary.SpendUSD != 0 || summary.Tier3CallsThisWeek != 1 {
		t.Errorf("unexpected ledger after failed attempt: %+v", summary)
	}
}

func TestGenerateWeeklyReport_ConcurrentRequestsRespectCap(t *testing.T) {
	h := newHarness(t, testConfig(), mtestutil.Reply{Content: "report", TokensIn: 100, TokensOut: 100})
	ctx := context.Background()

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out := h.router.GenerateWeeklyReport(ctx, "u1", escalation.ReportInput{WeekNumber: 2})
			if out.OK() {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if ok != 1 {
		t.Errorf("expected exactly one tier-3 report, got %d", ok)
	}
	if h.provider.Calls() != 1 {
		t.Errorf("expected exactly one provider call, got %d", h.provider.Calls())
	}
}

func TestGenerateWeeklyReport_Tier3Disabled(t *testing.T) {
	disabled := false
	cfg := testConfig()
	cfg.Tier3.Enabled = &disabled
	h := newHarness(t, cfg, mtestutil.Reply{Content: "report"})

	out := h.router.GenerateWeeklyReport(context.Background(), "u1", escalation.ReportInput{WeekNumber: 4})
	if out.Reason != escalation.ReasonDisabled || out.Tier != ledger.TierTemplate {
		t.Errorf("expected disabled template fallback, got %+v", out)
	}
	if summary := h.spend(t, "u1"); summary.Tier3CallsThisWeek != 0 {
		t.Errorf("disabled tier consumed a slot: %+v", summary)
	}
}

func TestDiagnoseIntervention(t *testing.T) {
	tests := []struct {
		name     string
		reply    string
		wantOK   bool
		wantType string
	}{
		{
			name:     "json in prose",
			reply:    "Here you go:\n```json\n{\"diagnosis\": \"Weak paragraph structure\", \"intervention_type\": \"strategy_video\", \"specific_recommendation\": \"Watch the coherence video\"}\n```",
			wantOK:   true,
			wantType: escalation.InterventionStrategyVideo,
		},
		{
			name:     "unknown intervention type",
			reply:    `{"diagnosis": "x", "intervention_type": "nap", "specific_recommendation": "rest"}`,
			wantType: escalation.InterventionTargetedPractice,
		},
		{
			name:     "not json",
			reply:    "Practice more.",
			wantType: escalation.InterventionTargetedPractice,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, testConfig(), mtestutil.Reply{Content: tt.reply, TokensIn: 200, TokensOut: 60})

			out := h.router.DiagnoseIntervention(context.Background(), "u1", escalation.DiagnosisInput{
				Accuracy:            42,
				Module:              rules.ModuleWriting,
				ConsecutiveFailures: 2,
			})

			if out.OK() != tt.wantOK {
				t.Fatalf("OK() = %v, want %v (%+v)", out.OK(), tt.wantOK, out)
			}
			if out.Value.InterventionType != tt.wantType {
				t.Errorf("intervention type = %q, want %q", out.Value.InterventionType, tt.wantType)
			}
			if !tt.wantOK && (out.Reason != escalation.ReasonInvalidResponse || out.Tier != ledger.TierRules) {
				t.Errorf("expected invalid_response at tier 1, got %+v", out)
			}
			if req := h.provider.LastRequest(); !strings.Contains(req.Messages[0].Content, "Module: writing") {
				t.Errorf("prompt missing module: %s", req.Messages[0].Content)
			}
		})
	}
}

func TestDiagnoseIntervention_BelowThresholdsUsesRules(t *testing.T) {
	cfg := testConfig()
	cfg.Thresholds.EscalationAccuracy = 30
	cfg.Thresholds.EscalationFailures = 5

	tests := []struct {
		name     string
		accuracy float64
		failures int
		wantTier ledger.Tier
	}{
		{"near miss", 55, 1, ledger.TierRules},
		{"at accuracy threshold", 30, 4, ledger.TierRules},
		{"low accuracy", 29, 1, ledger.TierCheap},
		{"repeated failures", 55, 5, ledger.TierCheap},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply := `{"diagnosis": "x", "intervention_type": "strategy_video", "specific_recommendation": "watch"}`
			h := newHarness(t, cfg, mtestutil.Reply{Content: reply, TokensIn: 100, TokensOut: 20})

			out := h.router.DiagnoseIntervention(context.Background(), "u1", escalation.DiagnosisInput{
				Accuracy:            tt.accuracy,
				Module:              rules.ModuleWriting,
				ConsecutiveFailures: tt.failures,
			})

			if !out.OK() || out.Tier != tt.wantTier {
				t.Fatalf("expected ok outcome at tier %d, got %+v", tt.wantTier, out)
			}
			wantCalls := 0
			if tt.wantTier == ledger.TierCheap {
				wantCalls = 1
			}
			if h.provider.Calls() != wantCalls {
				t.Errorf("provider calls = %d, want %d", h.provider.Calls(), wantCalls)
			}
			if tt.wantTier == ledger.TierRules {
				if out.CostUSD != 0 || out.Value.InterventionType != escalation.InterventionTargetedPractice {
					t.Errorf("expected free targeted_practice, got %+v", out)
				}
			}
		})
	}
}
