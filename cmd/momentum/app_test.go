package main

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"momentum-hq/engine/pkg/config"
	"momentum-hq/engine/pkg/ledger"
)

func TestNewApp_LedgerDenialsReachMetrics(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.Storage.Ledger = "memory"
	cfg.Storage.Data = "memory"
	cfg.Telemetry.Metrics.Enabled = true

	ctx := context.Background()
	a, err := newApp(ctx, cfg)
	if err != nil {
		t.Fatalf("newApp failed: %v", err)
	}
	defer a.Close()

	if err := a.ledger.CommitUsage(ctx, "u1", ledger.TierCheap, cfg.Budget.MonthlyBudgetUSD+0.01, false); err != nil {
		t.Fatalf("CommitUsage failed: %v", err)
	}
	d, err := a.ledger.CheckBudget(ctx, "u1", ledger.TierCheap)
	if err != nil {
		t.Fatalf("CheckBudget failed: %v", err)
	}
	if d.Allowed {
		t.Fatalf("expected a denial past the monthly budget, got %+v", d)
	}

	n, err := testutil.GatherAndCount(a.metrics.Registry(), "momentum_budget_denials_total")
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected one budget denial series, got %d", n)
	}
}
