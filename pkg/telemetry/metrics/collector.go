package metrics

import (
	"time"

	"momentum-hq/engine/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector owns every Prometheus metric the engine exports. It registers them
// on its own registry so tests and embedded deployments do not collide on the
// global one.
//
// All Record methods are safe on a nil *Collector, which lets components run
// without metrics wired.
type Collector struct {
	config   config.MetricsConfig
	registry *prometheus.Registry

	escalationMetrics  *EscalationMetrics
	costMetrics        *CostMetrics
	maintenanceMetrics *MaintenanceMetrics
}

// NewCollector creates a new metrics collector with the specified configuration
// and Prometheus registry. If registry is nil, a fresh registry is created.
func NewCollector(cfg config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if cfg.Namespace == "" {
		cfg.Namespace = config.DefaultMetricsPrefix
	}

	return &Collector{
		config:             cfg,
		registry:           registry,
		escalationMetrics:  NewEscalationMetrics(cfg.Namespace, registry),
		costMetrics:        NewCostMetrics(cfg.Namespace, registry),
		maintenanceMetrics: NewMaintenanceMetrics(cfg.Namespace, registry),
	}
}

// Registry returns the registry every metric is registered on.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// RecordEscalation records the outcome of one routed decision.
//
// Parameters:
//   - operation: engine operation ("select_task", "weekly_report", ...)
//   - tier: tier that produced the result (0 template, 1 rules, 2, 3)
//   - outcome: "ok" or "fallback"
func (c *Collector) RecordEscalation(operation string, tier int, outcome string) {
	if c == nil {
		return
	}
	c.escalationMetrics.RecordEscalation(operation, tier, outcome)
}

// RecordFallback records why a routed decision fell back to rules.
func (c *Collector) RecordFallback(operation, reason string) {
	if c == nil {
		return
	}
	c.escalationMetrics.RecordFallback(operation, reason)
}

// RecordBudgetDenial records a ledger denial for a tier.
func (c *Collector) RecordBudgetDenial(tier int, reason string) {
	if c == nil {
		return
	}
	c.escalationMetrics.RecordBudgetDenial(tier, reason)
}

// RecordProviderLatency records how long a provider call took.
func (c *Collector) RecordProviderLatency(provider string, tier int, latency time.Duration) {
	if c == nil {
		return
	}
	c.escalationMetrics.RecordProviderLatency(provider, tier, latency)
}

// RecordCost records money committed to the ledger for a tier and model.
func (c *Collector) RecordCost(tier int, model string, costUSD float64) {
	if c == nil {
		return
	}
	c.costMetrics.RecordCost(tier, model, costUSD)
}

// RecordUsageDropped counts usage records that could not be appended.
func (c *Collector) RecordUsageDropped(reason string) {
	if c == nil {
		return
	}
	c.costMetrics.RecordUsageDropped(reason)
}

// RecordMaintenanceRun records one maintenance job execution.
func (c *Collector) RecordMaintenanceRun(job, result string, duration time.Duration, affected int64) {
	if c == nil {
		return
	}
	c.maintenanceMetrics.RecordRun(job, result, duration, affected)
}
