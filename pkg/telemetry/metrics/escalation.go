package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// EscalationMetrics tracks routing decisions.
//
// Metrics:
//   - momentum_escalations_total: decisions by operation, tier and outcome
//   - momentum_fallbacks_total: fallbacks by operation and reason
//   - momentum_budget_denials_total: ledger denials by tier and reason
//   - momentum_provider_latency_seconds: provider call latency
type EscalationMetrics struct {
	escalations     *prometheus.CounterVec
	fallbacks       *prometheus.CounterVec
	budgetDenials   *prometheus.CounterVec
	providerLatency *prometheus.HistogramVec
}

// NewEscalationMetrics creates and registers escalation metrics.
func NewEscalationMetrics(namespace string, registry *prometheus.Registry) *EscalationMetrics {
	em := &EscalationMetrics{
		escalations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "escalations_total",
				Help:      "Routed decisions by operation, serving tier and outcome",
			},
			[]string{"operation", "tier", "outcome"},
		),

		fallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fallbacks_total",
				Help:      "Decisions that fell back to a deterministic result",
			},
			[]string{"operation", "reason"},
		),

		budgetDenials: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "budget_denials_total",
				Help:      "Ledger denials by tier and reason",
			},
			[]string{"tier", "reason"},
		),

		providerLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "provider_latency_seconds",
				Help:      "Provider call latency in seconds",
				// Short completions: 100ms - 30s
				Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
			},
			[]string{"provider", "tier"},
		),
	}

	registry.MustRegister(
		em.escalations,
		em.fallbacks,
		em.budgetDenials,
		em.providerLatency,
	)

	return em
}

// RecordEscalation increments the decision counter.
func (em *EscalationMetrics) RecordEscalation(operation string, tier int, outcome string) {
	em.escalations.WithLabelValues(operation, strconv.Itoa(tier), outcome).Inc()
}

// RecordFallback increments the fallback counter.
func (em *EscalationMetrics) RecordFallback(operation, reason string) {
	em.fallbacks.WithLabelValues(operation, reason).Inc()
}

// RecordBudgetDenial increments the denial counter.
func (em *EscalationMetrics) RecordBudgetDenial(tier int, reason string) {
	em.budgetDenials.WithLabelValues(strconv.Itoa(tier), reason).Inc()
}

// RecordProviderLatency observes one provider call.
func (em *EscalationMetrics) RecordProviderLatency(provider string, tier int, latency time.Duration) {
	em.providerLatency.WithLabelValues(provider, strconv.Itoa(tier)).Observe(latency.Seconds())
}
