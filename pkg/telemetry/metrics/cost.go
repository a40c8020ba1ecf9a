package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// CostMetrics tracks money committed to the budget ledger.
//
// Metrics:
//   - momentum_cost_usd_total: total committed cost by tier and model
//   - momentum_cost_per_call_usd: cost distribution per provider call
//   - momentum_usage_records_dropped_total: usage log appends that were lost
type CostMetrics struct {
	costTotal    *prometheus.CounterVec
	costPerCall  *prometheus.HistogramVec
	usageDropped *prometheus.CounterVec
}

// NewCostMetrics creates and registers cost metrics with the provided registry.
func NewCostMetrics(namespace string, registry *prometheus.Registry) *CostMetrics {
	cm := &CostMetrics{
		costTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cost_usd_total",
				Help:      "Total committed cost in USD by tier and model",
			},
			[]string{"tier", "model"},
		),

		costPerCall: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "cost_per_call_usd",
				Help:      "Cost distribution per provider call in USD",
				// $0.0001 to $0.1, tier 2 calls sit at the low end
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
			},
			[]string{"tier"},
		),

		usageDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "usage_records_dropped_total",
				Help:      "Usage records that could not be appended to the log",
			},
			[]string{"reason"},
		),
	}

	registry.MustRegister(
		cm.costTotal,
		cm.costPerCall,
		cm.usageDropped,
	)

	return cm
}

// RecordCost records the cost of a single provider call. Zero or negative
// costs are ignored.
func (cm *CostMetrics) RecordCost(tier int, model string, costUSD float64) {
	if costUSD <= 0 {
		return
	}
	t := strconv.Itoa(tier)
	cm.costTotal.WithLabelValues(t, model).Add(costUSD)
	cm.costPerCall.WithLabelValues(t).Observe(costUSD)
}

// RecordUsageDropped counts a lost usage log append.
func (cm *CostMetrics) RecordUsageDropped(reason string) {
	cm.usageDropped.WithLabelValues(reason).Inc()
}
