package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MaintenanceMetrics tracks scheduled job executions.
type MaintenanceMetrics struct {
	runs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
	affected *prometheus.GaugeVec
}

// NewMaintenanceMetrics creates and registers maintenance metrics.
func NewMaintenanceMetrics(namespace string, registry *prometheus.Registry) *MaintenanceMetrics {
	mm := &MaintenanceMetrics{
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "maintenance_runs_total",
				Help:      "Maintenance job runs by job and result",
			},
			[]string{"job", "result"},
		),

		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "maintenance_duration_seconds",
				Help:      "Maintenance job duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"job"},
		),

		affected: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "maintenance_rows_affected",
				Help:      "Rows changed by the most recent run of each job",
			},
			[]string{"job"},
		),
	}

	registry.MustRegister(mm.runs, mm.duration, mm.affected)

	return mm
}

// RecordRun records one job execution.
func (mm *MaintenanceMetrics) RecordRun(job, result string, duration time.Duration, affected int64) {
	mm.runs.WithLabelValues(job, result).Inc()
	mm.duration.WithLabelValues(job).Observe(duration.Seconds())
	if result == "success" {
		mm.affected.WithLabelValues(job).Set(float64(affected))
	}
}
