// Package metrics provides Prometheus metrics for the Momentum engine.
//
// # Metrics Categories
//
//   - Escalation: decisions per tier and outcome, fallbacks by reason, ledger
//     denials and provider latency
//   - Cost: committed USD by tier and model, dropped usage records
//   - Maintenance: scheduled job runs, duration and rows affected
//
// # Usage
//
//	collector := metrics.NewCollector(cfg.Telemetry.Metrics, nil)
//	collector.RecordEscalation("select_task", 2, "ok")
//	collector.RecordCost(2, "claude-3-5-haiku-latest", 0.0001875)
//	http.Handle("/metrics", collector.Handler())
//
// A nil *Collector is valid and records nothing.
package metrics
