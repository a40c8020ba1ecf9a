// Package telemetry groups the engine's observability packages.
//
//   - logging: slog setup and request-scoped attributes
//   - metrics: Prometheus collector for budget, escalation and maintenance
//   - health: liveness and readiness probes for `momentum run`
package telemetry
