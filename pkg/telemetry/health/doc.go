// Package health serves liveness and readiness probes for the long-running
// engine process.
//
// Liveness only reports that the process is up. Readiness runs every
// registered component check (ledger backend, data store, provider set)
// concurrently, each bounded by the checker timeout, and answers 503 when any
// of them fails.
//
//	checker := health.New(2 * time.Second)
//	checker.Register("ledger", ledgerStore.Ping)
//	checker.Register("providers", health.NonEmpty("providers", manager.Names))
//
//	mux := http.NewServeMux()
//	checker.Mount(mux, health.BuildInfo{Version: "0.1.0"})
package health
