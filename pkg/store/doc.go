// Package store persists learners, streaks, the task catalogue and
// intervention swaps.
//
// Two backends implement Store: MemoryStore for tests and single-process
// runs, and SQLiteStore for durable deployments. Streak writes are
// compare-and-swap on StreakRecord.Version, and at most one intervention
// exists per user, module and UTC day.
package store
