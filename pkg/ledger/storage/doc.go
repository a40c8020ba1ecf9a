// Package storage provides ledger.Store backends.
//
// # Backends
//
//   - MemoryStore: process-local map, for tests and single-process demos
//   - SQLiteStore: single-file durable store using IMMEDIATE transactions
//   - PostgresStore: one atomic INSERT ... ON CONFLICT DO UPDATE per delta
//   - RedisStore: one hash per user, updated by a Lua script
//
// Every backend makes Upsert atomic with respect to its guard and makes the
// weekly and monthly resets idempotent within a window.
package storage
