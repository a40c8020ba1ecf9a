// Package storage provides usage.Storage backends: an in-memory log for
// tests and an append-only SQLite table.
package storage
