package usage

import (
	"context"
	"fmt"
	"time"

	"momentum-hq/engine/pkg/ledger"
)

// Record is one cost-bearing escalation attempt. Records are append-only and
// never modified after they are written.
type Record struct {
	// Identity
	ID        string `json:"id"` // UUID v4
	UserID    string `json:"user_id"`
	Operation string `json:"operation"` // select_task, weekly_report, intervention_diagnosis

	// Call
	Tier     ledger.Tier `json:"tier"` // 2 or 3
	Provider string      `json:"provider"`
	Model    string      `json:"model"`

	// Accounting
	TokensIn  int     `json:"tokens_in"`
	TokensOut int     `json:"tokens_out"`
	CostUSD   float64 `json:"cost_usd"`
	LatencyMs int64   `json:"latency_ms"`

	// Outcome
	Success      bool   `json:"success"`
	ErrorMessage string `json:"error_message,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// Filter selects records from Storage. Zero fields match everything.
type Filter struct {
	UserID string
	Tier   ledger.Tier
	Since  time.Time
	Until  time.Time

	// Limit caps the number of results. Results are newest first.
	Limit int
}

// Matches reports whether r satisfies f.
func (f Filter) Matches(r *Record) bool {
	if f.UserID != "" && r.UserID != f.UserID {
		return false
	}
	if f.Tier != 0 && r.Tier != f.Tier {
		return false
	}
	if !f.Since.IsZero() && r.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && !r.Timestamp.Before(f.Until) {
		return false
	}
	return true
}

// Storage persists usage records.
type Storage interface {
	// Append writes a record. It must not modify existing records.
	Append(ctx context.Context, record *Record) error

	// List returns records matching the filter, newest first.
	List(ctx context.Context, filter Filter) ([]*Record, error)

	// Close releases resources.
	Close() error
}

// StorageError represents an error from the storage backend.
type StorageError struct {
	Backend   string // "memory", "sqlite"
	Operation string // "append", "list"
	Cause     error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return fmt.Sprintf("usage storage error [backend=%s, operation=%s]: %v", e.Backend, e.Operation, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *StorageError) Unwrap() error {
	return e.Cause
}

// NewStorageError creates a new StorageError.
func NewStorageError(backend, operation string, cause error) *StorageError {
	return &StorageError{Backend: backend, Operation: operation, Cause: cause}
}

// RecorderError represents a record that could not be queued.
type RecorderError struct {
	RecordID string
	Cause    error
}

// Error implements the error interface.
func (e *RecorderError) Error() string {
	return fmt.Sprintf("usage recorder error [record=%s]: %v", e.RecordID, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *RecorderError) Unwrap() error {
	return e.Cause
}
