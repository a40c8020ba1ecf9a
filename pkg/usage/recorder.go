package usage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"momentum-hq/engine/pkg/ledger"
	"momentum-hq/engine/pkg/telemetry/metrics"
)

// ErrBufferFull is wrapped in a RecorderError when the append queue is full.
var ErrBufferFull = errors.New("usage buffer full")

// ErrClosed is wrapped in a RecorderError when the recorder has shut down.
var ErrClosed = errors.New("usage recorder closed")

// Committer is the ledger write the recorder drives.
type Committer interface {
	CommitUsage(ctx context.Context, userID string, tier ledger.Tier, costUSD float64, isTier3 bool) error
}

// Config contains configuration for the usage recorder.
type Config struct {
	// Enabled enables appending records to storage. The ledger commit
	// happens regardless.
	Enabled bool

	// AsyncBuffer is the size of the async write channel buffer.
	// Default: 1000
	AsyncBuffer int

	// WriteTimeout is the timeout for writing a record to storage.
	// Default: 5 seconds
	WriteTimeout time.Duration
}

// DefaultConfig returns the default recorder configuration.
func DefaultConfig() *Config {
	return &Config{
		Enabled:      true,
		AsyncBuffer:  1000,
		WriteTimeout: 5 * time.Second,
	}
}

// Recorder commits the cost of every escalation attempt to the ledger and
// appends a usage record to storage.
//
// The ledger commit is synchronous: cost is owed whether or not logging
// succeeds. The append is asynchronous and best effort. A full buffer drops
// the record with a warning rather than blocking the caller.
type Recorder struct {
	storage    Storage
	ledger     Committer
	config     *Config
	recordChan chan *Record
	wg         sync.WaitGroup
	done       chan struct{}
	closeOnce  sync.Once

	// mu orders enqueues against Close. A send made under the read lock
	// always lands before done is closed, so the worker drains it.
	mu     sync.RWMutex
	closed bool

	logger  *slog.Logger
	metrics *metrics.Collector
	now     func() time.Time
}

// NewRecorder creates a recorder and starts its background writer.
func NewRecorder(storage Storage, committer Committer, config *Config, collector *metrics.Collector) *Recorder {
	if config == nil {
		config = DefaultConfig()
	}
	if config.AsyncBuffer <= 0 {
		config.AsyncBuffer = 1000
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 5 * time.Second
	}

	r := &Recorder{
		storage:    storage,
		ledger:     committer,
		config:     config,
		recordChan: make(chan *Record, config.AsyncBuffer),
		done:       make(chan struct{}),
		logger:     slog.Default().With("component", "usage.recorder"),
		metrics:    collector,
		now:        time.Now,
	}

	r.wg.Add(1)
	go r.worker()

	r.logger.Info("usage recorder initialized",
		"enabled", config.Enabled,
		"async_buffer", config.AsyncBuffer,
		"write_timeout", config.WriteTimeout,
	)

	return r
}

// Record commits record.CostUSD to the ledger and queues the record for
// storage. isTier3 increments the ledger's tier-3 counters; callers that
// reserved the slot beforehand pass false.
//
// Only a failed ledger commit is returned as an error. Append problems are
// logged and counted.
func (r *Recorder) Record(ctx context.Context, record *Record, isTier3 bool) error {
	if record == nil {
		return fmt.Errorf("usage record cannot be nil")
	}
	if !record.Tier.CostBearing() {
		return fmt.Errorf("%w: usage records are for tiers 2 and 3, got %d", ledger.ErrInvalidTier, int(record.Tier))
	}
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = r.now().UTC()
	}

	if err := r.ledger.CommitUsage(ctx, record.UserID, record.Tier, record.CostUSD, isTier3); err != nil {
		r.logger.Error("ledger commit failed",
			"record_id", record.ID,
			"user_id", record.UserID,
			"cost_usd", record.CostUSD,
			"error", err,
		)
		return err
	}
	r.metrics.RecordCost(int(record.Tier), record.Model, record.CostUSD)

	if !r.config.Enabled {
		return nil
	}
	if err := r.enqueue(record); err != nil {
		r.logger.Warn("dropping usage record",
			"record_id", record.ID,
			"user_id", record.UserID,
			"error", err,
		)
	}
	return nil
}

func (r *Recorder) enqueue(record *Record) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		r.metrics.RecordUsageDropped("closed")
		return &RecorderError{RecordID: record.ID, Cause: ErrClosed}
	}

	select {
	case r.recordChan <- record:
		return nil
	default:
		r.metrics.RecordUsageDropped("buffer_full")
		return &RecorderError{RecordID: record.ID, Cause: ErrBufferFull}
	}
}

// Close drains queued records and waits for pending writes to complete. It
// is safe to call more than once.
func (r *Recorder) Close() error {
	r.closeOnce.Do(func() {
		r.logger.Info("shutting down usage recorder")
		r.mu.Lock()
		r.closed = true
		close(r.done)
		r.mu.Unlock()
		r.wg.Wait()
		r.logger.Info("usage recorder shut down complete")
	})
	return nil
}

func (r *Recorder) worker() {
	defer r.wg.Done()

	for {
		select {
		case record := <-r.recordChan:
			r.writeRecord(record)

		case <-r.done:
			for {
				select {
				case record := <-r.recordChan:
					r.writeRecord(record)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) writeRecord(record *Record) {
	ctx, cancel := context.WithTimeout(context.Background(), r.config.WriteTimeout)
	defer cancel()

	start := time.Now()
	if err := r.storage.Append(ctx, record); err != nil {
		r.metrics.RecordUsageDropped("storage_error")
		r.logger.Error("failed to store usage record",
			"record_id", record.ID,
			"user_id", record.UserID,
			"error", err,
		)
		return
	}

	r.logger.Debug("usage recorded",
		"record_id", record.ID,
		"user_id", record.UserID,
		"tier", record.Tier.String(),
		"cost_usd", record.CostUSD,
		"success", record.Success,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
