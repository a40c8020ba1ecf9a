package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"momentum-hq/engine/pkg/usage"
)

// MemoryStorage implements usage.Storage in memory.
// Intended for tests and local runs.
type MemoryStorage struct {
	records []*usage.Record
	ids     map[string]struct{}
	mu      sync.RWMutex
}

// NewMemoryStorage creates an empty in-memory usage log.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{ids: make(map[string]struct{})}
}

// Append stores a copy of record.
func (s *MemoryStorage) Append(ctx context.Context, record *usage.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ids[record.ID]; ok {
		return usage.NewStorageError("memory", "append", fmt.Errorf("duplicate record id %s", record.ID))
	}
	recordCopy := *record
	s.records = append(s.records, &recordCopy)
	s.ids[record.ID] = struct{}{}
	return nil
}

// List returns matching records, newest first.
func (s *MemoryStorage) List(ctx context.Context, filter usage.Filter) ([]*usage.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []*usage.Record
	for _, r := range s.records {
		if filter.Matches(r) {
			recordCopy := *r
			results = append(results, &recordCopy)
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Timestamp.After(results[j].Timestamp)
	})
	if filter.Limit > 0 && len(results) > filter.Limit {
		results = results[:filter.Limit]
	}
	return results, nil
}

// Count returns the number of stored records.
func (s *MemoryStorage) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Close is a no-op.
func (s *MemoryStorage) Close() error {
	return nil
}
