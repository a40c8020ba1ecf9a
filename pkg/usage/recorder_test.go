package usage_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"momentum-hq/engine/pkg/config"
	"momentum-hq/engine/pkg/ledger"
	"momentum-hq/engine/pkg/telemetry/metrics"
	"momentum-hq/engine/pkg/usage"
	"momentum-hq/engine/pkg/usage/storage"
)

type commit struct {
	userID  string
	tier    ledger.Tier
	cost    float64
	isTier3 bool
}

type fakeCommitter struct {
	mu      sync.Mutex
	commits []commit
	err     error
}

func (f *fakeCommitter) CommitUsage(_ context.Context, userID string, tier ledger.Tier, costUSD float64, isTier3 bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.commits = append(f.commits, commit{userID, tier, costUSD, isTier3})
	return nil
}

// failingStorage rejects every append.
type failingStorage struct{}

func (failingStorage) Append(context.Context, *usage.Record) error {
	return errors.New("disk full")
}

func (failingStorage) List(context.Context, usage.Filter) ([]*usage.Record, error) {
	return nil, nil
}

func (failingStorage) Close() error { return nil }

// blockingStorage holds every append until release is closed.
type blockingStorage struct {
	release chan struct{}
	*storage.MemoryStorage
}

func (b *blockingStorage) Append(ctx context.Context, r *usage.Record) error {
	<-b.release
	return b.MemoryStorage.Append(ctx, r)
}

func TestRecorder_CommitsAndAppends(t *testing.T) {
	store := storage.NewMemoryStorage()
	committer := &fakeCommitter{}
	rec := usage.NewRecorder(store, committer, usage.DefaultConfig(), nil)

	r := &usage.Record{UserID: "u", Operation: "select_task", Tier: ledger.TierCheap, Model: "haiku", CostUSD: 0.0001875, Success: true}
	if err := rec.Record(context.Background(), r, false); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if len(committer.commits) != 1 || committer.commits[0].cost != 0.0001875 {
		t.Errorf("expected one ledger commit, got %+v", committer.commits)
	}
	if store.Count() != 1 {
		t.Fatalf("expected 1 stored record, got %d", store.Count())
	}
	got, _ := store.List(context.Background(), usage.Filter{})
	if got[0].ID == "" {
		t.Error("expected generated record id")
	}
	if got[0].Timestamp.IsZero() {
		t.Error("expected timestamp to be set")
	}
}

func TestRecorder_LedgerFailureIsReturned(t *testing.T) {
	store := storage.NewMemoryStorage()
	committer := &fakeCommitter{err: errors.New("db down")}
	rec := usage.NewRecorder(store, committer, usage.DefaultConfig(), nil)
	defer rec.Close()

	err := rec.Record(context.Background(), &usage.Record{UserID: "u", Tier: ledger.TierCheap}, false)
	if err == nil {
		t.Fatal("expected ledger failure to be returned")
	}
}

func TestRecorder_AppendFailureKeepsCommit(t *testing.T) {
	committer := &fakeCommitter{}
	rec := usage.NewRecorder(failingStorage{}, committer, usage.DefaultConfig(), nil)

	err := rec.Record(context.Background(), &usage.Record{UserID: "u", Tier: ledger.TierPremium, CostUSD: 0.0105}, true)
	if err != nil {
		t.Fatalf("expected append failure to be swallowed, got %v", err)
	}
	rec.Close()

	if len(committer.commits) != 1 || !committer.commits[0].isTier3 {
		t.Errorf("expected tier3 ledger commit to stand, got %+v", committer.commits)
	}
}

func TestRecorder_RejectsFreeTiers(t *testing.T) {
	rec := usage.NewRecorder(storage.NewMemoryStorage(), &fakeCommitter{}, usage.DefaultConfig(), nil)
	defer rec.Close()

	err := rec.Record(context.Background(), &usage.Record{UserID: "u", Tier: ledger.TierRules}, false)
	if !errors.Is(err, ledger.ErrInvalidTier) {
		t.Errorf("expected ErrInvalidTier, got %v", err)
	}
}

func TestRecorder_FullBufferDoesNotBlock(t *testing.T) {
	blocking := &blockingStorage{release: make(chan struct{}), MemoryStorage: storage.NewMemoryStorage()}
	committer := &fakeCommitter{}
	rec := usage.NewRecorder(blocking, committer, &usage.Config{Enabled: true, AsyncBuffer: 1, WriteTimeout: time.Second}, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			_ = rec.Record(context.Background(), &usage.Record{UserID: "u", Tier: ledger.TierCheap, CostUSD: 0.001}, false)
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Record blocked on a full buffer")
	}

	close(blocking.release)
	rec.Close()

	if len(committer.commits) != 10 {
		t.Errorf("expected every call committed to the ledger, got %d", len(committer.commits))
	}
	if blocking.Count() >= 10 {
		t.Errorf("expected some records dropped, stored %d", blocking.Count())
	}
}

func TestRecorder_DisabledStillCommits(t *testing.T) {
	store := storage.NewMemoryStorage()
	committer := &fakeCommitter{}
	rec := usage.NewRecorder(store, committer, &usage.Config{Enabled: false}, nil)

	if err := rec.Record(context.Background(), &usage.Record{UserID: "u", Tier: ledger.TierCheap, CostUSD: 0.001}, false); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	rec.Close()

	if len(committer.commits) != 1 {
		t.Errorf("expected ledger commit, got %d", len(committer.commits))
	}
	if store.Count() != 0 {
		t.Errorf("expected no stored records, got %d", store.Count())
	}
}

func TestRecorder_CloseIsIdempotent(t *testing.T) {
	rec := usage.NewRecorder(storage.NewMemoryStorage(), &fakeCommitter{}, nil, nil)
	if err := rec.Close(); err != nil {
		t.Fatalf("first Close failed: %v", err)
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
}

func TestRecorder_RecordRacingClose(t *testing.T) {
	const writers, perWriter = 8, 50

	collector := metrics.NewCollector(config.MetricsConfig{Enabled: true, Namespace: "test"}, nil)
	store := storage.NewMemoryStorage()
	rec := usage.NewRecorder(store, &fakeCommitter{}, &usage.Config{Enabled: true, AsyncBuffer: writers * perWriter, WriteTimeout: time.Second}, collector)

	start := make(chan struct{})
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			for i := 0; i < perWriter; i++ {
				if err := rec.Record(context.Background(), &usage.Record{UserID: "u", Tier: ledger.TierCheap, CostUSD: 0.001}, false); err != nil {
					t.Errorf("Record failed: %v", err)
				}
			}
		}()
	}

	close(start)
	rec.Close()
	wg.Wait()

	var dropped float64
	families, err := collector.Registry().Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != "test_usage_records_dropped_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "reason" && l.GetValue() != "closed" {
					t.Errorf("unexpected drop reason %q", l.GetValue())
				}
			}
			dropped += m.GetCounter().GetValue()
		}
	}

	if got := store.Count() + int(dropped); got != writers*perWriter {
		t.Errorf("stored %d + dropped %v = %d, want %d", store.Count(), dropped, got, writers*perWriter)
	}
}
