package finality

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/certen-labs/chainindexer/internal/chainadapter"
	"github.com/certen-labs/chainindexer/internal/chainadapter/fakeadapter"
	"github.com/certen-labs/chainindexer/internal/model"
)

type memStore struct {
	mu sync.Mutex
	m  map[model.FinalityStatus]uint64
}

func newMemStore() *memStore { return &memStore{m: map[model.FinalityStatus]uint64{}} }

func (s *memStore) GetLatestBlockWithStatus(chain string, status model.FinalityStatus) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.m[status]
	if !ok {
		return 0, model.ErrNotFound
	}
	return h, nil
}

func (s *memStore) UpdateFinality(chain string, status model.FinalityStatus, height uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[status] = height
	return nil
}

func TestTrackerAdvancesFinalizedHeight(t *testing.T) {
	adapter := fakeadapter.New(chainadapter.FamilyEVM, "eth-test", 0)
	for h := uint64(0); h <= 100; h++ {
		adapter.Append(model.Block{Chain: "eth-test", Height: h, Timestamp: time.Now()})
	}
	adapter.SetFinality(model.StatusFinalized, 80)

	store := newMemStore()
	tr := New("eth-test", adapter, store, Config{PollInterval: 20 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := tr.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer tr.Stop()

	deadline := time.After(1 * time.Second)
	for {
		h, _ := store.GetLatestBlockWithStatus("eth-test", model.StatusFinalized)
		if h == 80 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("finalized height never reached 80, got %d", h)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestTrackerIgnoresRegression(t *testing.T) {
	adapter := fakeadapter.New(chainadapter.FamilyEVM, "c", 0)
	adapter.Append(model.Block{Chain: "c", Height: 0, Timestamp: time.Now()})
	adapter.SetFinality(model.StatusFinalized, 50)

	store := newMemStore()
	store.m[model.StatusFinalized] = 60

	tr := New("c", adapter, store, Config{})
	tr.tick(context.Background())

	h, _ := store.GetLatestBlockWithStatus("c", model.StatusFinalized)
	if h != 60 {
		t.Errorf("height = %d, want 60 (regression should be ignored)", h)
	}
}
