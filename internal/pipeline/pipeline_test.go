package pipeline

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
	mu     sync.Mutex
	cursor *model.ChainCursor
	events int
}

func (s *memStore) StoreBlockBatch(ctx context.Context, chain string, blocks []model.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range blocks {
		s.events += len(b.Events)
		s.cursor = &model.ChainCursor{Chain: chain, LatestProcessedHeight: b.Height, LatestProcessedHash: b.Hash}
	}
	return nil
}

func (s *memStore) GetCursor(chain string) (*model.ChainCursor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cursor == nil {
		return nil, model.ErrNotFound
	}
	c := *s.cursor
	return &c, nil
}

type noopReorg struct{}

func (noopReorg) Check(ctx context.Context, chain string, adapter chainadapter.Adapter, lowest model.Block) (bool, uint64, error) {
	return false, 0, nil
}

func TestPipelineHappyPathIngestsAllBlocks(t *testing.T) {
	adapter := fakeadapter.New(chainadapter.FamilyEVM, "eth-test", 1)
	parent := "genesis"
	for h := uint64(1); h <= 10; h++ {
		hash := "h" + string(rune('0'+h))
		adapter.Append(model.Block{
			Chain: "eth-test", Height: h, Hash: hash, ParentHash: parent, Timestamp: time.Now(),
			Events: []model.Event{{Chain: "eth-test", BlockRef: h, LogIndex: 0, EventType: "Transfer"}},
		})
		parent = hash
	}

	store := &memStore{}
	p := New("eth-test", adapter, store, noopReorg{}, Config{BatchSize: 100, PollInterval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	defer p.Stop()

	deadline := time.After(2 * time.Second)
	for {
		cur, err := store.GetCursor("eth-test")
		if err == nil && cur.LatestProcessedHeight == 10 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("pipeline never reached height 10, state=%s haltErr=%v", p.State(), p.HaltError())
		case <-time.After(10 * time.Millisecond):
		}
	}

	if store.events != 10 {
		t.Errorf("events = %d, want 10", store.events)
	}
}

func TestBackoffStaysBoundedAndPositive(t *testing.T) {
	base := 100 * time.Millisecond
	max := 2 * time.Second
	for attempt := 0; attempt < 10; attempt++ {
		d := backoff(attempt, base, max)
		if d > max+max/2 {
			t.Errorf("backoff(%d) = %v, exceeds bound", attempt, d)
		}
		if d <= 0 {
			t.Errorf("backoff(%d) = %v, want positive", attempt, d)
		}
	}
}
