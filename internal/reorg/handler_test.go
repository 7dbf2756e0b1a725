package reorg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/certen-labs/chainindexer/internal/chainadapter"
	"github.com/certen-labs/chainindexer/internal/chainadapter/fakeadapter"
	"github.com/certen-labs/chainindexer/internal/model"
)

// fakeStore is a minimal in-memory StoreReader for handler tests.
type fakeStore struct {
	blocks map[uint64]string // height -> hash
	rolled uint64
	called bool
}

func newFakeStore() *fakeStore { return &fakeStore{blocks: map[uint64]string{}} }

func (f *fakeStore) GetBlockHash(chain string, height uint64) (string, bool, error) {
	h, ok := f.blocks[height]
	return h, ok, nil
}

func (f *fakeStore) RollbackFrom(ctx context.Context, chain string, from uint64) error {
	f.called = true
	f.rolled = from
	for h := range f.blocks {
		if h >= from {
			delete(f.blocks, h)
		}
	}
	return nil
}

func TestCheckNoFork(t *testing.T) {
	store := newFakeStore()
	store.blocks[8] = "h8"
	h := New(store, 1024)

	reorged, _, err := h.Check(context.Background(), "c", nil, model.Block{Height: 9, ParentHash: "h8"})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if reorged {
		t.Error("expected no reorg")
	}
}

func TestCheckShallowFork(t *testing.T) {
	store := newFakeStore()
	store.blocks[7] = "h7"
	store.blocks[8] = "h8-old"
	h := New(store, 1024)

	adapter := fakeadapter.New(chainadapter.FamilyEVM, "c", 7)
	adapter.Append(model.Block{Chain: "c", Height: 7, Hash: "h7", ParentHash: "h6", Timestamp: time.Now()})
	adapter.Append(model.Block{Chain: "c", Height: 8, Hash: "h8-new", ParentHash: "h7", Timestamp: time.Now()})

	reorged, resumeFrom, err := h.Check(context.Background(), "c", adapter, model.Block{Height: 9, ParentHash: "h8-new"})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !reorged {
		t.Fatal("expected reorg to be detected")
	}
	if resumeFrom != 8 {
		t.Errorf("resumeFrom = %d, want 8", resumeFrom)
	}
	if !store.called || store.rolled != 8 {
		t.Errorf("expected RollbackFrom(8), got called=%v rolled=%d", store.called, store.rolled)
	}
}

func TestCheckDeepReorgHalts(t *testing.T) {
	store := newFakeStore()
	for h := uint64(1); h <= 10; h++ {
		store.blocks[h] = "stored"
	}
	handler := New(store, 3)

	adapter := fakeadapter.New(chainadapter.FamilyEVM, "c", 1)
	for h := uint64(1); h <= 10; h++ {
		adapter.Append(model.Block{Chain: "c", Height: h, Hash: "adapter", ParentHash: "adapter-parent", Timestamp: time.Now()})
	}

	_, _, err := handler.Check(context.Background(), "c", adapter, model.Block{Height: 11, ParentHash: "mismatched"})
	if !errors.Is(err, model.ErrDeepReorg) {
		t.Errorf("err = %v, want ErrDeepReorg", err)
	}
}
