package faststore

import (
	"errors"
	"testing"
	"time"

	"github.com/certen-labs/chainindexer/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("test", t.TempDir(), "goleveldb")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutGetBlock(t *testing.T) {
	s := newTestStore(t)
	blk := &model.Block{
		Chain: "eth-test", Height: 5, Hash: "0xabc", ParentHash: "0xdef",
		Status: model.StatusConfirmed, Timestamp: time.Now().UTC(),
	}
	if err := s.PutBlock(blk); err != nil {
		t.Fatalf("PutBlock: %v", err)
	}
	rec, err := s.GetBlock("eth-test", 5)
	if err != nil {
		t.Fatalf("GetBlock: %v", err)
	}
	if rec.Hash != "0xabc" {
		t.Errorf("Hash = %q, want 0xabc", rec.Hash)
	}
}

func TestGetBlockNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetBlock("eth-test", 99)
	if !errors.Is(err, model.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestEventsInRangeOrdering(t *testing.T) {
	s := newTestStore(t)
	for h := uint64(1); h <= 3; h++ {
		for l := uint64(0); l < 2; l++ {
			ev := &model.Event{Chain: "eth-test", BlockRef: h, LogIndex: l, EventType: "Transfer", Timestamp: time.Now().UTC()}
			if err := s.PutEvent(ev); err != nil {
				t.Fatalf("PutEvent: %v", err)
			}
		}
	}
	events, err := s.EventsInRange("eth-test", 1, 2)
	if err != nil {
		t.Fatalf("EventsInRange: %v", err)
	}
	if len(events) != 4 {
		t.Fatalf("len(events) = %d, want 4", len(events))
	}
	for i, ev := range events {
		wantHeight := uint64(1 + i/2)
		wantLog := uint64(i % 2)
		if ev.BlockRef != wantHeight || ev.LogIndex != wantLog {
			t.Errorf("events[%d] = (h=%d,l=%d), want (h=%d,l=%d)", i, ev.BlockRef, ev.LogIndex, wantHeight, wantLog)
		}
	}
}

func TestDeleteBlocksFrom(t *testing.T) {
	s := newTestStore(t)
	for h := uint64(1); h <= 5; h++ {
		blk := &model.Block{Chain: "c", Height: h, Hash: "h", Timestamp: time.Now().UTC()}
		if err := s.PutBlock(blk); err != nil {
			t.Fatalf("PutBlock: %v", err)
		}
		ev := &model.Event{Chain: "c", BlockRef: h, LogIndex: 0, Timestamp: time.Now().UTC()}
		if err := s.PutEvent(ev); err != nil {
			t.Fatalf("PutEvent: %v", err)
		}
	}

	if err := s.DeleteBlocksFrom("c", 3); err != nil {
		t.Fatalf("DeleteBlocksFrom: %v", err)
	}

	if _, err := s.GetBlock("c", 2); err != nil {
		t.Errorf("expected block 2 to survive, got %v", err)
	}
	if _, err := s.GetBlock("c", 3); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected block 3 removed, got %v", err)
	}
	events, err := s.EventsInRange("c", 1, 5)
	if err != nil {
		t.Fatalf("EventsInRange: %v", err)
	}
	if len(events) != 2 {
		t.Errorf("len(events) = %d, want 2 (heights 1,2 only)", len(events))
	}
}

func TestCursorRoundTrip(t *testing.T) {
	s := newTestStore(t)
	cur := model.ChainCursor{Chain: "eth-test", LatestProcessedHeight: 10, LatestProcessedHash: "0xten", LastUpdated: time.Now().UTC()}
	if err := s.PutCursor(cur); err != nil {
		t.Fatalf("PutCursor: %v", err)
	}
	got, err := s.GetCursor("eth-test")
	if err != nil {
		t.Fatalf("GetCursor: %v", err)
	}
	if got.LatestProcessedHeight != 10 {
		t.Errorf("LatestProcessedHeight = %d, want 10", got.LatestProcessedHeight)
	}
}

func TestFinalityRoundTrip(t *testing.T) {
	s := newTestStore(t)
	if err := s.PutFinality("eth-test", model.StatusFinalized, 80); err != nil {
		t.Fatalf("PutFinality: %v", err)
	}
	got, err := s.GetFinality("eth-test", model.StatusFinalized)
	if err != nil {
		t.Fatalf("GetFinality: %v", err)
	}
	if got != 80 {
		t.Errorf("GetFinality = %d, want 80", got)
	}
}
