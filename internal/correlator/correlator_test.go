package correlator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/certen-labs/chainindexer/internal/model"
)

type memMessageStore struct {
	mu   sync.Mutex
	byID map[string]*model.CrossChainMessage
}

func newMemMessageStore() *memMessageStore {
	return &memMessageStore{byID: make(map[string]*model.CrossChainMessage)}
}

func (s *memMessageStore) GetMessage(ctx context.Context, id string) (*model.CrossChainMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byID[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *memMessageStore) UpsertMessage(ctx context.Context, msg *model.CrossChainMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *msg
	s.byID[msg.ID] = &cp
	return nil
}

func (s *memMessageStore) ListNonTerminalIDs(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id, m := range s.byID {
		if !m.Status.Terminal() {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func TestObserveSentCreatesOriginatedMessage(t *testing.T) {
	store := newMemMessageStore()
	c := New(store, Config{})

	ev := PendingEvent{
		Kind: EventMessageSent, Chain: "eth", BlockHeight: 10, TxHash: "0xabc", Time: time.Now(),
		SourceChain: "eth", Nonce: "1", Sender: "0xsender", TargetChain: "cosmos", Recipient: "cosmosaddr",
		Payload: []byte("payload"),
	}
	if err := c.Observe(context.Background(), ev); err != nil {
		t.Fatalf("Observe: %v", err)
	}

	id := MessageID("eth", "1", "0xsender", "cosmos", "cosmosaddr", []byte("payload"))
	msg, err := store.GetMessage(context.Background(), id)
	if err != nil {
		t.Fatalf("GetMessage: %v", err)
	}
	if msg.Status != model.MessageOriginated {
		t.Errorf("status = %s, want originated", msg.Status)
	}
}

func TestObserveSentIsIdempotent(t *testing.T) {
	store := newMemMessageStore()
	c := New(store, Config{})
	ev := PendingEvent{
		Kind: EventMessageSent, SourceChain: "eth", Nonce: "1", Sender: "s", TargetChain: "cosmos",
		Recipient: "r", Payload: []byte("p"), Time: time.Now(),
	}
	ctx := context.Background()
	if err := c.Observe(ctx, ev); err != nil {
		t.Fatal(err)
	}
	if err := c.Observe(ctx, ev); err != nil {
		t.Fatal(err)
	}

	id := MessageID("eth", "1", "s", "cosmos", "r", []byte("p"))
	msg, _ := store.GetMessage(ctx, id)
	if msg.Status != model.MessageOriginated {
		t.Errorf("re-observing MessageSent should not change status, got %s", msg.Status)
	}
}

func TestTargetEventBeforeOriginIsBuffered(t *testing.T) {
	store := newMemMessageStore()
	c := New(store, Config{})
	ctx := context.Background()

	id := MessageID("eth", "1", "s", "cosmos", "r", []byte("p"))
	delivered := PendingEvent{
		Kind: EventMessageDelivered, SourceChain: "eth", MessageID: id,
		BlockHeight: 20, TxHash: "0xdelivered", Time: time.Now(),
	}
	if err := c.Observe(ctx, delivered); err != nil {
		t.Fatalf("Observe(delivered): %v", err)
	}
	if _, err := store.GetMessage(ctx, id); err != model.ErrNotFound {
		t.Fatalf("message should not exist yet, got err=%v", err)
	}

	sent := PendingEvent{
		Kind: EventMessageSent, SourceChain: "eth", Nonce: "1", Sender: "s", TargetChain: "cosmos",
		Recipient: "r", Payload: []byte("p"), Time: time.Now(),
	}
	if err := c.Observe(ctx, sent); err != nil {
		t.Fatalf("Observe(sent): %v", err)
	}

	msg, err := store.GetMessage(ctx, id)
	if err != nil {
		t.Fatalf("GetMessage after origination: %v", err)
	}
	if msg.Status != model.MessageDelivered {
		t.Errorf("status = %s, want delivered (buffered event should replay)", msg.Status)
	}
}

func TestObserveProcessedFailureSetsFailedStatus(t *testing.T) {
	store := newMemMessageStore()
	c := New(store, Config{})
	ctx := context.Background()

	id := MessageID("eth", "1", "s", "cosmos", "r", []byte("p"))
	store.UpsertMessage(ctx, &model.CrossChainMessage{
		ID: id, Status: model.MessageDelivered, CreatedAt: time.Now(),
	})

	ev := PendingEvent{Kind: EventMessageProcessed, MessageID: id, Success: false, Error: "out of gas", Time: time.Now()}
	if err := c.Observe(ctx, ev); err != nil {
		t.Fatalf("Observe: %v", err)
	}

	msg, _ := store.GetMessage(ctx, id)
	if msg.Status != model.MessageFailed {
		t.Errorf("status = %s, want failed", msg.Status)
	}
	if msg.Error != "out of gas" {
		t.Errorf("error = %q, want %q", msg.Error, "out of gas")
	}
}

func TestIllegalTransitionIsIgnored(t *testing.T) {
	store := newMemMessageStore()
	c := New(store, Config{})
	ctx := context.Background()

	id := MessageID("eth", "1", "s", "cosmos", "r", []byte("p"))
	store.UpsertMessage(ctx, &model.CrossChainMessage{
		ID: id, Status: model.MessageExecuted, CreatedAt: time.Now(),
	})

	ev := PendingEvent{Kind: EventMessageDelivered, MessageID: id, Time: time.Now()}
	if err := c.Observe(ctx, ev); err != nil {
		t.Fatalf("Observe: %v", err)
	}

	msg, _ := store.GetMessage(ctx, id)
	if msg.Status != model.MessageExecuted {
		t.Errorf("status changed from terminal executed to %s, want unchanged", msg.Status)
	}
}

func TestSweepTimeoutsMarksStaleMessages(t *testing.T) {
	store := newMemMessageStore()
	c := New(store, Config{MessageTimeout: time.Minute})
	ctx := context.Background()

	staleID := "stale"
	freshID := "fresh"
	store.UpsertMessage(ctx, &model.CrossChainMessage{ID: staleID, Status: model.MessageOriginated, CreatedAt: time.Now().Add(-2 * time.Hour)})
	store.UpsertMessage(ctx, &model.CrossChainMessage{ID: freshID, Status: model.MessageOriginated, CreatedAt: time.Now()})

	if err := c.SweepTimeouts(ctx, []string{staleID, freshID}, time.Now()); err != nil {
		t.Fatalf("SweepTimeouts: %v", err)
	}

	stale, _ := store.GetMessage(ctx, staleID)
	if stale.Status != model.MessageTimedOut {
		t.Errorf("stale message status = %s, want timed_out", stale.Status)
	}
	fresh, _ := store.GetMessage(ctx, freshID)
	if fresh.Status != model.MessageOriginated {
		t.Errorf("fresh message status = %s, want unchanged originated", fresh.Status)
	}
}
