package storage

import (
	"log"
	"sync"

	"github.com/certen-labs/chainindexer/internal/chainadapter"
	"github.com/certen-labs/chainindexer/internal/model"
)

// ChangeFeed is a bounded broadcast channel fed at commit time, backing
// the API's subscribe_events collaborator (spec §9). Each subscriber gets
// its own buffered channel; when a subscriber's buffer is full, each new
// event for it is dropped rather than blocking the commit path.
type ChangeFeed struct {
	mu     sync.Mutex
	subs   map[int]subscription
	nextID int
	logger *log.Logger
}

func NewChangeFeed() *ChangeFeed {
	return &ChangeFeed{
		subs:   make(map[int]subscription),
		logger: log.New(log.Writer(), "[ChangeFeed] ", log.LstdFlags),
	}
}

// subscription is the feed's internal record of one subscriber's channel
// and filter.
type subscription struct {
	ch     chan model.Event
	filter chainadapter.EventFilter
}

// Subscription is a live handle a caller drains until Close.
type Subscription struct {
	id   int
	ch   chan model.Event
	feed *ChangeFeed
}

func (s *Subscription) Events() <-chan model.Event { return s.ch }

func (s *Subscription) Close() {
	s.feed.mu.Lock()
	defer s.feed.mu.Unlock()
	if sub, ok := s.feed.subs[s.id]; ok {
		close(sub.ch)
		delete(s.feed.subs, s.id)
	}
}

const subscriberBufferSize = 1024

// Subscribe registers a new subscriber filtered by chain/contract/event
// type; empty fields in filter match everything.
func (f *ChangeFeed) Subscribe(filter chainadapter.EventFilter) *Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	ch := make(chan model.Event, subscriberBufferSize)
	f.subs[id] = subscription{ch: ch, filter: filter}
	return &Subscription{id: id, ch: ch, feed: f}
}

// Publish delivers ev to every matching subscriber, non-blocking: a
// subscriber whose buffer is full has the event dropped and a warning
// logged rather than stalling the commit path.
func (f *ChangeFeed) Publish(ev model.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, sub := range f.subs {
		if sub.filter.Chain != "" && sub.filter.Chain != ev.Chain {
			continue
		}
		if sub.filter.ContractAddress != "" && sub.filter.ContractAddress != ev.ContractAddress {
			continue
		}
		if sub.filter.EventType != "" && sub.filter.EventType != ev.EventType {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			f.logger.Printf("subscriber lagging, dropping event (chain=%s tx=%s log_index=%d)", ev.Chain, ev.TxRef, ev.LogIndex)
		}
	}
}

func (f *ChangeFeed) SubscriberCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}
