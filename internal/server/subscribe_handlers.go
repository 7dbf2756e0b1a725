package server

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/certen-labs/chainindexer/internal/chainadapter"
	"github.com/certen-labs/chainindexer/internal/storage"
)

// Feed is the subset of storage.ChangeFeed the subscribe handler needs.
type Feed interface {
	Subscribe(filter chainadapter.EventFilter) *storage.Subscription
}

// SubscribeHandlers implements subscribe_events (spec §5) over a
// websocket upgrade, following the ticker/write-loop idiom the teacher
// uses for its polling goroutines rather than a request/response handler.
type SubscribeHandlers struct {
	feed     Feed
	upgrader websocket.Upgrader
	logger   *log.Logger
}

func NewSubscribeHandlers(feed Feed) *SubscribeHandlers {
	return &SubscribeHandlers{
		feed:     feed,
		upgrader: websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024, CheckOrigin: func(r *http.Request) bool { return true }},
		logger:   log.New(log.Writer(), "[SubscribeHandler] ", log.LstdFlags),
	}
}

// HandleSubscribe handles GET /api/v1/subscribe?chain=&contract_address=&event_type=,
// upgrading the connection to a websocket and streaming each matching
// event as one JSON websocket message until the client disconnects.
func (h *SubscribeHandlers) HandleSubscribe(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	q := r.URL.Query()
	filter := chainadapter.EventFilter{
		Chain:           q.Get("chain"),
		ContractAddress: q.Get("contract_address"),
		EventType:       q.Get("event_type"),
	}

	sub := h.feed.Subscribe(filter)
	defer sub.Close()

	pingTicker := time.NewTicker(30 * time.Second)
	defer pingTicker.Stop()

	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				h.logger.Printf("write error, closing subscriber: %v", err)
				return
			}
		case <-pingTicker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
