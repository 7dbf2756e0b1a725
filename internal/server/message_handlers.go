package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/certen-labs/chainindexer/internal/model"
	"github.com/certen-labs/chainindexer/internal/richstore"
)

// MessageStore is the subset of richstore.Repository the message query
// handlers need.
type MessageStore interface {
	GetMessage(ctx context.Context, id string) (*model.CrossChainMessage, error)
	ListMessages(ctx context.Context, filter richstore.ListMessagesFilter, limit, offset int) ([]model.CrossChainMessage, error)
}

// MessageHandlers provides HTTP handlers for get_cross_chain_message and
// list_cross_chain_messages (spec §5), grounded on the teacher's
// proof_handlers.go single-resource/collection pairing.
type MessageHandlers struct {
	store MessageStore
}

func NewMessageHandlers(store MessageStore) *MessageHandlers {
	return &MessageHandlers{store: store}
}

// HandleGetMessage handles GET /api/v1/messages/{id}.
func (h *MessageHandlers) HandleGetMessage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	id := strings.TrimPrefix(r.URL.Path, "/api/v1/messages/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "message id is required")
		return
	}

	msg, err := h.store.GetMessage(r.Context(), id)
	if err != nil {
		if err == model.ErrNotFound {
			writeError(w, http.StatusNotFound, "message not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	json.NewEncoder(w).Encode(msg)
}

// HandleListMessages handles GET /api/v1/messages?source_chain=&target_chain=&status=&limit=&offset=.
func (h *MessageHandlers) HandleListMessages(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	q := r.URL.Query()

	filter := richstore.ListMessagesFilter{
		SourceChain: q.Get("source_chain"),
		TargetChain: q.Get("target_chain"),
		Status:      model.MessageStatus(q.Get("status")),
	}
	limit := 100
	offset := 0
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			offset = n
		}
	}

	messages, err := h.store.ListMessages(r.Context(), filter, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	json.NewEncoder(w).Encode(messages)
}
