package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/certen-labs/chainindexer/internal/model"
	"github.com/certen-labs/chainindexer/internal/pipeline"
)

// ChainStore is the subset of storage.Engine the chain query handlers need.
type ChainStore interface {
	GetLatestBlock(chain string) (uint64, error)
	GetLatestBlockWithStatus(chain string, status model.FinalityStatus) (uint64, error)
	GetEvents(ctx context.Context, chain string, from, to uint64, eventType string) ([]model.Event, error)
	GetEventsWithStatus(ctx context.Context, chain string, from, to uint64, status model.FinalityStatus, eventType string) ([]model.Event, error)
	GetEventsByAddress(ctx context.Context, chain, address string, limit, offset int) ([]model.Event, error)
	GetCursor(chain string) (*model.ChainCursor, error)
}

// PipelineStatus is the subset of pipeline.Pipeline get_chain_status needs
// to report is_indexing/phase/error (spec §7, SPEC_FULL.md "Health/status
// surface").
type PipelineStatus interface {
	State() pipeline.State
	HaltError() error
}

// ChainHandlers provides HTTP handlers for get_latest_block,
// get_events_by_range, get_events_by_address and get_chain_status
// (spec §5).
type ChainHandlers struct {
	store     ChainStore
	pipelines map[string]PipelineStatus
}

func NewChainHandlers(store ChainStore, pipelines map[string]PipelineStatus) *ChainHandlers {
	return &ChainHandlers{store: store, pipelines: pipelines}
}

// HandleLatestBlock handles GET /api/v1/blocks/latest/{chain}.
func (h *ChainHandlers) HandleLatestBlock(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	chain := strings.TrimPrefix(r.URL.Path, "/api/v1/blocks/latest/")
	if chain == "" {
		writeError(w, http.StatusBadRequest, "chain is required")
		return
	}

	height, err := h.store.GetLatestBlock(chain)
	if err != nil {
		if err == model.ErrNotFound {
			writeError(w, http.StatusNotFound, fmt.Sprintf("no blocks ingested for chain %q", chain))
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	json.NewEncoder(w).Encode(map[string]interface{}{"chain": chain, "height": height})
}

// HandleEventsByRange handles GET /api/v1/events/range/{chain}?from=&to=&event_type=&status=.
func (h *ChainHandlers) HandleEventsByRange(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	chain := strings.TrimPrefix(r.URL.Path, "/api/v1/events/range/")
	if chain == "" {
		writeError(w, http.StatusBadRequest, "chain is required")
		return
	}

	q := r.URL.Query()
	from, err := strconv.ParseUint(q.Get("from"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid from parameter")
		return
	}
	to, err := strconv.ParseUint(q.Get("to"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid to parameter")
		return
	}
	eventType := q.Get("event_type")

	var events []model.Event
	if status := q.Get("status"); status != "" {
		events, err = h.store.GetEventsWithStatus(r.Context(), chain, from, to, model.FinalityStatus(status), eventType)
	} else {
		events, err = h.store.GetEvents(r.Context(), chain, from, to, eventType)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	json.NewEncoder(w).Encode(events)
}

// HandleEventsByAddress handles GET /api/v1/events/address/{chain}/{address}?limit=&offset=.
func (h *ChainHandlers) HandleEventsByAddress(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/events/address/")
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		writeError(w, http.StatusBadRequest, "expected /api/v1/events/address/{chain}/{address}")
		return
	}
	chain, address := parts[0], parts[1]

	limit := 100
	offset := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			offset = n
		}
	}

	events, err := h.store.GetEventsByAddress(r.Context(), chain, address, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	json.NewEncoder(w).Encode(events)
}

// HandleChainStatus handles GET /api/v1/chains/{chain} (get_chain_status).
func (h *ChainHandlers) HandleChainStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	chain := strings.TrimPrefix(r.URL.Path, "/api/v1/chains/")
	if chain == "" {
		writeError(w, http.StatusBadRequest, "chain is required")
		return
	}

	cur, err := h.store.GetCursor(chain)
	if err != nil {
		if err == model.ErrNotFound {
			writeError(w, http.StatusNotFound, fmt.Sprintf("chain %q not tracked", chain))
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	status := map[string]interface{}{
		"chain":                   chain,
		"latest_processed_height": cur.LatestProcessedHeight,
		"divergent":               cur.Divergent,
		"last_indexed_at":         cur.LastUpdated,
		"is_indexing":             false,
	}
	for _, s := range []model.FinalityStatus{model.StatusFinalized, model.StatusSafe, model.StatusJustified} {
		if height, err := h.store.GetLatestBlockWithStatus(chain, s); err == nil {
			status[string(s)+"_height"] = height
		}
	}

	if p, ok := h.pipelines[chain]; ok {
		phase := p.State()
		status["phase"] = phase
		status["is_indexing"] = phase != pipeline.StateHalted
		if haltErr := p.HaltError(); haltErr != nil {
			status["error"] = haltErr.Error()
		}
	}

	json.NewEncoder(w).Encode(status)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
