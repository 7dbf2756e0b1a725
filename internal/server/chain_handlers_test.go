package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/certen-labs/chainindexer/internal/model"
	"github.com/certen-labs/chainindexer/internal/pipeline"
)

type fakeChainStore struct {
	latest   map[string]uint64
	finality map[string]map[model.FinalityStatus]uint64
	events   map[string][]model.Event
	cursors  map[string]*model.ChainCursor
}

type fakePipelineStatus struct {
	state   pipeline.State
	haltErr error
}

func (f *fakePipelineStatus) State() pipeline.State { return f.state }
func (f *fakePipelineStatus) HaltError() error       { return f.haltErr }

func (f *fakeChainStore) GetLatestBlock(chain string) (uint64, error) {
	h, ok := f.latest[chain]
	if !ok {
		return 0, model.ErrNotFound
	}
	return h, nil
}

func (f *fakeChainStore) GetLatestBlockWithStatus(chain string, status model.FinalityStatus) (uint64, error) {
	m, ok := f.finality[chain]
	if !ok {
		return 0, model.ErrNotFound
	}
	h, ok := m[status]
	if !ok {
		return 0, model.ErrNotFound
	}
	return h, nil
}

func (f *fakeChainStore) GetEvents(ctx context.Context, chain string, from, to uint64, eventType string) ([]model.Event, error) {
	return f.events[chain], nil
}

func (f *fakeChainStore) GetEventsWithStatus(ctx context.Context, chain string, from, to uint64, status model.FinalityStatus, eventType string) ([]model.Event, error) {
	return f.events[chain], nil
}

func (f *fakeChainStore) GetEventsByAddress(ctx context.Context, chain, address string, limit, offset int) ([]model.Event, error) {
	return f.events[chain], nil
}

func (f *fakeChainStore) GetCursor(chain string) (*model.ChainCursor, error) {
	cur, ok := f.cursors[chain]
	if !ok {
		return nil, model.ErrNotFound
	}
	return cur, nil
}

func newFakeStore() *fakeChainStore {
	return &fakeChainStore{
		latest:   map[string]uint64{"eth": 100},
		finality: map[string]map[model.FinalityStatus]uint64{"eth": {model.StatusFinalized: 90}},
		events:   map[string][]model.Event{"eth": {{Chain: "eth", BlockRef: 50, EventType: "Transfer"}}},
		cursors:  map[string]*model.ChainCursor{"eth": {Chain: "eth", LatestProcessedHeight: 100, LastUpdated: time.Now()}},
	}
}

func TestHandleLatestBlockFound(t *testing.T) {
	h := NewChainHandlers(newFakeStore(), nil)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/blocks/latest/eth", nil)
	rec := httptest.NewRecorder()
	h.HandleLatestBlock(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["height"].(float64) != 100 {
		t.Errorf("height = %v, want 100", body["height"])
	}
}

func TestHandleLatestBlockNotFound(t *testing.T) {
	h := NewChainHandlers(newFakeStore(), nil)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/blocks/latest/unknown", nil)
	rec := httptest.NewRecorder()
	h.HandleLatestBlock(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestHandleEventsByRangeRejectsBadParams(t *testing.T) {
	h := NewChainHandlers(newFakeStore(), nil)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/events/range/eth?from=abc&to=10", nil)
	rec := httptest.NewRecorder()
	h.HandleEventsByRange(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleEventsByRangeOK(t *testing.T) {
	h := NewChainHandlers(newFakeStore(), nil)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/events/range/eth?from=0&to=100", nil)
	rec := httptest.NewRecorder()
	h.HandleEventsByRange(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var events []model.Event
	if err := json.NewDecoder(rec.Body).Decode(&events); err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Errorf("len(events) = %d, want 1", len(events))
	}
}

func TestHandleChainStatus(t *testing.T) {
	h := NewChainHandlers(newFakeStore(), map[string]PipelineStatus{
		"eth": &fakePipelineStatus{state: pipeline.StateFetching},
	})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/chains/eth", nil)
	rec := httptest.NewRecorder()
	h.HandleChainStatus(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["finalized_height"].(float64) != 90 {
		t.Errorf("finalized_height = %v, want 90", body["finalized_height"])
	}
	if body["phase"] != string(pipeline.StateFetching) {
		t.Errorf("phase = %v, want %q", body["phase"], pipeline.StateFetching)
	}
	if body["is_indexing"] != true {
		t.Errorf("is_indexing = %v, want true", body["is_indexing"])
	}
	if _, ok := body["error"]; ok {
		t.Errorf("error = %v, want absent", body["error"])
	}
}

func TestHandleChainStatusHaltedReportsError(t *testing.T) {
	h := NewChainHandlers(newFakeStore(), map[string]PipelineStatus{
		"eth": &fakePipelineStatus{state: pipeline.StateHalted, haltErr: model.ErrDeepReorg},
	})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/chains/eth", nil)
	rec := httptest.NewRecorder()
	h.HandleChainStatus(rec, req)

	var body map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["is_indexing"] != false {
		t.Errorf("is_indexing = %v, want false", body["is_indexing"])
	}
	if body["error"] != model.ErrDeepReorg.Error() {
		t.Errorf("error = %v, want %q", body["error"], model.ErrDeepReorg.Error())
	}
}

func TestHandleChainStatusNoPipelineDefaultsNotIndexing(t *testing.T) {
	h := NewChainHandlers(newFakeStore(), nil)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/chains/eth", nil)
	rec := httptest.NewRecorder()
	h.HandleChainStatus(rec, req)

	var body map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["is_indexing"] != false {
		t.Errorf("is_indexing = %v, want false", body["is_indexing"])
	}
	if _, ok := body["phase"]; ok {
		t.Errorf("phase = %v, want absent", body["phase"])
	}
}
