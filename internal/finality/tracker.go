// Package finality implements the per-chain finality ticker of spec
// §4.4, grounded on the teacher's ConfirmationTracker polling-loop shape
// in pkg/batch/confirmation_tracker.go.
package finality

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/certen-labs/chainindexer/internal/chainadapter"
	"github.com/certen-labs/chainindexer/internal/model"
)

// StatusUpdater is the subset of the storage engine the tracker needs.
type StatusUpdater interface {
	GetLatestBlockWithStatus(chain string, status model.FinalityStatus) (uint64, error)
	UpdateFinality(chain string, status model.FinalityStatus, height uint64) error
}

// Tracker runs one cooperative polling task per chain, advancing the
// status:<chain>:<status> high-water marks. Advances are monotone;
// regressions reported by the adapter are ignored per spec §4.4.
type Tracker struct {
	mu sync.RWMutex

	chain    string
	adapter  chainadapter.Adapter
	store    StatusUpdater
	interval time.Duration

	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	logger *log.Logger
}

// Config configures a Tracker instance; PollInterval defaults to 4s, the
// midpoint of spec §4.4's 2-6s range.
type Config struct {
	PollInterval time.Duration
	Logger       *log.Logger
}

func New(chain string, adapter chainadapter.Adapter, store StatusUpdater, cfg Config) *Tracker {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 4 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(log.Writer(), "[Finality:"+chain+"] ", log.LstdFlags)
	}
	return &Tracker{
		chain:    chain,
		adapter:  adapter,
		store:    store,
		interval: cfg.PollInterval,
		logger:   cfg.Logger,
	}
}

func (t *Tracker) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return nil
	}
	t.stopCh = make(chan struct{})
	t.doneCh = make(chan struct{})
	t.running = true
	t.mu.Unlock()

	go t.run(ctx)

	t.logger.Printf("started (polling every %s)", t.interval)
	return nil
}

func (t *Tracker) Stop() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	close(t.stopCh)
	t.running = false
	t.mu.Unlock()

	<-t.doneCh
	t.logger.Println("stopped")
}

func (t *Tracker) run(ctx context.Context) {
	defer close(t.doneCh)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	t.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stopCh:
			return
		case <-ticker.C:
			t.tick(ctx)
		}
	}
}

func (t *Tracker) tick(ctx context.Context) {
	t.advance(ctx, model.StatusFinalized, t.adapter.FinalizedHeight)
	t.advance(ctx, model.StatusSafe, t.adapter.SafeHeight)
	t.advance(ctx, model.StatusJustified, t.adapter.JustifiedHeight)
}

func (t *Tracker) advance(ctx context.Context, status model.FinalityStatus, query func(context.Context) (uint64, error)) {
	newHeight, err := query(ctx)
	if err != nil {
		if errors.Is(err, model.ErrUnsupported) {
			return
		}
		t.logger.Printf("querying %s height: %v", status, err)
		return
	}

	current, err := t.store.GetLatestBlockWithStatus(t.chain, status)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		t.logger.Printf("reading current %s height: %v", status, err)
		return
	}
	if newHeight <= current {
		return // monotone: ignore regressions (spec §4.4)
	}

	if err := t.store.UpdateFinality(t.chain, status, newHeight); err != nil {
		t.logger.Printf("updating %s height to %d: %v", status, newHeight, err)
	}
}
