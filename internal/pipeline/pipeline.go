// Package pipeline drives the end-to-end per-chain ingest loop of spec
// §4.5, grounded on the teacher's ticker/stopCh/doneCh lifecycle in
// pkg/batch/confirmation_tracker.go and the retry/backoff idiom of
// pkg/intent/discovery.go's monitoringLoop.
package pipeline

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/certen-labs/chainindexer/internal/chainadapter"
	"github.com/certen-labs/chainindexer/internal/model"
)

// State is a chain's position in the ingestion state machine.
type State string

const (
	StateIdle       State = "idle"
	StateFetching   State = "fetching"
	StateCommitting State = "committing"
	StateRecovering State = "recovering"
	StateHalted     State = "halted"
)

// Store is the subset of the storage engine the pipeline needs.
type Store interface {
	StoreBlockBatch(ctx context.Context, chain string, blocks []model.Block) error
	GetCursor(chain string) (*model.ChainCursor, error)
}

// ReorgChecker is the subset of the reorg handler the pipeline needs.
type ReorgChecker interface {
	Check(ctx context.Context, chain string, adapter chainadapter.Adapter, lowest model.Block) (reorged bool, resumeFrom uint64, err error)
}

// Config parameterizes a Pipeline instance.
type Config struct {
	BatchSize       uint64
	PollInterval    time.Duration
	MaxRetries      int
	BackoffBase     time.Duration
	BackoffMax      time.Duration
	HaltOnExhausted bool // if false, skip the failed block and advance instead of halting
	Logger          *log.Logger
}

func (c *Config) setDefaults() {
	if c.BatchSize == 0 {
		c.BatchSize = 100
	}
	if c.PollInterval == 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.BackoffBase == 0 {
		c.BackoffBase = 1 * time.Second
	}
	if c.BackoffMax == 0 {
		c.BackoffMax = 30 * time.Second
	}
}

// Pipeline drives a single chain's ingestion loop.
type Pipeline struct {
	mu sync.RWMutex

	chain   string
	adapter chainadapter.Adapter
	store   Store
	reorg   ReorgChecker
	cfg     Config

	state    State
	haltErr  error
	running  bool
	stopCh   chan struct{}
	doneCh   chan struct{}

	logger *log.Logger
}

func New(chain string, adapter chainadapter.Adapter, store Store, reorgHandler ReorgChecker, cfg Config) *Pipeline {
	cfg.setDefaults()
	if cfg.Logger == nil {
		cfg.Logger = log.New(log.Writer(), "[Pipeline:"+chain+"] ", log.LstdFlags)
	}
	return &Pipeline{
		chain:   chain,
		adapter: adapter,
		store:   store,
		reorg:   reorgHandler,
		cfg:     cfg,
		state:   StateIdle,
		logger:  cfg.Logger,
	}
}

func (p *Pipeline) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

func (p *Pipeline) HaltError() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.haltErr
}

func (p *Pipeline) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

func (p *Pipeline) halt(err error) {
	p.mu.Lock()
	p.state = StateHalted
	p.haltErr = err
	p.mu.Unlock()
	p.logger.Printf("halted: %v", err)
}

func (p *Pipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.running = true
	p.mu.Unlock()

	go p.run(ctx)
	p.logger.Printf("started (batch_size=%d poll_interval=%s)", p.cfg.BatchSize, p.cfg.PollInterval)
}

func (p *Pipeline) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	close(p.stopCh)
	p.running = false
	p.mu.Unlock()

	<-p.doneCh
	p.logger.Println("stopped")
}

func (p *Pipeline) run(ctx context.Context) {
	defer close(p.doneCh)

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		default:
		}

		if p.State() == StateHalted {
			return
		}

		advanced, err := p.tick(ctx)
		if err != nil {
			p.halt(err)
			return
		}
		if !advanced {
			select {
			case <-ctx.Done():
				return
			case <-p.stopCh:
				return
			case <-time.After(p.cfg.PollInterval):
			}
		}
	}
}

// tick executes one iteration of spec §4.5's per-tick algorithm. It
// returns advanced=true if a batch was committed, so the caller can skip
// the poll-interval sleep and immediately try to catch up further.
func (p *Pipeline) tick(ctx context.Context) (advanced bool, err error) {
	cur, err := p.store.GetCursor(p.chain)
	var nextHeight uint64
	if err != nil {
		if !errors.Is(err, model.ErrNotFound) {
			return false, err
		}
		nextHeight = 0
	} else {
		if cur.Divergent {
			return false, model.ErrDivergent
		}
		nextHeight = cur.LatestProcessedHeight + 1
	}

	latest, err := p.adapter.LatestHeight(ctx)
	if err != nil {
		return false, nil // transient adapter error: caller sleeps and retries next tick
	}

	target := latest
	if nextHeight+p.cfg.BatchSize-1 < target {
		target = nextHeight + p.cfg.BatchSize - 1
	}
	if target < nextHeight {
		return false, nil
	}

	p.setState(StateFetching)
	blocks, err := p.fetchWithRetry(ctx, nextHeight, target)
	if err != nil {
		return false, err
	}
	if len(blocks) == 0 {
		return false, nil
	}

	if p.reorg != nil {
		reorged, resumeFrom, rerr := p.reorg.Check(ctx, p.chain, p.adapter, blocks[0])
		if rerr != nil {
			return false, rerr
		}
		if reorged {
			p.setState(StateRecovering)
			blocks, err = p.fetchWithRetry(ctx, resumeFrom, target)
			if err != nil {
				return false, err
			}
		}
	}

	p.setState(StateCommitting)
	if err := p.store.StoreBlockBatch(ctx, p.chain, blocks); err != nil {
		if errors.Is(err, model.ErrReorgDetected) {
			p.setState(StateRecovering)
			return false, nil // retry next tick; reorg.Check will catch it first
		}
		return false, err
	}

	p.setState(StateIdle)
	return true, nil
}

func (p *Pipeline) fetchWithRetry(ctx context.Context, from, to uint64) ([]model.Block, error) {
	blocks := make([]model.Block, 0, to-from+1)
	for h := from; h <= to; h++ {
		blk, err := p.fetchBlockWithRetry(ctx, h)
		if err != nil {
			if p.cfg.HaltOnExhausted {
				return nil, err
			}
			p.logger.Printf("skipping block %d after fetch failed: %v", h, err)
			continue
		}
		blocks = append(blocks, *blk)
	}
	return blocks, nil
}

func (p *Pipeline) fetchBlockWithRetry(ctx context.Context, height uint64) (*model.Block, error) {
	var lastErr error
	for attempt := 0; attempt < p.cfg.MaxRetries; attempt++ {
		blk, err := p.adapter.BlockAt(ctx, height)
		if err == nil {
			return blk, nil
		}
		lastErr = err
		if !isRetryable(err) {
			return nil, err
		}
		d := backoff(attempt, p.cfg.BackoffBase, p.cfg.BackoffMax)
		p.logger.Printf("retrying block %d after %v (attempt %d/%d): %v", height, d, attempt+1, p.cfg.MaxRetries, err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(d):
		}
	}
	return nil, lastErr
}

func isRetryable(err error) bool {
	return errors.Is(err, model.ErrNetwork) || errors.Is(err, model.ErrTimeout) || errors.Is(err, model.ErrStorageTransient)
}
