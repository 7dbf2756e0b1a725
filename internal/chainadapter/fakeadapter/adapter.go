// Package fakeadapter provides an in-memory chainadapter.Adapter for
// deterministic tests of the pipeline, reorg handler, and correlator
// without a live RPC endpoint, following the teacher's in-memory
// fixture style (main.go's MemoryKV).
package fakeadapter

import (
	"context"
	"fmt"
	"sync"

	"github.com/certen-labs/chainindexer/internal/chainadapter"
	"github.com/certen-labs/chainindexer/internal/model"
)

// Adapter is a mutable in-memory chain the test author drives directly:
// Append adds the next block, Reorg truncates and replaces the tail to
// simulate a chain reorganization.
type Adapter struct {
	mu      sync.Mutex
	family  chainadapter.Family
	chain   string
	blocks  []model.Block // index i holds height i+genesis
	genesis uint64
	finality map[model.FinalityStatus]uint64

	subs []chan model.Event
}

func New(family chainadapter.Family, chain string, genesisHeight uint64) *Adapter {
	return &Adapter{
		family:   family,
		chain:    chain,
		genesis:  genesisHeight,
		finality: map[model.FinalityStatus]uint64{},
	}
}

func (a *Adapter) Family() chainadapter.Family { return a.family }
func (a *Adapter) ChainName() string           { return a.chain }

// Append adds blk as the new chain tip. The caller is responsible for
// setting correct Height/ParentHash.
func (a *Adapter) Append(blk model.Block) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.blocks = append(a.blocks, blk)
	for _, ch := range a.subs {
		for _, ev := range blk.Events {
			select {
			case ch <- ev:
			default:
			}
		}
	}
}

// Reorg truncates the chain to keep only blocks below forkHeight, then
// appends replacement as the new tail, simulating a reorg at forkHeight.
func (a *Adapter) Reorg(forkHeight uint64, replacement []model.Block) {
	a.mu.Lock()
	defer a.mu.Unlock()
	keep := int(forkHeight - a.genesis)
	if keep < 0 {
		keep = 0
	}
	if keep > len(a.blocks) {
		keep = len(a.blocks)
	}
	a.blocks = append(a.blocks[:keep:keep], replacement...)
}

// SetFinality pins the height reported for a given status, overriding
// the default of "latest".
func (a *Adapter) SetFinality(status model.FinalityStatus, height uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.finality[status] = height
}

func (a *Adapter) LatestHeight(ctx context.Context) (uint64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.blocks) == 0 {
		return 0, nil
	}
	return a.blocks[len(a.blocks)-1].Height, nil
}

func (a *Adapter) BlockAt(ctx context.Context, height uint64) (*model.Block, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	idx := int(height - a.genesis)
	if idx < 0 || idx >= len(a.blocks) {
		return nil, fmt.Errorf("%w: block %d", model.ErrNotFound, height)
	}
	blk := a.blocks[idx]
	return &blk, nil
}

func (a *Adapter) heightFor(status model.FinalityStatus) (uint64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if h, ok := a.finality[status]; ok {
		return h, nil
	}
	if len(a.blocks) == 0 {
		return 0, nil
	}
	return a.blocks[len(a.blocks)-1].Height, nil
}

func (a *Adapter) FinalizedHeight(ctx context.Context) (uint64, error) {
	return a.heightFor(model.StatusFinalized)
}

func (a *Adapter) SafeHeight(ctx context.Context) (uint64, error) {
	return a.heightFor(model.StatusSafe)
}

func (a *Adapter) JustifiedHeight(ctx context.Context) (uint64, error) {
	return a.heightFor(model.StatusJustified)
}

func (a *Adapter) EventsForRange(ctx context.Context, from, to uint64, filter chainadapter.EventFilter) ([]model.Event, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []model.Event
	for _, blk := range a.blocks {
		if blk.Height < from || blk.Height > to {
			continue
		}
		for _, ev := range blk.Events {
			if filter.ContractAddress != "" && ev.ContractAddress != filter.ContractAddress {
				continue
			}
			if filter.EventType != "" && ev.EventType != filter.EventType {
				continue
			}
			out = append(out, ev)
		}
	}
	return out, nil
}

func (a *Adapter) SubscribeLogs(ctx context.Context, filter chainadapter.EventFilter) (<-chan model.Event, error) {
	ch := make(chan model.Event, 256)
	a.mu.Lock()
	a.subs = append(a.subs, ch)
	a.mu.Unlock()
	go func() {
		<-ctx.Done()
		a.mu.Lock()
		defer a.mu.Unlock()
		for i, s := range a.subs {
			if s == ch {
				a.subs = append(a.subs[:i], a.subs[i+1:]...)
				break
			}
		}
		close(ch)
	}()
	return ch, nil
}
