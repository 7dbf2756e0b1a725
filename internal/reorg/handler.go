// Package reorg implements fork detection and rollback (spec §4.3),
// invoked by the pipeline before committing each batch.
package reorg

import (
	"context"
	"fmt"
	"log"

	"github.com/certen-labs/chainindexer/internal/chainadapter"
	"github.com/certen-labs/chainindexer/internal/model"
)

// StoreReader is the subset of the storage engine the reorg handler
// needs: point lookups by height and a rollback of everything at or
// above a height.
type StoreReader interface {
	GetBlockHash(chain string, height uint64) (string, bool, error)
	RollbackFrom(ctx context.Context, chain string, from uint64) error
}

// Handler detects forks against a chain adapter's view and restores
// consistency via bounded-depth ancestor search plus rollback.
type Handler struct {
	store    StoreReader
	maxDepth uint64
	logger   *log.Logger
}

func New(store StoreReader, maxDepth uint64) *Handler {
	if maxDepth == 0 {
		maxDepth = 1024
	}
	return &Handler{store: store, maxDepth: maxDepth, logger: log.New(log.Writer(), "[Reorg] ", log.LstdFlags)}
}

// Check compares the incoming batch's lowest block against the stored
// chain tip. If the batch continues the stored chain, it returns (false,
// 0, nil). If a fork is detected, it walks backward to find the common
// ancestor, invokes rollback_from(ancestor+1), and returns (true,
// ancestor+1, nil) so the caller knows where to re-fetch from. Returns
// model.ErrDeepReorg if no ancestor is found within maxDepth.
func (h *Handler) Check(ctx context.Context, chain string, adapter chainadapter.Adapter, lowest model.Block) (reorged bool, resumeFrom uint64, err error) {
	if lowest.Height == 0 {
		return false, 0, nil
	}

	storedParentHash, ok, err := h.store.GetBlockHash(chain, lowest.Height-1)
	if err != nil {
		return false, 0, err
	}
	if !ok || storedParentHash == lowest.ParentHash {
		return false, 0, nil
	}

	h.logger.Printf("fork detected on %s at height %d (stored parent %s, batch parent %s)", chain, lowest.Height, storedParentHash, lowest.ParentHash)

	ancestor, err := h.findCommonAncestor(ctx, chain, adapter, lowest.Height-1)
	if err != nil {
		return false, 0, err
	}

	if err := h.store.RollbackFrom(ctx, chain, ancestor+1); err != nil {
		return false, 0, err
	}

	h.logger.Printf("rolled back %s to height %d, resuming from %d", chain, ancestor, ancestor+1)
	return true, ancestor + 1, nil
}

func (h *Handler) findCommonAncestor(ctx context.Context, chain string, adapter chainadapter.Adapter, from uint64) (uint64, error) {
	depth := uint64(0)
	height := from
	for {
		if depth >= h.maxDepth {
			return 0, fmt.Errorf("%w: chain %s exceeded bounded depth %d searching from height %d", model.ErrDeepReorg, chain, h.maxDepth, from)
		}

		storedHash, ok, err := h.store.GetBlockHash(chain, height)
		if err != nil {
			return 0, err
		}
		if !ok {
			if height == 0 {
				return 0, nil
			}
			height--
			depth++
			continue
		}

		adapterBlock, err := adapter.BlockAt(ctx, height)
		if err != nil {
			return 0, err
		}

		if storedHash == adapterBlock.Hash {
			return height, nil
		}
		if height == 0 {
			return 0, fmt.Errorf("%w: chain %s: genesis block itself diverges", model.ErrDeepReorg, chain)
		}
		height--
		depth++
	}
}
