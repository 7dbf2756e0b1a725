// Package storage implements the hybrid storage engine of spec §4.2: a
// coordinator composing the fast store (internal/faststore) and the rich
// store (internal/richstore) behind a single transactional contract,
// following the teacher's "model each store behind an interface and
// compose them" guidance (spec §9) rather than leaking store-specific
// identifiers across the boundary.
package storage

import (
	"context"
	"fmt"
	"log"
	"time"

	dbm "github.com/cometbft/cometbft-db"

	"github.com/certen-labs/chainindexer/internal/faststore"
	"github.com/certen-labs/chainindexer/internal/model"
	"github.com/certen-labs/chainindexer/internal/richstore"
)

// Engine is the cross-store transaction coordinator. Commits write the
// fast store first (cheap, single-process, always available), record a
// WAL marker, then write the rich store, then clear the marker -
// "commit fast, then rich" per spec §4.2's atomicity note. A crash
// between the fast and rich commits is detected on the next call to
// RecoverPending and replayed.
type Engine struct {
	fast   *faststore.Store
	rich   *richstore.Repository
	client *richstore.Client
	wal    *WAL
	feed   *ChangeFeed
	logger *log.Logger
}

func NewEngine(fast *faststore.Store, richClient *richstore.Client, walDB dbm.DB) *Engine {
	return &Engine{
		fast:   fast,
		rich:   richstore.NewRepository(richClient),
		client: richClient,
		wal:    NewWAL(walDB),
		feed:   NewChangeFeed(),
		logger: log.New(log.Writer(), "[StorageEngine] ", log.LstdFlags),
	}
}

func (e *Engine) Feed() *ChangeFeed { return e.feed }

// StoreBlockBatch atomically persists blocks, transactions, and events
// across both stores, advances the chain cursor, and publishes the
// batch's events to the change feed. Blocks must be contiguous and
// chain to the currently stored tip; a discontinuity is reported as
// model.ErrReorgDetected so the caller (the pipeline/reorg handler) can
// react without this engine needing reorg-specific logic (spec §9:
// "do not use exceptions-as-flow for routine cases").
func (e *Engine) StoreBlockBatch(ctx context.Context, chain string, blocks []model.Block) error {
	if len(blocks) == 0 {
		return nil
	}

	cur, err := e.fast.GetCursor(chain)
	if err != nil && err != model.ErrNotFound {
		return err
	}

	for _, blk := range blocks {
		if cur != nil && blk.Height > 0 {
			if existing, gerr := e.fast.GetBlock(chain, blk.Height-1); gerr == nil {
				if existing.Hash != blk.ParentHash {
					return fmt.Errorf("%w: chain %s height %d parent %s != stored %s", model.ErrReorgDetected, chain, blk.Height, blk.ParentHash, existing.Hash)
				}
			}
		}

		if err := e.commitOne(ctx, chain, &blk); err != nil {
			return err
		}
		cur = &model.ChainCursor{Chain: chain, LatestProcessedHeight: blk.Height, LatestProcessedHash: blk.Hash, LastUpdated: time.Now().UTC()}
	}

	return nil
}

// commitOne performs the fast-then-rich commit of a single block,
// guarded by the WAL so a crash between the two commits is recoverable.
func (e *Engine) commitOne(ctx context.Context, chain string, blk *model.Block) error {
	if err := e.fast.PutBlock(blk); err != nil {
		return err
	}
	for i := range blk.Transactions {
		if err := e.fast.PutTransaction(&blk.Transactions[i]); err != nil {
			return err
		}
	}
	for i := range blk.Events {
		if err := e.fast.PutEvent(&blk.Events[i]); err != nil {
			return err
		}
	}
	fastCursor := model.ChainCursor{Chain: chain, LatestProcessedHeight: blk.Height, LatestProcessedHash: blk.Hash, LastUpdated: time.Now().UTC()}
	if err := e.fast.PutCursor(fastCursor); err != nil {
		return err
	}

	if err := e.wal.Begin(chain, blk); err != nil {
		return err
	}

	if err := e.commitRich(ctx, chain, blk, fastCursor); err != nil {
		return err
	}

	if err := e.wal.Commit(chain); err != nil {
		return err
	}

	for _, ev := range blk.Events {
		e.feed.Publish(ev)
	}
	return nil
}

func (e *Engine) commitRich(ctx context.Context, chain string, blk *model.Block, cur model.ChainCursor) error {
	tx, err := e.client.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := e.rich.PutBlockBatch(ctx, tx, blk); err != nil {
		return err
	}
	if err := e.rich.UpsertCursor(ctx, tx, cur); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return model.NewTransientStorageError(fmt.Errorf("committing rich store: %w", err))
	}
	return nil
}

// RecoverPending replays any rich-store commit left unfinished by a
// prior crash, for every chain with a WAL marker still set. Call once at
// startup before any chain begins ingesting (spec §9 "Global state"
// lifecycle: acquire on startup after config validation).
func (e *Engine) RecoverPending(ctx context.Context, chains []string) error {
	for _, chain := range chains {
		blk, err := e.wal.Pending(chain)
		if err != nil {
			return err
		}
		if blk == nil {
			continue
		}
		e.logger.Printf("replaying pending rich-store commit for chain %s height %d", chain, blk.Height)

		cur := model.ChainCursor{Chain: chain, LatestProcessedHeight: blk.Height, LatestProcessedHash: blk.Hash, LastUpdated: time.Now().UTC()}
		if err := e.commitRich(ctx, chain, blk, cur); err != nil {
			if marked := e.markDivergent(chain); marked != nil {
				return fmt.Errorf("%w: replay failed and could not mark chain divergent: %v (replay error: %v)", model.ErrDivergent, marked, err)
			}
			return fmt.Errorf("%w: chain %s: %v", model.ErrDivergent, chain, err)
		}
		if err := e.wal.Commit(chain); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) markDivergent(chain string) error {
	cur, err := e.fast.GetCursor(chain)
	if err != nil {
		return err
	}
	cur.Divergent = true
	return e.fast.PutCursor(*cur)
}

// CrossCheck compares fast and rich store (height, hash) enumerations for
// chain (testable property 3); a mismatch marks the chain Divergent.
func (e *Engine) CrossCheck(ctx context.Context, chain string, heights []uint64) error {
	richKeys, err := e.rich.BlockKeySet(ctx, chain)
	if err != nil {
		return err
	}
	for _, h := range heights {
		fastRec, ferr := e.fast.GetBlock(chain, h)
		richHash, inRich := richKeys[h]
		if ferr == model.ErrNotFound && !inRich {
			continue
		}
		if ferr != nil || !inRich || fastRec.Hash != richHash {
			if merr := e.markDivergent(chain); merr != nil {
				return merr
			}
			return fmt.Errorf("%w: chain %s height %d", model.ErrDivergent, chain, h)
		}
	}
	return nil
}

// RollbackFrom removes every block, transaction, and event with height
// >= from from both stores and rewinds the chain cursor, per spec §4.3's
// reorg-rollback contract and testable property 4.
func (e *Engine) RollbackFrom(ctx context.Context, chain string, from uint64) error {
	if err := e.fast.DeleteBlocksFrom(chain, from); err != nil {
		return err
	}

	tx, err := e.client.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.rich.DeleteFrom(ctx, tx, chain, from); err != nil {
		return err
	}

	newCursor := model.ChainCursor{Chain: chain}
	if from > 0 {
		blk, err := e.fast.GetBlock(chain, from-1)
		if err != nil && err != model.ErrNotFound {
			return err
		}
		if err == nil {
			newCursor = model.ChainCursor{Chain: chain, LatestProcessedHeight: from - 1, LatestProcessedHash: blk.Hash, LastUpdated: time.Now().UTC()}
		}
	}
	if err := e.rich.UpsertCursor(ctx, tx, newCursor); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return model.NewTransientStorageError(err)
	}

	if newCursor.Chain != "" {
		return e.fast.PutCursor(newCursor)
	}
	return e.fast.PutCursor(model.ChainCursor{Chain: chain})
}

func (e *Engine) GetLatestBlock(chain string) (uint64, error) {
	cur, err := e.fast.GetCursor(chain)
	if err != nil {
		return 0, err
	}
	return cur.LatestProcessedHeight, nil
}

func (e *Engine) GetLatestBlockWithStatus(chain string, status model.FinalityStatus) (uint64, error) {
	return e.fast.GetFinality(chain, status)
}

func (e *Engine) UpdateFinality(chain string, status model.FinalityStatus, height uint64) error {
	return e.fast.PutFinality(chain, status, height)
}

// GetEvents implements get_events' backend-selection rule (spec §4.2): a
// simple (chain, height) range with no further filter reads the fast
// store directly; a filter on event_type is not a prefix/range over
// (chain, height, contract), so it is served from the rich store's
// indexed query instead.
func (e *Engine) GetEvents(ctx context.Context, chain string, from, to uint64, eventType string) ([]model.Event, error) {
	if eventType == "" {
		return e.fast.EventsInRange(chain, from, to)
	}
	return e.rich.EventsByRange(ctx, chain, from, to, eventType)
}

func (e *Engine) GetEventsWithStatus(ctx context.Context, chain string, from, to uint64, status model.FinalityStatus, eventType string) ([]model.Event, error) {
	finalizedTo, err := e.fast.GetFinality(chain, status)
	if err != nil {
		if err == model.ErrNotFound {
			return nil, nil
		}
		return nil, err
	}
	if finalizedTo < to {
		to = finalizedTo
	}
	if from > to {
		return nil, nil
	}
	return e.GetEvents(ctx, chain, from, to, eventType)
}

func (e *Engine) GetEventsByAddress(ctx context.Context, chain, address string, limit, offset int) ([]model.Event, error) {
	return e.rich.EventsByAddress(ctx, chain, address, limit, offset)
}

func (e *Engine) GetCursor(chain string) (*model.ChainCursor, error) {
	return e.fast.GetCursor(chain)
}

// GetBlockHash implements reorg.StoreReader: it reports whether a block
// is stored at (chain, height) and its hash if so.
func (e *Engine) GetBlockHash(chain string, height uint64) (string, bool, error) {
	rec, err := e.fast.GetBlock(chain, height)
	if err == model.ErrNotFound {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return rec.Hash, true, nil
}
