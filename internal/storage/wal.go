package storage

import (
	"encoding/json"
	"fmt"
	"log"

	dbm "github.com/cometbft/cometbft-db"

	"github.com/certen-labs/chainindexer/internal/model"
)

// walEntry records the block a store_block_batch commit is about to
// write to the rich store, once the fast store side has already
// committed, so a crash between the two commits can be detected and
// replayed on restart (spec §9, scenario S6).
type walEntry struct {
	Chain string      `json:"chain"`
	Block model.Block `json:"block"`
}

const walKeyPrefix = "wal:pending:"

func walKey(chain string) []byte {
	return []byte(walKeyPrefix + chain)
}

// WAL is a minimal write-ahead log kept in the fast store's own backend,
// recording the one in-flight cross-store commit per chain. It exists
// solely to make "fast store committed, rich store did not yet commit"
// detectable and replayable on restart; it never holds more than one
// pending entry per chain since commits for a given chain are
// serialized by the pipeline.
type WAL struct {
	db     dbm.DB
	logger *log.Logger
}

func NewWAL(db dbm.DB) *WAL {
	return &WAL{db: db, logger: log.New(log.Writer(), "[WAL] ", log.LstdFlags)}
}

func (w *WAL) Begin(chain string, blk *model.Block) error {
	b, err := json.Marshal(walEntry{Chain: chain, Block: *blk})
	if err != nil {
		return model.NewFatalStorageError(err)
	}
	if err := w.db.SetSync(walKey(chain), b); err != nil {
		return model.NewTransientStorageError(err)
	}
	return nil
}

func (w *WAL) Commit(chain string) error {
	if err := w.db.DeleteSync(walKey(chain)); err != nil {
		return model.NewTransientStorageError(err)
	}
	return nil
}

// Pending returns the in-flight entry for chain, if one exists (meaning
// a prior process crashed after the fast-store commit and before the
// rich-store commit of the same block).
func (w *WAL) Pending(chain string) (*model.Block, error) {
	b, err := w.db.Get(walKey(chain))
	if err != nil {
		return nil, model.NewTransientStorageError(err)
	}
	if b == nil {
		return nil, nil
	}
	var entry walEntry
	if err := json.Unmarshal(b, &entry); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrMalformedData, err)
	}
	return &entry.Block, nil
}
