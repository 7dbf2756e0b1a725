// Package faststore implements the embedded ordered key-value backend of
// spec §4.2, wrapping github.com/cometbft/cometbft-db the way the teacher
// wraps it in pkg/kvdb.KVAdapter and pkg/ledger.LedgerStore, generalized
// from the teacher's single-writer ledger shape to the concurrent
// point-lookup/range-scan contract the storage engine needs.
package faststore

import (
	"encoding/json"
	"fmt"

	dbm "github.com/cometbft/cometbft-db"

	"github.com/certen-labs/chainindexer/internal/model"
)

// Store is the embedded KV backend for a single process. All chains
// share one underlying dbm.DB, namespaced by the key layout in keys.go.
type Store struct {
	db dbm.DB
}

// Open opens (creating if absent) a store named name rooted at dir.
// backend selects the cometbft-db backend type ("goleveldb" or
// "badgerdb"), mirroring storage.fast_store_backend.
func Open(name, dir, backend string) (*Store, error) {
	db, err := dbm.NewDB(name, dbm.BackendType(backend), dir)
	if err != nil {
		return nil, model.NewFatalStorageError(fmt.Errorf("opening fast store: %w", err))
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// PutBlock persists a block header (without transactions/events, which
// are stored under their own keys). The chain cursor is written
// separately by PutCursor.
func (s *Store) PutBlock(blk *model.Block) error {
	txHashes := make([]string, len(blk.Transactions))
	for i, t := range blk.Transactions {
		txHashes[i] = t.TxHash
	}
	rec := blockRecord{
		Hash:       blk.Hash,
		ParentHash: blk.ParentHash,
		Timestamp:  blk.Timestamp.UnixNano(),
		Status:     blk.Status,
		TxHashes:   txHashes,
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return model.NewFatalStorageError(err)
	}
	if err := s.db.SetSync(blockKey(blk.Chain, blk.Height), b); err != nil {
		return model.NewTransientStorageError(err)
	}
	return nil
}

func (s *Store) GetBlock(chain string, height uint64) (*blockRecord, error) {
	b, err := s.db.Get(blockKey(chain, height))
	if err != nil {
		return nil, model.NewTransientStorageError(err)
	}
	if b == nil {
		return nil, model.ErrNotFound
	}
	var rec blockRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrMalformedData, err)
	}
	return &rec, nil
}

// DeleteBlocksFrom removes every block, event, and tx key at height >=
// from for chain, used by rollback_from (spec §4.2/§4.3).
func (s *Store) DeleteBlocksFrom(chain string, from uint64) error {
	it, err := s.db.Iterator(blockKey(chain, from), prefixUpperBound(blockPrefix(chain)))
	if err != nil {
		return model.NewTransientStorageError(err)
	}
	defer it.Close()
	var keys [][]byte
	for ; it.Valid(); it.Next() {
		keys = append(keys, append([]byte{}, it.Key()...))
		var rec blockRecord
		if err := json.Unmarshal(it.Value(), &rec); err == nil {
			for _, h := range rec.TxHashes {
				keys = append(keys, txKey(chain, h))
			}
		}
	}
	if err := it.Error(); err != nil {
		return model.NewTransientStorageError(err)
	}

	eit, err := s.db.Iterator(eventLowerBound(chain, from), prefixUpperBound(eventRangePrefix(chain)))
	if err != nil {
		return model.NewTransientStorageError(err)
	}
	defer eit.Close()
	for ; eit.Valid(); eit.Next() {
		keys = append(keys, append([]byte{}, eit.Key()...))
	}
	if err := eit.Error(); err != nil {
		return model.NewTransientStorageError(err)
	}

	batch := s.db.NewBatch()
	defer batch.Close()
	for _, k := range keys {
		if err := batch.Delete(k); err != nil {
			return model.NewTransientStorageError(err)
		}
	}
	if err := batch.WriteSync(); err != nil {
		return model.NewTransientStorageError(err)
	}
	return nil
}

func (s *Store) PutEvent(ev *model.Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return model.NewFatalStorageError(err)
	}
	if err := s.db.SetSync(eventKey(ev.Chain, ev.BlockRef, ev.LogIndex), b); err != nil {
		return model.NewTransientStorageError(err)
	}
	return nil
}

// PutTransaction persists a transaction under the spec §4.2 normative
// tx:<chain>:<tx_hash> key, independent of its owning block's key.
func (s *Store) PutTransaction(tx *model.Transaction) error {
	b, err := json.Marshal(tx)
	if err != nil {
		return model.NewFatalStorageError(err)
	}
	if err := s.db.SetSync(txKey(tx.Chain, tx.TxHash), b); err != nil {
		return model.NewTransientStorageError(err)
	}
	return nil
}

func (s *Store) GetTransaction(chain, txHash string) (*model.Transaction, error) {
	b, err := s.db.Get(txKey(chain, txHash))
	if err != nil {
		return nil, model.NewTransientStorageError(err)
	}
	if b == nil {
		return nil, model.ErrNotFound
	}
	var tx model.Transaction
	if err := json.Unmarshal(b, &tx); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrMalformedData, err)
	}
	return &tx, nil
}

// EventsInRange returns events for chain with height in [from, to],
// ordered by (height, log_index) ascending - the natural lexicographic
// order of the key layout.
func (s *Store) EventsInRange(chain string, from, to uint64) ([]model.Event, error) {
	it, err := s.db.Iterator(eventLowerBound(chain, from), eventUpperBound(chain, to))
	if err != nil {
		return nil, model.NewTransientStorageError(err)
	}
	defer it.Close()

	var out []model.Event
	for ; it.Valid(); it.Next() {
		var ev model.Event
		if err := json.Unmarshal(it.Value(), &ev); err != nil {
			return nil, fmt.Errorf("%w: %v", model.ErrMalformedData, err)
		}
		out = append(out, ev)
	}
	if err := it.Error(); err != nil {
		return nil, model.NewTransientStorageError(err)
	}
	return out, nil
}

func (s *Store) PutCursor(cur model.ChainCursor) error {
	b, err := json.Marshal(cur)
	if err != nil {
		return model.NewFatalStorageError(err)
	}
	if err := s.db.SetSync(cursorKey(cur.Chain), b); err != nil {
		return model.NewTransientStorageError(err)
	}
	return nil
}

func (s *Store) GetCursor(chain string) (*model.ChainCursor, error) {
	b, err := s.db.Get(cursorKey(chain))
	if err != nil {
		return nil, model.NewTransientStorageError(err)
	}
	if b == nil {
		return nil, model.ErrNotFound
	}
	var cur model.ChainCursor
	if err := json.Unmarshal(b, &cur); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrMalformedData, err)
	}
	return &cur, nil
}

func (s *Store) PutFinality(chain string, status model.FinalityStatus, height uint64) error {
	b := beHeight(height)
	if err := s.db.SetSync(finalityKey(chain, string(status)), b); err != nil {
		return model.NewTransientStorageError(err)
	}
	return nil
}

func (s *Store) GetFinality(chain string, status model.FinalityStatus) (uint64, error) {
	b, err := s.db.Get(finalityKey(chain, string(status)))
	if err != nil {
		return 0, model.NewTransientStorageError(err)
	}
	if b == nil {
		return 0, model.ErrNotFound
	}
	return beToUint64(b), nil
}

type blockRecord struct {
	Hash       string               `json:"hash"`
	ParentHash string               `json:"parent_hash"`
	Timestamp  int64                `json:"timestamp"`
	Status     model.FinalityStatus `json:"status"`
	TxHashes   []string             `json:"tx_hashes,omitempty"`
}

func beToUint64(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}

// prefixUpperBound returns the smallest key greater than every key with
// the given prefix, for use as an iterator's exclusive end bound.
func prefixUpperBound(prefix []byte) []byte {
	end := append([]byte{}, prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil // prefix is all 0xff: unbounded
}
