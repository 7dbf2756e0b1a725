package richstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/certen-labs/chainindexer/internal/model"
)

// Repository provides relational CRUD over blocks, transactions, events,
// chain cursors, and cross-chain messages, following the teacher's
// single-struct-per-domain repository convention in pkg/database.
type Repository struct {
	db *sql.DB
}

func NewRepository(client *Client) *Repository {
	return &Repository{db: client.DB()}
}

// PutBlockBatch inserts a block, its transactions, and its events within
// tx, enforcing the uniqueness invariants of spec §3 via the schema's
// UNIQUE constraints.
func (r *Repository) PutBlockBatch(ctx context.Context, tx *Tx, blk *model.Block) error {
	sqlTx := tx.Tx()

	_, err := sqlTx.ExecContext(ctx, `
		INSERT INTO blocks (chain, height, hash, parent_hash, status, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (chain, height) DO UPDATE SET
			hash = EXCLUDED.hash,
			parent_hash = EXCLUDED.parent_hash,
			status = EXCLUDED.status,
			timestamp = EXCLUDED.timestamp`,
		blk.Chain, blk.Height, blk.Hash, blk.ParentHash, blk.Status, blk.Timestamp)
	if err != nil {
		return model.NewTransientStorageError(fmt.Errorf("inserting block: %w", err))
	}

	for _, t := range blk.Transactions {
		_, err := sqlTx.ExecContext(ctx, `
			INSERT INTO transactions (chain, block_ref, tx_hash, sender, recipient, value, status, gas_used, timestamp)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (chain, tx_hash) DO NOTHING`,
			t.Chain, blk.Height, t.TxHash, t.Sender, t.Recipient, t.Value, t.Status, t.GasUsed, t.Timestamp)
		if err != nil {
			return model.NewTransientStorageError(fmt.Errorf("inserting transaction %s: %w", t.TxHash, err))
		}
	}

	for _, ev := range blk.Events {
		topicsJSON, err := json.Marshal(ev.Topics)
		if err != nil {
			return model.NewFatalStorageError(err)
		}
		attrsJSON, err := json.Marshal(ev.Attributes)
		if err != nil {
			return model.NewFatalStorageError(err)
		}
		_, err = sqlTx.ExecContext(ctx, `
			INSERT INTO events (chain, block_ref, tx_ref, log_index, contract_address, event_type, topics, attributes, raw_bytes, determinism_class, timestamp)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (chain, tx_ref, log_index) DO NOTHING`,
			ev.Chain, ev.BlockRef, ev.TxRef, ev.LogIndex, ev.ContractAddress, ev.EventType, topicsJSON, attrsJSON, ev.RawBytes, ev.DeterminismClass, ev.Timestamp)
		if err != nil {
			return model.NewTransientStorageError(fmt.Errorf("inserting event (%s,%d): %w", ev.TxRef, ev.LogIndex, err))
		}
	}

	return nil
}

// DeleteFrom removes all blocks/transactions/events at height >= from for
// chain, used by rollback_from (spec §4.3).
func (r *Repository) DeleteFrom(ctx context.Context, tx *Tx, chain string, from uint64) error {
	sqlTx := tx.Tx()
	if _, err := sqlTx.ExecContext(ctx, `DELETE FROM events WHERE chain = $1 AND block_ref >= $2`, chain, from); err != nil {
		return model.NewTransientStorageError(err)
	}
	if _, err := sqlTx.ExecContext(ctx, `DELETE FROM transactions WHERE chain = $1 AND block_ref >= $2`, chain, from); err != nil {
		return model.NewTransientStorageError(err)
	}
	if _, err := sqlTx.ExecContext(ctx, `DELETE FROM blocks WHERE chain = $1 AND height >= $2`, chain, from); err != nil {
		return model.NewTransientStorageError(err)
	}
	return nil
}

func (r *Repository) UpsertCursor(ctx context.Context, tx *Tx, cur model.ChainCursor) error {
	_, err := tx.Tx().ExecContext(ctx, `
		INSERT INTO chain_cursors (chain, latest_processed_height, latest_processed_hash, divergent, last_updated)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (chain) DO UPDATE SET
			latest_processed_height = EXCLUDED.latest_processed_height,
			latest_processed_hash = EXCLUDED.latest_processed_hash,
			divergent = EXCLUDED.divergent,
			last_updated = EXCLUDED.last_updated`,
		cur.Chain, cur.LatestProcessedHeight, cur.LatestProcessedHash, cur.Divergent, cur.LastUpdated)
	if err != nil {
		return model.NewTransientStorageError(err)
	}
	return nil
}

func (r *Repository) GetCursor(ctx context.Context, chain string) (*model.ChainCursor, error) {
	var cur model.ChainCursor
	cur.Chain = chain
	err := r.db.QueryRowContext(ctx, `
		SELECT latest_processed_height, latest_processed_hash, divergent, last_updated
		FROM chain_cursors WHERE chain = $1`, chain).
		Scan(&cur.LatestProcessedHeight, &cur.LatestProcessedHash, &cur.Divergent, &cur.LastUpdated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, model.NewTransientStorageError(err)
	}
	return &cur, nil
}

// BlockKeySet enumerates (height, hash) for chain, used by the storage
// engine's fast/rich cross-check (spec testable property 3).
func (r *Repository) BlockKeySet(ctx context.Context, chain string) (map[uint64]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT height, hash FROM blocks WHERE chain = $1`, chain)
	if err != nil {
		return nil, model.NewTransientStorageError(err)
	}
	defer rows.Close()

	out := make(map[uint64]string)
	for rows.Next() {
		var h uint64
		var hash string
		if err := rows.Scan(&h, &hash); err != nil {
			return nil, model.NewTransientStorageError(err)
		}
		out[h] = hash
	}
	return out, rows.Err()
}

func (r *Repository) EventsByRange(ctx context.Context, chain string, from, to uint64, eventType string) ([]model.Event, error) {
	query := `
		SELECT block_ref, tx_ref, log_index, contract_address, event_type, topics, attributes, raw_bytes, determinism_class, timestamp
		FROM events WHERE chain = $1 AND block_ref BETWEEN $2 AND $3`
	args := []interface{}{chain, from, to}
	if eventType != "" {
		query += ` AND event_type = $4`
		args = append(args, eventType)
	}
	query += ` ORDER BY block_ref ASC, log_index ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, model.NewTransientStorageError(err)
	}
	defer rows.Close()

	var out []model.Event
	for rows.Next() {
		ev := model.Event{Chain: chain}
		var topicsJSON, attrsJSON []byte
		if err := rows.Scan(&ev.BlockRef, &ev.TxRef, &ev.LogIndex, &ev.ContractAddress, &ev.EventType, &topicsJSON, &attrsJSON, &ev.RawBytes, &ev.DeterminismClass, &ev.Timestamp); err != nil {
			return nil, model.NewTransientStorageError(err)
		}
		if len(topicsJSON) > 0 {
			if err := json.Unmarshal(topicsJSON, &ev.Topics); err != nil {
				return nil, fmt.Errorf("%w: %v", model.ErrMalformedData, err)
			}
		}
		if len(attrsJSON) > 0 {
			if err := json.Unmarshal(attrsJSON, &ev.Attributes); err != nil {
				return nil, fmt.Errorf("%w: %v", model.ErrMalformedData, err)
			}
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (r *Repository) EventsByAddress(ctx context.Context, chain, address string, limit, offset int) ([]model.Event, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT block_ref, tx_ref, log_index, contract_address, event_type, topics, attributes, raw_bytes, determinism_class, timestamp
		FROM events WHERE chain = $1 AND contract_address = $2
		ORDER BY block_ref DESC, log_index DESC
		LIMIT $3 OFFSET $4`, chain, address, limit, offset)
	if err != nil {
		return nil, model.NewTransientStorageError(err)
	}
	defer rows.Close()

	var out []model.Event
	for rows.Next() {
		ev := model.Event{Chain: chain}
		var topicsJSON, attrsJSON []byte
		if err := rows.Scan(&ev.BlockRef, &ev.TxRef, &ev.LogIndex, &ev.ContractAddress, &ev.EventType, &topicsJSON, &attrsJSON, &ev.RawBytes, &ev.DeterminismClass, &ev.Timestamp); err != nil {
			return nil, model.NewTransientStorageError(err)
		}
		if len(topicsJSON) > 0 {
			if err := json.Unmarshal(topicsJSON, &ev.Topics); err != nil {
				return nil, fmt.Errorf("%w: %v", model.ErrMalformedData, err)
			}
		}
		if len(attrsJSON) > 0 {
			if err := json.Unmarshal(attrsJSON, &ev.Attributes); err != nil {
				return nil, fmt.Errorf("%w: %v", model.ErrMalformedData, err)
			}
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
