package richstore

import (
	"context"
	"database/sql"
	"errors"
	"strconv"

	"github.com/certen-labs/chainindexer/internal/model"
)

// UpsertMessage inserts or updates a cross-chain message by id. The
// update is conditional on the stored status: a row already in a terminal
// status (executed, failed, timed_out) is left unchanged
// (spec §4.6, testable property 6).
func (r *Repository) UpsertMessage(ctx context.Context, msg *model.CrossChainMessage) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO cross_chain_messages (
			id, source_chain, source_block_height, source_tx_hash,
			target_chain, target_block_height, target_tx_hash,
			nonce, sender, recipient, payload_bytes, status, retry_count,
			error, execution_result, created_at, delivered_at, executed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
		ON CONFLICT (id) DO UPDATE SET
			target_chain = EXCLUDED.target_chain,
			target_block_height = EXCLUDED.target_block_height,
			target_tx_hash = EXCLUDED.target_tx_hash,
			status = EXCLUDED.status,
			retry_count = EXCLUDED.retry_count,
			error = EXCLUDED.error,
			execution_result = EXCLUDED.execution_result,
			delivered_at = EXCLUDED.delivered_at,
			executed_at = EXCLUDED.executed_at
		WHERE cross_chain_messages.status NOT IN ('executed', 'failed', 'timed_out')`,
		msg.ID, msg.SourceChain, msg.SourceBlockHeight, msg.SourceTxHash,
		msg.TargetChain, msg.TargetBlockHeight, msg.TargetTxHash,
		msg.Nonce, msg.Sender, msg.Recipient, msg.PayloadBytes, msg.Status, msg.RetryCount,
		msg.Error, msg.ExecutionResult, msg.CreatedAt, msg.DeliveredAt, msg.ExecutedAt)
	if err != nil {
		return model.NewTransientStorageError(err)
	}
	return nil
}

func (r *Repository) GetMessage(ctx context.Context, id string) (*model.CrossChainMessage, error) {
	var m model.CrossChainMessage
	m.ID = id
	err := r.db.QueryRowContext(ctx, `
		SELECT source_chain, source_block_height, source_tx_hash,
		       target_chain, target_block_height, target_tx_hash,
		       nonce, sender, recipient, payload_bytes, status, retry_count,
		       error, execution_result, created_at, delivered_at, executed_at
		FROM cross_chain_messages WHERE id = $1`, id).Scan(
		&m.SourceChain, &m.SourceBlockHeight, &m.SourceTxHash,
		&m.TargetChain, &m.TargetBlockHeight, &m.TargetTxHash,
		&m.Nonce, &m.Sender, &m.Recipient, &m.PayloadBytes, &m.Status, &m.RetryCount,
		&m.Error, &m.ExecutionResult, &m.CreatedAt, &m.DeliveredAt, &m.ExecutedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, model.NewTransientStorageError(err)
	}
	return &m, nil
}

// ListMessagesFilter narrows ListMessages; zero values mean "no filter".
type ListMessagesFilter struct {
	SourceChain string
	TargetChain string
	Status      model.MessageStatus
}

func (r *Repository) ListMessages(ctx context.Context, filter ListMessagesFilter, limit, offset int) ([]model.CrossChainMessage, error) {
	query := `
		SELECT id, source_chain, source_block_height, source_tx_hash,
		       target_chain, target_block_height, target_tx_hash,
		       nonce, sender, recipient, payload_bytes, status, retry_count,
		       error, execution_result, created_at, delivered_at, executed_at
		FROM cross_chain_messages WHERE 1=1`
	var args []interface{}
	argN := 1
	if filter.SourceChain != "" {
		query += addParam("source_chain", &argN)
		args = append(args, filter.SourceChain)
	}
	if filter.TargetChain != "" {
		query += addParam("target_chain", &argN)
		args = append(args, filter.TargetChain)
	}
	if filter.Status != "" {
		query += addParam("status", &argN)
		args = append(args, filter.Status)
	}
	query += " ORDER BY created_at DESC LIMIT $" + strconv.Itoa(argN) + " OFFSET $" + strconv.Itoa(argN+1)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, model.NewTransientStorageError(err)
	}
	defer rows.Close()

	var out []model.CrossChainMessage
	for rows.Next() {
		var m model.CrossChainMessage
		if err := rows.Scan(&m.ID, &m.SourceChain, &m.SourceBlockHeight, &m.SourceTxHash,
			&m.TargetChain, &m.TargetBlockHeight, &m.TargetTxHash,
			&m.Nonce, &m.Sender, &m.Recipient, &m.PayloadBytes, &m.Status, &m.RetryCount,
			&m.Error, &m.ExecutionResult, &m.CreatedAt, &m.DeliveredAt, &m.ExecutedAt); err != nil {
			return nil, model.NewTransientStorageError(err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ListNonTerminalIDs returns the ids of every message not yet in a
// terminal status, for the correlator's periodic timeout sweep (spec
// §4.6 last lifecycle row). Unbounded: a chain-indexer's working set of
// in-flight messages is small relative to its historical total.
func (r *Repository) ListNonTerminalIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM cross_chain_messages WHERE status NOT IN ($1, $2, $3)`,
		model.MessageExecuted, model.MessageFailed, model.MessageTimedOut)
	if err != nil {
		return nil, model.NewTransientStorageError(err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, model.NewTransientStorageError(err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func addParam(column string, argN *int) string {
	s := " AND " + column + " = $" + strconv.Itoa(*argN)
	*argN++
	return s
}
