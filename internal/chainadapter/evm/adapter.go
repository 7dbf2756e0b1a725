// Package evm implements chainadapter.Adapter for Ethereum and
// EVM-compatible chains, grounded on the teacher's pkg/ethereum/client.go
// (ethclient wiring) and pkg/chain/strategy/evm_strategy.go /
// evm_observer.go (strategy + observation shape).
package evm

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/certen-labs/chainindexer/internal/chainadapter"
	"github.com/certen-labs/chainindexer/internal/model"
)

// Config configures an Adapter instance.
type Config struct {
	ChainName      string
	RPCURL         string
	ChainID        int64
	FinalityBlocks uint64 // confirmations treated as "finalized" when the node lacks native finality (e.g. pre-merge chains)
}

// Adapter implements chainadapter.Adapter for EVM chains via
// go-ethereum's ethclient.Client, the same client the teacher dials in
// pkg/ethereum.NewClient.
type Adapter struct {
	cfg    Config
	client *ethclient.Client
}

// Dial connects to the chain's RPC endpoint.
func Dial(cfg Config) (*Adapter, error) {
	client, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("%w: dialing %s: %v", model.ErrNetwork, cfg.RPCURL, err)
	}
	return &Adapter{cfg: cfg, client: client}, nil
}

func (a *Adapter) Family() chainadapter.Family { return chainadapter.FamilyEVM }
func (a *Adapter) ChainName() string           { return a.cfg.ChainName }

func (a *Adapter) LatestHeight(ctx context.Context) (uint64, error) {
	n, err := a.client.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", model.ErrNetwork, err)
	}
	return n, nil
}

// FinalizedHeight and SafeHeight query the post-merge "finalized"/"safe"
// block tags where the node supports them; EVM chains that predate or
// disable those tags (most L2s, most pre-merge testnets) fall back to
// "latest height minus FinalityBlocks confirmations", the same
// conservative-promotion rule spec §4.1 describes. JustifiedHeight has no
// EVM analogue and always returns ErrUnsupported.
func (a *Adapter) FinalizedHeight(ctx context.Context) (uint64, error) {
	return a.taggedOrConfirmed(ctx, "finalized")
}

func (a *Adapter) SafeHeight(ctx context.Context) (uint64, error) {
	return a.taggedOrConfirmed(ctx, "safe")
}

func (a *Adapter) JustifiedHeight(ctx context.Context) (uint64, error) {
	return 0, fmt.Errorf("%w: EVM chains do not expose a justified tier", model.ErrUnsupported)
}

func (a *Adapter) taggedOrConfirmed(ctx context.Context, tag string) (uint64, error) {
	header, err := a.client.HeaderByNumber(ctx, blockTagNumber(tag))
	if err == nil {
		return header.Number.Uint64(), nil
	}
	if a.cfg.FinalityBlocks == 0 {
		return 0, fmt.Errorf("%w: chain does not expose %q and no FinalityBlocks confirmations configured", model.ErrUnsupported, tag)
	}
	latest, lerr := a.LatestHeight(ctx)
	if lerr != nil {
		return 0, lerr
	}
	if latest < a.cfg.FinalityBlocks {
		return 0, nil
	}
	return latest - a.cfg.FinalityBlocks, nil
}

// blockTagNumber encodes the post-merge pseudo block numbers go-ethereum
// uses for named tags.
func blockTagNumber(tag string) *big.Int {
	switch tag {
	case "finalized":
		return big.NewInt(rpcFinalizedBlockNumber)
	case "safe":
		return big.NewInt(rpcSafeBlockNumber)
	default:
		return nil // latest
	}
}

const (
	rpcFinalizedBlockNumber = -3
	rpcSafeBlockNumber      = -4
)

func (a *Adapter) BlockAt(ctx context.Context, height uint64) (*model.Block, error) {
	blk, err := a.client.BlockByNumber(ctx, new(big.Int).SetUint64(height))
	if err != nil {
		if err == ethereum.NotFound {
			return nil, fmt.Errorf("%w: block %d", model.ErrNotFound, height)
		}
		return nil, fmt.Errorf("%w: %v", model.ErrNetwork, err)
	}

	ts := time.Unix(int64(blk.Time()), 0).UTC()
	out := &model.Block{
		Chain:      a.cfg.ChainName,
		Height:     blk.NumberU64(),
		Hash:       blk.Hash().Hex(),
		ParentHash: blk.ParentHash().Hex(),
		Timestamp:  ts,
		Status:     model.StatusConfirmed,
	}

	for _, tx := range blk.Transactions() {
		out.Transactions = append(out.Transactions, a.decodeTransaction(tx, ts))
	}

	logs, err := a.client.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(height),
		ToBlock:   new(big.Int).SetUint64(height),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: fetching logs for block %d: %v", model.ErrNetwork, height, err)
	}
	for _, lg := range logs {
		ev, derr := a.decodeLog(lg, ts)
		if derr != nil {
			return nil, fmt.Errorf("%w: %v", model.ErrMalformedData, derr)
		}
		out.Events = append(out.Events, ev)
	}

	return out, nil
}

// decodeTransaction extracts the chain-agnostic Transaction fields go-ethereum
// exposes without a receipt. Sender recovery requires the chain's signer,
// which varies by chain ID; recipients and value are always available from
// the unsigned fields.
func (a *Adapter) decodeTransaction(tx *types.Transaction, ts time.Time) model.Transaction {
	var recipient string
	if to := tx.To(); to != nil {
		recipient = to.Hex()
	}
	signer := types.LatestSignerForChainID(tx.ChainId())
	sender := ""
	if from, err := types.Sender(signer, tx); err == nil {
		sender = from.Hex()
	}
	return model.Transaction{
		Chain:     a.cfg.ChainName,
		TxHash:    tx.Hash().Hex(),
		Sender:    sender,
		Recipient: recipient,
		Value:     tx.Value().String(),
		Data:      tx.Data(),
		Timestamp: ts,
	}
}

// decodeLog converts a go-ethereum Log into the chain-agnostic Event
// model. All topics, including the event selector in topic 0, are
// preserved verbatim as hex strings in Topics; the raw log (RLP-encoded) is preserved in
// RawBytes so callers needing ABI-specific decoding can recover it,
// matching spec §4.1's "unknown fields are preserved in raw_bytes" rule.
func (a *Adapter) decodeLog(lg types.Log, ts time.Time) (model.Event, error) {
	raw, err := rlp.EncodeToBytes(lg)
	if err != nil {
		return model.Event{}, fmt.Errorf("encoding raw log: %w", err)
	}

	topics := make([]string, len(lg.Topics))
	for i, t := range lg.Topics {
		topics[i] = t.Hex()
	}

	eventType := "unknown"
	if len(lg.Topics) > 0 {
		eventType = lg.Topics[0].Hex()
	}

	attrs := map[string]model.EventValue{
		"data": model.StringValue(common.Bytes2Hex(lg.Data)),
	}

	return model.Event{
		Chain:            a.cfg.ChainName,
		BlockRef:         lg.BlockNumber,
		TxRef:            lg.TxHash.Hex(),
		LogIndex:         uint64(lg.Index),
		ContractAddress:  lg.Address.Hex(),
		EventType:        eventType,
		Topics:           topics,
		Attributes:       attrs,
		RawBytes:         raw,
		Timestamp:        ts,
		DeterminismClass: model.DeterministicClass,
	}, nil
}

func (a *Adapter) EventsForRange(ctx context.Context, from, to uint64, filter chainadapter.EventFilter) ([]model.Event, error) {
	q := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
	}
	if filter.ContractAddress != "" {
		q.Addresses = []common.Address{common.HexToAddress(filter.ContractAddress)}
	}
	logs, err := a.client.FilterLogs(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrNetwork, err)
	}

	// Block timestamps are not part of a log; cache headers by height to
	// avoid re-fetching per log within the same block.
	tsCache := map[uint64]time.Time{}
	events := make([]model.Event, 0, len(logs))
	for _, lg := range logs {
		ts, ok := tsCache[lg.BlockNumber]
		if !ok {
			header, herr := a.client.HeaderByNumber(ctx, new(big.Int).SetUint64(lg.BlockNumber))
			if herr != nil {
				return nil, fmt.Errorf("%w: fetching header for block %d: %v", model.ErrNetwork, lg.BlockNumber, herr)
			}
			ts = time.Unix(int64(header.Time), 0).UTC()
			tsCache[lg.BlockNumber] = ts
		}
		ev, derr := a.decodeLog(lg, ts)
		if derr != nil {
			return nil, fmt.Errorf("%w: %v", model.ErrMalformedData, derr)
		}
		if filter.EventType != "" && !strings.EqualFold(ev.EventType, filter.EventType) {
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

// SubscribeLogs delivers newly observed logs via go-ethereum's
// SubscribeFilterLogs where the RPC endpoint supports WebSocket
// subscriptions; events may reorder within an unfinalized window per
// spec §4.1, so the caller must dedupe by (tx_hash, log_index).
func (a *Adapter) SubscribeLogs(ctx context.Context, filter chainadapter.EventFilter) (<-chan model.Event, error) {
	q := ethereum.FilterQuery{}
	if filter.ContractAddress != "" {
		q.Addresses = []common.Address{common.HexToAddress(filter.ContractAddress)}
	}

	raw := make(chan types.Log)
	sub, err := a.client.SubscribeFilterLogs(ctx, q, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: subscribing to logs: %v", model.ErrNetwork, err)
	}

	out := make(chan model.Event)
	go func() {
		defer close(out)
		defer sub.Unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case err := <-sub.Err():
				if err != nil {
					return
				}
			case lg := <-raw:
				ev, derr := a.decodeLog(lg, time.Now().UTC())
				if derr != nil {
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
