package model

import "time"

// MessageStatus is a CrossChainMessage's position in its lifecycle DAG:
// Originated -> InTransit -> Delivered -> Executed | Failed, with
// Originated/InTransit/Delivered -> TimedOut as an additional sink
// (spec §4.6).
type MessageStatus string

const (
	MessageOriginated MessageStatus = "originated"
	MessageInTransit  MessageStatus = "in_transit"
	MessageDelivered  MessageStatus = "delivered"
	MessageExecuted   MessageStatus = "executed"
	MessageFailed     MessageStatus = "failed"
	MessageTimedOut   MessageStatus = "timed_out"
)

// Terminal reports whether the status is one of the DAG's sinks.
func (s MessageStatus) Terminal() bool {
	switch s {
	case MessageExecuted, MessageFailed, MessageTimedOut:
		return true
	default:
		return false
	}
}

// validTransitions enumerates the DAG edges of spec §4.6's lifecycle
// table. CanTransition consults it so the correlator never needs to
// special-case ordering logic inline.
var validTransitions = map[MessageStatus]map[MessageStatus]bool{
	MessageOriginated: {MessageInTransit: true, MessageDelivered: true, MessageTimedOut: true},
	MessageInTransit:  {MessageDelivered: true, MessageTimedOut: true},
	MessageDelivered:  {MessageExecuted: true, MessageFailed: true, MessageTimedOut: true},
}

// CanTransition reports whether moving from `from` to `to` is a legal
// edge in the lifecycle DAG.
func CanTransition(from, to MessageStatus) bool {
	return validTransitions[from][to]
}

// CrossChainMessage is the lifecycle record joining a source-chain send
// event with a target-chain delivery/execution event under a
// deterministic identifier.
type CrossChainMessage struct {
	ID                string        `json:"id"`
	SourceChain       string        `json:"source_chain"`
	TargetChain       string        `json:"target_chain"`
	SourceBlockHeight uint64        `json:"source_block_height"`
	SourceTxHash      string        `json:"source_tx_hash"`
	TargetBlockHeight uint64        `json:"target_block_height,omitempty"`
	TargetTxHash      string        `json:"target_tx_hash,omitempty"`
	Nonce             string        `json:"nonce"`
	Sender            string        `json:"sender"`
	Recipient         string        `json:"recipient"`
	PayloadBytes      []byte        `json:"payload_bytes,omitempty"`
	Status            MessageStatus `json:"status"`
	RetryCount        int           `json:"retry_count"`
	Error             string        `json:"error,omitempty"`
	ExecutionResult   string        `json:"execution_result,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
	DeliveredAt       *time.Time    `json:"delivered_at,omitempty"`
	ExecutedAt        *time.Time    `json:"executed_at,omitempty"`
}
