package model

import "time"

// DeterminismClass classifies how trustworthy an event's provenance is,
// attached at ingest time by the chain adapter. The core preserves the
// field on every read path but does not filter by it (spec §9, open
// question "determinism classification usage").
type DeterminismClass string

const (
	DeterministicClass    DeterminismClass = "deterministic"     // EVM logs, Cosmos message responses
	NonDeterministicClass DeterminismClass = "non_deterministic" // some Cosmos ABCI events
	LightClientVerifiable DeterminismClass = "light_client_verifiable"
)

// Block is a chain-agnostic normalized block header plus its transactions
// and events.
type Block struct {
	Chain      string         `json:"chain"`
	Height     uint64         `json:"height"`
	Hash       string         `json:"hash"`
	ParentHash string         `json:"parent_hash"`
	Timestamp  time.Time      `json:"timestamp"`
	Status     FinalityStatus `json:"status"`

	Transactions []Transaction `json:"transactions,omitempty"`
	Events       []Event       `json:"events,omitempty"`
}

// Transaction is a chain-agnostic normalized transaction. It is immutable
// once stored; it is created with its block and deleted with it on reorg.
type Transaction struct {
	Chain     string    `json:"chain"`
	BlockRef  uint64    `json:"block_ref"` // height of the owning block
	TxHash    string    `json:"tx_hash"`
	Sender    string    `json:"sender"`
	Recipient string    `json:"recipient,omitempty"`
	Value     string    `json:"value,omitempty"` // decimal string; avoids precision loss across chain-native numeric types
	Data      []byte    `json:"data,omitempty"`
	Status    string    `json:"status,omitempty"`
	GasUsed   uint64    `json:"gas_used,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Event is a chain-agnostic normalized contract/module event.
type Event struct {
	Chain           string            `json:"chain"`
	BlockRef        uint64            `json:"block_ref"`
	TxRef           string            `json:"tx_ref"` // tx_hash of the owning transaction
	LogIndex        uint64            `json:"log_index"`
	ContractAddress string            `json:"contract_address"`
	EventType       string            `json:"event_type"`
	Topics          []string          `json:"topics,omitempty"`
	Attributes      map[string]EventValue `json:"attributes,omitempty"`
	RawBytes        []byte            `json:"raw_bytes,omitempty"`
	Timestamp       time.Time         `json:"timestamp"`
	DeterminismClass DeterminismClass `json:"determinism_class"`
}

// Key returns the (chain, tx_hash, log_index) uniqueness key for an event.
func (e Event) Key() (chain, txHash string, logIndex uint64) {
	return e.Chain, e.TxRef, e.LogIndex
}
