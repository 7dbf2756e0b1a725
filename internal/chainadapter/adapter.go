// Package chainadapter defines the uniform adapter contract each chain
// family implements (spec §4.1), plus a registry keyed by chain name.
package chainadapter

import (
	"context"

	"github.com/certen-labs/chainindexer/internal/model"
)

// Family identifies the implementation family behind an adapter, mirroring
// the teacher's ChainPlatform discriminant in pkg/chain/strategy/interface.go.
type Family string

const (
	FamilyEVM    Family = "evm"
	FamilyCosmos Family = "cosmos"
)

// EventFilter narrows events_for_range/subscribe_logs queries. An empty
// field matches everything for that dimension.
type EventFilter struct {
	Chain           string
	ContractAddress string
	EventType       string
}

// Adapter exposes a uniform view of a single remote chain (spec §4.1).
// Implementations MUST decode chain-native payloads into the
// chain-agnostic Block/Transaction/Event model; unknown fields are
// preserved in Event.RawBytes. Finality statuses the chain family does
// not expose return ErrUnsupported rather than a silently promoted
// substitute — the adapter performs the conservative promotion described
// in spec §4.1 internally (e.g. a chain exposing only "finalized" serves
// it for both Justified and Finalized) but callers only ever see
// ErrUnsupported from an accessor the chain truly lacks, never a silent
// swap to a different status under the same name.
//
// Implementations must be safe for concurrent use; the pipeline, the
// finality tracker, and the reorg handler may all call the same adapter
// instance concurrently.
type Adapter interface {
	Family() Family
	ChainName() string

	// LatestHeight returns the current best-known tip at StatusConfirmed.
	LatestHeight(ctx context.Context) (uint64, error)

	// BlockAt fetches a full block with its transactions and events.
	// Returns model.ErrNotFound if pruned/unknown, model.ErrNetwork on
	// transport issues, model.ErrMalformedData on undecodable payloads.
	BlockAt(ctx context.Context, height uint64) (*model.Block, error)

	// FinalizedHeight, SafeHeight, JustifiedHeight return the
	// corresponding tip, or model.ErrUnsupported if the chain family does
	// not expose that status.
	FinalizedHeight(ctx context.Context) (uint64, error)
	SafeHeight(ctx context.Context) (uint64, error)
	JustifiedHeight(ctx context.Context) (uint64, error)

	// EventsForRange returns events ordered by (height asc, tx index asc,
	// log index asc), restartable by re-invocation with the same inputs.
	EventsForRange(ctx context.Context, from, to uint64, filter EventFilter) ([]model.Event, error)

	// SubscribeLogs delivers newly observed events on the returned
	// channel until ctx is cancelled, at which point the channel is
	// closed. Delivery may reorder only within an unfinalized window; the
	// consumer is responsible for deduplication by (tx_hash, log_index).
	SubscribeLogs(ctx context.Context, filter EventFilter) (<-chan model.Event, error)
}

// Registry maps configured chain names to their adapter instance,
// mirroring the teacher's SupportedChains lookup table in
// pkg/chain/strategy/interface.go, generalized from a static name->family
// map to a live name->Adapter instance map assembled at startup.
type Registry struct {
	adapters map[string]Adapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

func (r *Registry) Register(a Adapter) {
	r.adapters[a.ChainName()] = a
}

func (r *Registry) Get(chain string) (Adapter, bool) {
	a, ok := r.adapters[chain]
	return a, ok
}

func (r *Registry) Chains() []string {
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	return names
}
