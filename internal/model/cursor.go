package model

import "time"

// ChainCursor is the per-chain marker of the highest successfully
// ingested block. It is updated as the final operation of every
// successful pipeline commit.
type ChainCursor struct {
	Chain                 string    `json:"chain"`
	LatestProcessedHeight uint64    `json:"latest_processed_height"`
	LatestProcessedHash   string    `json:"latest_processed_hash"`
	LastUpdated           time.Time `json:"last_updated"`

	// Divergent marks a chain whose fast and rich stores disagreed after
	// a commit and could not be reconciled by WAL replay (spec §4.2 step
	// 5). Ingestion for the chain is halted until an operator resolves it.
	Divergent bool `json:"divergent,omitempty"`
}
