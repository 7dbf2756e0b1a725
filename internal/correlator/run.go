package correlator

import (
	"context"

	"github.com/certen-labs/chainindexer/internal/model"
)

// EventSource is the subset of storage.Subscription the correlator
// consumes to observe newly committed events live.
type EventSource interface {
	Events() <-chan model.Event
}

// Run drains source until ctx is cancelled or the channel closes,
// decoding every processor event via FromEvent and feeding it through
// Observe. Decode/observe errors are non-fatal: a single malformed or
// unmatched event must not stop the correlator from processing the rest
// of the stream.
func (c *Correlator) Run(ctx context.Context, source EventSource) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-source.Events():
			if !ok {
				return
			}
			pe, ok := FromEvent(ev)
			if !ok {
				continue
			}
			if err := c.Observe(ctx, pe); err != nil {
				c.logger.Printf("observing event (chain=%s tx=%s): %v", ev.Chain, ev.TxRef, err)
			}
		}
	}
}
