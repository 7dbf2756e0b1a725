// Package correlator materializes CrossChainMessage lifecycle records
// across chains (spec §4.6) by subscribing to committed "processor"
// events and driving the lifecycle DAG defined in internal/model.
package correlator

import (
	"context"
	"log"
	"time"

	"github.com/certen-labs/chainindexer/internal/model"
)

// PendingEvent is a normalized processor event the correlator consumes,
// decoded by the caller from a model.Event's attributes.
type PendingEvent struct {
	Kind        EventKind
	Chain       string
	BlockHeight uint64
	TxHash      string
	Time        time.Time

	SourceChain string
	Nonce       string
	Sender      string
	TargetChain string
	Recipient   string
	Payload     []byte

	MessageID string // set on Delivered/Processed/Failed events; recomputed target-side

	Success bool   // MessageProcessed only
	Error   string // MessageProcessed{success=false} or MessageFailed only
}

type EventKind string

const (
	EventMessageSent      EventKind = "MessageSent"
	EventMessageDelivered EventKind = "MessageDelivered"
	EventMessageProcessed EventKind = "MessageProcessed"
	EventMessageFailed    EventKind = "MessageFailed"
)

// MessageStore is the subset of the rich store the correlator needs.
type MessageStore interface {
	GetMessage(ctx context.Context, id string) (*model.CrossChainMessage, error)
	UpsertMessage(ctx context.Context, msg *model.CrossChainMessage) error
	ListNonTerminalIDs(ctx context.Context) ([]string, error)
}

// Config parameterizes a Correlator instance.
type Config struct {
	MessageTimeout   time.Duration
	OriginationGrace time.Duration
	RingBufferSize   int
	SweepInterval    time.Duration
	Logger           *log.Logger
}

func (c *Config) setDefaults() {
	if c.MessageTimeout == 0 {
		c.MessageTimeout = 30 * time.Minute
	}
	if c.OriginationGrace == 0 {
		c.OriginationGrace = 2 * time.Minute
	}
	if c.RingBufferSize == 0 {
		c.RingBufferSize = 10_000
	}
	if c.SweepInterval == 0 {
		c.SweepInterval = 1 * time.Minute
	}
}

// Correlator drives the cross-chain message lifecycle DAG. Every
// transition is checked with model.CanTransition against the stored
// status before it is written, so re-processing the same event twice is a
// no-op per spec testable property 6; the rich store's UpsertMessage also
// never overwrites a terminal status.
type Correlator struct {
	store  MessageStore
	orphan *ringBuffer
	cfg    Config
	logger *log.Logger
}

func New(store MessageStore, cfg Config) *Correlator {
	cfg.setDefaults()
	if cfg.Logger == nil {
		cfg.Logger = log.New(log.Writer(), "[Correlator] ", log.LstdFlags)
	}
	return &Correlator{
		store:  store,
		orphan: newRingBuffer(cfg.RingBufferSize),
		cfg:    cfg,
		logger: cfg.Logger,
	}
}

// Observe processes a single processor event, advancing or creating the
// CrossChainMessage it belongs to. It never errors on a routine "no
// match yet" case; absent matches are buffered, not treated as failures.
func (c *Correlator) Observe(ctx context.Context, ev PendingEvent) error {
	switch ev.Kind {
	case EventMessageSent:
		return c.observeSent(ctx, ev)
	case EventMessageDelivered:
		return c.observeTargetEvent(ctx, ev, model.MessageDelivered, "")
	case EventMessageProcessed:
		if ev.Success {
			return c.observeTargetEvent(ctx, ev, model.MessageExecuted, "")
		}
		return c.observeTargetEvent(ctx, ev, model.MessageFailed, ev.Error)
	case EventMessageFailed:
		return c.observeTargetEvent(ctx, ev, model.MessageFailed, ev.Error)
	default:
		return nil
	}
}

func (c *Correlator) observeSent(ctx context.Context, ev PendingEvent) error {
	id := MessageID(ev.SourceChain, ev.Nonce, ev.Sender, ev.TargetChain, ev.Recipient, ev.Payload)

	existing, err := c.store.GetMessage(ctx, id)
	if err != nil && err != model.ErrNotFound {
		return err
	}
	if existing != nil {
		return nil // idempotent: already originated
	}

	msg := &model.CrossChainMessage{
		ID: id, SourceChain: ev.SourceChain, TargetChain: ev.TargetChain,
		SourceBlockHeight: ev.BlockHeight, SourceTxHash: ev.TxHash,
		Nonce: ev.Nonce, Sender: ev.Sender, Recipient: ev.Recipient, PayloadBytes: ev.Payload,
		Status: model.MessageOriginated, CreatedAt: ev.Time,
	}
	if err := c.store.UpsertMessage(ctx, msg); err != nil {
		return err
	}

	for _, buffered := range c.orphan.takeMatches(ev.SourceChain, id) {
		if err := c.Observe(ctx, buffered); err != nil {
			c.logger.Printf("re-checking buffered event for %s: %v", id, err)
		}
	}
	return nil
}

func (c *Correlator) observeTargetEvent(ctx context.Context, ev PendingEvent, target model.MessageStatus, failureReason string) error {
	existing, err := c.store.GetMessage(ctx, ev.MessageID)
	if err != nil {
		if err == model.ErrNotFound {
			c.orphan.add(ev.SourceChain, ev.MessageID, ev)
			return nil
		}
		return err
	}

	if existing.Status == target {
		return nil // idempotent: already at this status
	}
	if !model.CanTransition(existing.Status, target) {
		c.logger.Printf("ignoring illegal transition %s -> %s for message %s", existing.Status, target, ev.MessageID)
		return nil
	}

	existing.Status = target
	existing.TargetBlockHeight = ev.BlockHeight
	existing.TargetTxHash = ev.TxHash
	if failureReason != "" {
		existing.Error = failureReason
	}
	now := ev.Time
	switch target {
	case model.MessageDelivered:
		existing.DeliveredAt = &now
	case model.MessageExecuted, model.MessageFailed:
		existing.ExecutedAt = &now
	}

	return c.store.UpsertMessage(ctx, existing)
}

// RunTimeoutSweeper ticks every cfg.SweepInterval, scanning the rich
// store for non-terminal messages and sweeping the stale ones into
// TimedOut, until ctx is cancelled. Run alongside Run so a message whose
// counterpart event never arrives still reaches a terminal state (spec
// §8 scenario S4), grounded on the teacher's ticker/stopCh polling shape
// in pkg/batch/confirmation_tracker.go.
func (c *Correlator) RunTimeoutSweeper(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ids, err := c.store.ListNonTerminalIDs(ctx)
			if err != nil {
				c.logger.Printf("listing non-terminal messages: %v", err)
				continue
			}
			if err := c.SweepTimeouts(ctx, ids, time.Now()); err != nil {
				c.logger.Printf("sweeping timeouts: %v", err)
			}
		}
	}
}

// SweepTimeouts marks every non-terminal message older than MessageTimeout
// as TimedOut (spec §4.6 last lifecycle row), given the candidate ids to
// check; callers typically supply ids from a periodic rich-store scan.
func (c *Correlator) SweepTimeouts(ctx context.Context, ids []string, now time.Time) error {
	for _, id := range ids {
		msg, err := c.store.GetMessage(ctx, id)
		if err != nil {
			if err == model.ErrNotFound {
				continue
			}
			return err
		}
		if msg.Status.Terminal() {
			continue
		}
		if now.Sub(msg.CreatedAt) <= c.cfg.MessageTimeout {
			continue
		}
		msg.Status = model.MessageTimedOut
		if err := c.store.UpsertMessage(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}
