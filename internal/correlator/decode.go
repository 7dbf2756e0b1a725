package correlator

import (
	"github.com/certen-labs/chainindexer/internal/model"
)

// FromEvent decodes a normalized chain event into a PendingEvent. It
// selects events by event_type alone; the emitting contract or module is
// not checked. It reports ok=false for events whose event_type is not one
// the correlator tracks,
// so callers can filter the change feed down to relevant events cheaply.
func FromEvent(ev model.Event) (PendingEvent, bool) {
	kind := EventKind(ev.EventType)
	switch kind {
	case EventMessageSent, EventMessageDelivered, EventMessageProcessed, EventMessageFailed:
	default:
		return PendingEvent{}, false
	}

	pe := PendingEvent{
		Kind:        kind,
		Chain:       ev.Chain,
		BlockHeight: ev.BlockRef,
		TxHash:      ev.TxRef,
		Time:        ev.Timestamp,
		SourceChain: attrStr(ev, "source_chain"),
		Nonce:       attrStr(ev, "nonce"),
		Sender:      attrStr(ev, "sender"),
		TargetChain: attrStr(ev, "target_chain"),
		Recipient:   attrStr(ev, "recipient"),
		Payload:     []byte(attrStr(ev, "payload")),
		MessageID:   attrStr(ev, "message_id"),
		Error:       attrStr(ev, "error"),
	}
	if kind == EventMessageProcessed {
		if v, ok := ev.Attributes["success"]; ok {
			pe.Success = v.Kind == model.KindBool && v.Bool
		}
	}
	return pe, true
}

func attrStr(ev model.Event, key string) string {
	v, ok := ev.Attributes[key]
	if !ok {
		return ""
	}
	return v.String()
}
