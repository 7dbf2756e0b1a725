package correlator

import (
	"crypto/sha256"
	"encoding/hex"
)

// MessageID computes the deterministic id for a cross-chain message
// (spec §4.6): sha256 over the concatenation of its identifying fields,
// the same sha256-of-concatenated-bytes idiom the teacher uses for
// merkle leaves and artifact hashes in pkg/batch/collector.go.
func MessageID(sourceChain, nonce, sender, targetChain, recipient string, payload []byte) string {
	h := sha256.New()
	h.Write([]byte(sourceChain))
	h.Write([]byte{0})
	h.Write([]byte(nonce))
	h.Write([]byte{0})
	h.Write([]byte(sender))
	h.Write([]byte{0})
	h.Write([]byte(targetChain))
	h.Write([]byte{0})
	h.Write([]byte(recipient))
	h.Write([]byte{0})
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}
