package pipeline

import (
	"math/rand"
	"time"
)

// backoff computes an exponentially growing delay with jitter for retry
// attempt (0-indexed), following the teacher's 1<<retries doubling
// formula in pkg/intent/discovery.go, generalized with +/-25% jitter so
// many chains retrying in lockstep don't all hammer their RPC endpoint
// on the same tick.
func backoff(attempt int, base, max time.Duration) time.Duration {
	d := base * time.Duration(1<<uint(attempt))
	if d > max || d <= 0 {
		d = max
	}
	jitter := time.Duration(rand.Int63n(int64(d)/2)) - d/4
	d += jitter
	if d < 0 {
		d = base
	}
	return d
}
