package via

import (
	"math/rand"
	"time"
)

// Backoff computes the exponential-with-jitter delay for retry attempt
// try (0-based), capped at 5s: 100ms * 2^try ± 20% jitter, the same shape
// the teacher's ipc.CircuitBreaker applies to failure-window tracking,
// generalized here from a pass/fail counter to a per-attempt delay.
func Backoff(try int) time.Duration {
	base := 100 * time.Millisecond
	capDelay := 5 * time.Second

	delay := base
	for i := 0; i < try && delay < capDelay; i++ {
		delay *= 2
	}
	if delay > capDelay {
		delay = capDelay
	}

	jitter := (rand.Float64()*0.4 - 0.2) * float64(delay)
	return delay + time.Duration(jitter)
}
