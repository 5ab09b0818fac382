package codexlink

import (
	"math/rand"
	"time"
)

// Backoff computes retry delays: exponential growth from Base, capped at
// Max, with a symmetric random jitter applied after the cap.
type Backoff struct {
	Base   time.Duration
	Max    time.Duration
	Jitter float64
}

// Delay returns the delay before the given attempt. Attempt 0 yields
// Base; negative attempts are treated as 0. The result is always within
// [0, Max].
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	// past ~30 doublings the shift would overflow any sane Base anyway
	if attempt > 30 {
		attempt = 30
	}
	d := b.Base << uint(attempt)
	if d <= 0 || d > b.Max {
		d = b.Max
	}
	if b.Jitter > 0 {
		d += time.Duration((rand.Float64()*2 - 1) * b.Jitter * float64(d))
	}
	if d < 0 {
		d = 0
	}
	if d > b.Max {
		d = b.Max
	}
	return d
}
