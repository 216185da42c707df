package llm

import (
	"time"

	"github.com/cenkalti/backoff/v5"
)

// clampedExponential waits multiplier*2^n before retry n+1, bounded to
// [min, max]. backoff.ExponentialBackOff has no lower bound, so the clamp
// lives here.
type clampedExponential struct {
	multiplier time.Duration
	minWait    time.Duration
	maxWait    time.Duration
	attempt    int
}

var _ backoff.BackOff = (*clampedExponential)(nil)

func newClampedExponential(multiplier, minWait, maxWait time.Duration) *clampedExponential {
	return &clampedExponential{multiplier: multiplier, minWait: minWait, maxWait: maxWait}
}

func (b *clampedExponential) NextBackOff() time.Duration {
	wait := b.multiplier << uint(b.attempt)
	if b.attempt >= 32 || wait < 0 {
		wait = b.maxWait
	}
	b.attempt++

	if wait < b.minWait {
		wait = b.minWait
	}
	if wait > b.maxWait {
		wait = b.maxWait
	}
	return wait
}

func (b *clampedExponential) Reset() {
	b.attempt = 0
}
