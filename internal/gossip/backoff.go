package gossip

import "time"

// Backoff computes the retry delay for a (neighbor, value) pair as a
// bounded exponential: Base doubled per attempt, capped at Cap. The
// schedule is monotonically non-decreasing, so a partitioned link is
// probed progressively less often but never abandoned.
type Backoff struct {
	Base time.Duration
	Cap  time.Duration
}

// Next returns the delay to arm after the given attempt number. Attempt 0
// is the initial send. Overflow from repeated doubling saturates at Cap.
func (b Backoff) Next(attempt int) time.Duration {
	if b.Base <= 0 || b.Base >= b.Cap {
		return b.Cap
	}

	d := b.Base
	for i := 0; i < attempt; i++ {
		d <<= 1
		if d >= b.Cap || d <= 0 {
			return b.Cap
		}
	}
	return d
}
