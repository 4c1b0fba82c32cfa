package backoff

import "time"

// Backoff implements an exponential backoff strategy: the n-th delay is
// base * 2^n, capped at max. When maxAttempts is positive the strategy gives
// up after that many delays have been handed out.
type Backoff struct {
	base        time.Duration // starting delay
	max         time.Duration // maximum delay cap
	maxAttempts int           // 0 means unlimited
	attempt     int           // current attempt counter
}

// New creates a new backoff helper with base and max durations and no attempt cap.
func New(base, max time.Duration) *Backoff {
	return NewCapped(base, max, 0)
}

// NewCapped creates a backoff helper that stops after maxAttempts delays.
func NewCapped(base, max time.Duration, maxAttempts int) *Backoff {
	if base <= 0 {
		base = time.Second
	}
	if max < base {
		max = base
	}
	if maxAttempts < 0 {
		maxAttempts = 0
	}
	return &Backoff{
		base:        base,
		max:         max,
		maxAttempts: maxAttempts,
	}
}

// Next returns the delay for the current attempt and advances the counter.
// The boolean is false once the attempt cap has been reached; the caller must
// stop retrying in that case.
func (b *Backoff) Next() (time.Duration, bool) {
	if b.maxAttempts > 0 && b.attempt >= b.maxAttempts {
		return 0, false
	}
	delay := b.base << uint(b.attempt)
	if delay > b.max || delay <= 0 {
		delay = b.max
	}
	b.attempt++
	return delay, true
}

// Attempt returns how many delays have been handed out since the last Reset.
func (b *Backoff) Attempt() int {
	return b.attempt
}

// Reset sets the attempt counter back to zero. Call it after a successful
// operation to restart the sequence.
func (b *Backoff) Reset() {
	b.attempt = 0
}
