package app

import (
	"context"
	"math/rand/v2"
	"time"
)

// Default backoff configuration values.
const (
	DefaultBackoffInitial = 500 * time.Millisecond
	DefaultBackoffMax     = 10 * time.Second

	// backoffJitter is the relative spread applied to every delay.
	backoffJitter = 0.2
)

// Backoff produces exponentially growing, jittered retry delays.
// It is not safe for concurrent use.
type Backoff struct {
	initial  time.Duration
	max      time.Duration
	current  time.Duration
	attempts int
}

// NewBackoff creates a backoff starting at initial and capped at limit.
// Non-positive values fall back to the defaults.
func NewBackoff(initial, limit time.Duration) *Backoff {
	if initial <= 0 {
		initial = DefaultBackoffInitial
	}
	if limit < initial {
		limit = max(DefaultBackoffMax, initial)
	}
	return &Backoff{initial: initial, max: limit, current: initial}
}

// Next returns the delay for this attempt and doubles the base delay.
func (b *Backoff) Next() time.Duration {
	spread := float64(b.current) * backoffJitter
	d := b.current + time.Duration(spread*(2*rand.Float64()-1))

	b.attempts++
	b.current = min(2*b.current, b.max)
	return d
}

// Sleep waits for the next delay or until ctx is done.
func (b *Backoff) Sleep(ctx context.Context) error {
	t := time.NewTimer(b.Next())
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Reset starts over from the initial delay.
func (b *Backoff) Reset() {
	b.current = b.initial
	b.attempts = 0
}

// Current returns the base delay of the next attempt.
func (b *Backoff) Current() time.Duration {
	return b.current
}

// Attempts returns the number of delays handed out since the last Reset.
func (b *Backoff) Attempts() int {
	return b.attempts
}
