package proxy

import (
	"context"
	"math"
	"time"
)

// Backoff yields exponentially growing delays between reconnect attempts.
type Backoff struct {
	Min, Max time.Duration
	attempt  int
}

// NewBackoff returns a backoff starting at min and capped at max.
func NewBackoff(min, max time.Duration) *Backoff {
	return &Backoff{Min: min, Max: max}
}

// Next returns the delay before the next attempt.
func (b *Backoff) Next() time.Duration {
	d := time.Duration(float64(b.Min) * math.Exp2(float64(b.attempt)))
	if d > b.Max || d <= 0 {
		d = b.Max
	} else {
		b.attempt++
	}
	return d
}

// Reset starts over from Min.
func (b *Backoff) Reset() { b.attempt = 0 }

// Sleep waits for d or until ctx is done. It reports whether the full
// duration elapsed.
func Sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
