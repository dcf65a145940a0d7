package httpx

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"
)

// Backoff computes exponential delays between transport retries.
type Backoff struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration
	Jitter    float64

	mu   sync.Mutex
	rand *rand.Rand
}

// NewBackoff returns a Backoff with sane floors applied to its parameters.
func NewBackoff(base, max time.Duration, jitter float64) *Backoff {
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	if max < base {
		max = base
	}
	if jitter < 0 {
		jitter = 0
	}
	return &Backoff{
		BaseDelay: base,
		MaxDelay:  max,
		Jitter:    math.Min(jitter, 1),
		rand:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// ForAttempt returns the delay before retry number attempt (0-indexed).
func (b *Backoff) ForAttempt(attempt int) time.Duration {
	delay := b.BaseDelay
	if attempt > 0 {
		scaled := float64(b.BaseDelay) * math.Pow(2, float64(attempt))
		if scaled > float64(b.MaxDelay) {
			delay = b.MaxDelay
		} else {
			delay = time.Duration(scaled)
		}
	}
	return b.jitter(delay)
}

// Wait blocks for the attempt's delay or until ctx is done.
func (b *Backoff) Wait(ctx context.Context, attempt int) error {
	d := b.ForAttempt(attempt)
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (b *Backoff) jitter(delay time.Duration) time.Duration {
	if b.Jitter == 0 || delay <= 0 {
		return delay
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	factor := 1 + (b.rand.Float64()*2-1)*b.Jitter
	return time.Duration(float64(delay) * factor)
}
