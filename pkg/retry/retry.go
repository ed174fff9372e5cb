// Package retry provides the bounded retry policies used for dependent
// creates. A policy is consulted after each failed attempt and answers with
// the delay before the next attempt, or that retrying should stop.
package retry

import (
	"math"
	"math/rand"
	"time"
)

// Policy decides whether and when a failed remote call is reissued.
type Policy interface {
	// NextDelay returns the delay before the next attempt. attempt is
	// 0-based: 0 for the first retry after the initial failure. The second
	// return value is false once retrying should stop.
	NextDelay(attempt int, lastErr error) (time.Duration, bool)
}

// Fixed retries up to MaxRetries times with a constant delay. The engine's
// default for foreign-key creation races is one retry at a short fixed delay,
// long enough for the parent's remote create to land.
type Fixed struct {
	Delay      time.Duration
	MaxRetries int
}

// NewFixed returns a fixed-delay policy.
func NewFixed(delay time.Duration, maxRetries int) *Fixed {
	return &Fixed{Delay: delay, MaxRetries: maxRetries}
}

func (f *Fixed) NextDelay(attempt int, lastErr error) (time.Duration, bool) {
	if attempt >= f.MaxRetries {
		return 0, false
	}
	return f.Delay, true
}

// Backoff retries with exponential delays and optional jitter, capped at
// MaxDelay. MaxRetries of zero means retry without bound.
type Backoff struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	MaxRetries   int
	JitterFactor float64 // fraction of the delay, 0 disables jitter
}

// NewBackoff returns a backoff policy with conventional defaults.
func NewBackoff() *Backoff {
	return &Backoff{
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		MaxRetries:   5,
		JitterFactor: 0.3,
	}
}

func (b *Backoff) NextDelay(attempt int, lastErr error) (time.Duration, bool) {
	if b.MaxRetries > 0 && attempt >= b.MaxRetries {
		return 0, false
	}
	delay := float64(b.InitialDelay) * math.Pow(b.Multiplier, float64(attempt))
	if delay > float64(b.MaxDelay) {
		delay = float64(b.MaxDelay)
	}
	if b.JitterFactor > 0 {
		// math/rand is fine here, jitter is not security sensitive.
		delay += delay * b.JitterFactor * (2*rand.Float64() - 1)
		if delay < 0 {
			delay = float64(b.InitialDelay)
		}
	}
	return time.Duration(delay), true
}

// None never retries.
type None struct{}

func (None) NextDelay(int, error) (time.Duration, bool) { return 0, false }
