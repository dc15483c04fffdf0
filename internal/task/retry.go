package task

import (
	"math"
	"math/rand"
	"time"
)

// DefaultJitterFactor is the maximum fractional jitter applied to a
// computed backoff (up to ±20%).
const DefaultJitterFactor = 0.2

// BackoffPolicy computes retry-visibility delays as
// min(base * 2^(n-1), cap), with up to ±20% jitter. n is the 1-indexed
// retry attempt (the value Retries holds after StateMachine.Retry runs).
type BackoffPolicy struct {
	Base         time.Duration
	Cap          time.Duration
	JitterFactor float64
}

// NewBackoffPolicy builds a BackoffPolicy from worker config values.
func NewBackoffPolicy(base, cap time.Duration) *BackoffPolicy {
	return &BackoffPolicy{Base: base, Cap: cap, JitterFactor: DefaultJitterFactor}
}

// Backoff returns the delay before attempt n (n >= 1) becomes visible
// again to dequeue.
func (p *BackoffPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := float64(p.Base) * math.Pow(2, float64(attempt-1))
	if cap := float64(p.Cap); p.Cap > 0 && delay > cap {
		delay = cap
	}

	if p.JitterFactor > 0 {
		jitter := delay * p.JitterFactor * (rand.Float64()*2 - 1)
		delay += jitter
	}
	if delay < 0 {
		delay = float64(p.Base)
	}
	return time.Duration(delay)
}

// VisibleAt returns the timestamp at which a retried task should reappear
// in its queue's pending set.
func (p *BackoffPolicy) VisibleAt(attempt int, from time.Time) time.Time {
	return from.Add(p.Backoff(attempt))
}
