package task

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffPolicy_Backoff_NoJitter(t *testing.T) {
	policy := &BackoffPolicy{
		Base:         1 * time.Second,
		Cap:          1 * time.Minute,
		JitterFactor: 0,
	}

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 16 * time.Second},
		{6, 32 * time.Second},
		{7, 1 * time.Minute}, // capped: 64s -> 60s
		{20, 1 * time.Minute},
	}

	for _, tt := range tests {
		got := policy.Backoff(tt.attempt)
		assert.Equal(t, tt.expected, got, "attempt %d", tt.attempt)
	}
}

func TestBackoffPolicy_Backoff_ClampsLowAttempt(t *testing.T) {
	policy := &BackoffPolicy{Base: 1 * time.Second, Cap: time.Minute}
	assert.Equal(t, policy.Backoff(1), policy.Backoff(0))
	assert.Equal(t, policy.Backoff(1), policy.Backoff(-3))
}

func TestBackoffPolicy_Backoff_WithJitter(t *testing.T) {
	policy := &BackoffPolicy{
		Base:         2 * time.Second,
		Cap:          time.Minute,
		JitterFactor: 0.2,
	}

	for i := 0; i < 20; i++ {
		got := policy.Backoff(1)
		assert.GreaterOrEqual(t, got, time.Duration(float64(2*time.Second)*0.8))
		assert.LessOrEqual(t, got, time.Duration(float64(2*time.Second)*1.2))
	}
}

func TestBackoffPolicy_VisibleAt(t *testing.T) {
	policy := &BackoffPolicy{Base: 1 * time.Second, Cap: time.Minute}
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	got := policy.VisibleAt(1, from)
	assert.Equal(t, from.Add(1*time.Second), got)
}

func TestNewBackoffPolicy(t *testing.T) {
	policy := NewBackoffPolicy(500*time.Millisecond, 30*time.Second)
	assert.Equal(t, 500*time.Millisecond, policy.Base)
	assert.Equal(t, 30*time.Second, policy.Cap)
	assert.Equal(t, DefaultJitterFactor, policy.JitterFactor)
}
