package resilience

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPolicyDelay(t *testing.T) {
	p := DefaultPolicy()

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{5, 16 * time.Second},
		{6, 30 * time.Second},
		{20, 30 * time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, p.Delay(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestBackoffGivesUpAtMaxAttempts(t *testing.T) {
	b := NewBackoff(DefaultPolicy())
	now := time.Unix(1000, 0)

	var delays []time.Duration
	for i := 0; i < 4; i++ {
		d, ok := b.Failure(now, time.Time{})
		assert.True(t, ok)
		delays = append(delays, d)
		now = now.Add(d)
	}
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second}, delays)

	_, ok := b.Failure(now, time.Time{})
	assert.False(t, ok)
	assert.Equal(t, 5, b.Failures())
}

func TestBackoffResetsAfterStableUptime(t *testing.T) {
	b := NewBackoff(DefaultPolicy())
	now := time.Unix(1000, 0)

	for i := 0; i < 4; i++ {
		_, ok := b.Failure(now, now.Add(-time.Second))
		assert.True(t, ok)
	}
	assert.Equal(t, 4, b.Failures())

	upSince := now
	now = now.Add(60 * time.Second)
	d, ok := b.Failure(now, upSince)
	assert.True(t, ok)
	assert.Equal(t, time.Second, d)
	assert.Equal(t, 1, b.Failures())
}

func TestBackoffShortUptimeDoesNotReset(t *testing.T) {
	b := NewBackoff(DefaultPolicy())
	now := time.Unix(1000, 0)

	b.Failure(now, time.Time{})
	d, ok := b.Failure(now.Add(30*time.Second), now)
	assert.True(t, ok)
	assert.Equal(t, 2*time.Second, d)
}

func TestPolicyDefaults(t *testing.T) {
	b := NewBackoff(Policy{Initial: 10 * time.Second, Max: time.Second})
	p := b.Policy()
	assert.Equal(t, 10*time.Second, p.Max)
	assert.Equal(t, 5, p.MaxAttempts)
	assert.Equal(t, 60*time.Second, p.ResetAfter)
}
