package resilience

import (
	"sync"
	"time"
)

// Policy configures restart backoff
type Policy struct {
	// Initial is the delay before the first restart
	Initial time.Duration
	// Max caps the doubled delay
	Max time.Duration
	// ResetAfter is the continuous uptime that clears the failure streak
	ResetAfter time.Duration
	// MaxAttempts is the failure count at which restarts stop
	MaxAttempts int
}

// DefaultPolicy returns 1s doubling to 30s, reset after 60s up, 5 attempts
func DefaultPolicy() Policy {
	return Policy{
		Initial:     time.Second,
		Max:         30 * time.Second,
		ResetAfter:  60 * time.Second,
		MaxAttempts: 5,
	}
}

// withDefaults fills zero fields from DefaultPolicy
func (p Policy) withDefaults() Policy {
	def := DefaultPolicy()
	if p.Initial <= 0 {
		p.Initial = def.Initial
	}
	if p.Max <= 0 {
		p.Max = def.Max
	}
	if p.Max < p.Initial {
		p.Max = p.Initial
	}
	if p.ResetAfter <= 0 {
		p.ResetAfter = def.ResetAfter
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	return p
}

// Delay returns the wait before restart number attempt (1-based)
func (p Policy) Delay(attempt int) time.Duration {
	p = p.withDefaults()
	if attempt < 1 {
		attempt = 1
	}
	delay := p.Initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= p.Max {
			return p.Max
		}
	}
	return delay
}

// Backoff counts consecutive failures against a Policy
type Backoff struct {
	policy Policy

	mu       sync.Mutex
	failures int
}

// NewBackoff creates a backoff tracker
func NewBackoff(policy Policy) *Backoff {
	return &Backoff{policy: policy.withDefaults()}
}

// Policy returns the effective policy
func (b *Backoff) Policy() Policy {
	return b.policy
}

// Failure records one failure at now. upSince is when the failed
// incarnation became ready, zero if it never did. It returns the delay
// before the next attempt, or ok=false once MaxAttempts is reached.
func (b *Backoff) Failure(now, upSince time.Time) (delay time.Duration, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !upSince.IsZero() && now.Sub(upSince) >= b.policy.ResetAfter {
		b.failures = 0
	}

	b.failures++
	if b.failures >= b.policy.MaxAttempts {
		return 0, false
	}
	return b.policy.Delay(b.failures), true
}

// Failures returns the current streak length
func (b *Backoff) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}
