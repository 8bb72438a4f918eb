// Package ratelimit implements the optional connection-acceptance token
// bucket of spec §4.6 ("a token-bucket governs the connection-acceptance
// rate (burst B, refill R tokens/sec)"). Jitter on the refill tick uses
// github.com/valyala/fastrand the way the teacher's client uses it to
// jitter its RTT/ping timers, rather than adding a second PRNG dependency.
package ratelimit

import (
	"sync"
	"time"

	"github.com/valyala/fastrand"
)

// TokenBucket is safe for concurrent use by the accept loop.
type TokenBucket struct {
	mu         sync.Mutex
	burst      float64
	refillRate float64 // tokens per second
	tokens     float64
	lastRefill time.Time

	rejected uint64
}

// New returns a bucket starting full, with burst capacity burst and a
// refill rate of refillPerSec tokens/second.
func New(burst int, refillPerSec float64) *TokenBucket {
	return &TokenBucket{
		burst:      float64(burst),
		refillRate: refillPerSec,
		tokens:     float64(burst),
		lastRefill: time.Now(),
	}
}

// Allow consumes one token if available and reports whether the caller may
// proceed. On exhaustion it increments the rejection counter (spec: "a
// per-bucket counter is incremented").
func (b *TokenBucket) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	b.lastRefill = now

	// A touch of jitter keeps many connections refilling in lockstep from
	// releasing their whole burst on the same tick.
	jitter := 1.0 + (float64(fastrand.Uint32n(1000))-500)/100000
	b.tokens += elapsed * b.refillRate * jitter
	if b.tokens > b.burst {
		b.tokens = b.burst
	}

	if b.tokens < 1 {
		b.rejected++
		return false
	}
	b.tokens--
	return true
}

// Rejected returns the number of calls to Allow that were refused.
func (b *TokenBucket) Rejected() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rejected
}
