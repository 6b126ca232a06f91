// Package server implements a token bucket rate limiter for per-session
// throttling of chat messages.
package server

import (
	"sync"
	"time"
)

// rateLimiter is a token bucket owned by one session. It starts full with
// burst tokens and regains burst tokens per interval.
type rateLimiter struct {
	mu       sync.Mutex
	tokens   float64
	burst    float64
	perSec   float64
	refilled time.Time
	now      func() time.Time
}

// newRateLimiter returns nil when burst is not positive; a nil limiter
// allows everything.
func newRateLimiter(burst int, interval time.Duration) *rateLimiter {
	return newRateLimiterWithClock(burst, interval, time.Now)
}

func newRateLimiterWithClock(burst int, interval time.Duration, now func() time.Time) *rateLimiter {
	if burst <= 0 {
		return nil
	}
	if interval <= 0 {
		interval = time.Second
	}

	return &rateLimiter{
		tokens:   float64(burst),
		burst:    float64(burst),
		perSec:   float64(burst) / interval.Seconds(),
		refilled: now(),
		now:      now,
	}
}

// allow spends one token if one is available.
func (rl *rateLimiter) allow() bool {
	if rl == nil {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refill()
	if rl.tokens < 1 {
		return false
	}
	rl.tokens--
	return true
}

func (rl *rateLimiter) refill() {
	now := rl.now()
	if elapsed := now.Sub(rl.refilled); elapsed > 0 {
		rl.tokens = min(rl.burst, rl.tokens+elapsed.Seconds()*rl.perSec)
	}
	rl.refilled = now
}
