// Package ratelimit provides a token bucket limiter for service requests.
package ratelimit

import (
	"math"
	"sync"
	"time"

	"github.com/doclatex/doclatex/internal/logging"
)

// RateLimiter implements a token bucket rate limiter.
// It allows bursts up to maxTokens, then refills at refillRate tokens/second.
type RateLimiter struct {
	tokens       float64
	maxTokens    float64
	refillRate   float64
	lastRefill   time.Time
	lastWarnTime time.Time
	logger       *logging.Logger
	now          func() time.Time
	mu           sync.Mutex
}

// NewRateLimiter creates a limiter that starts with a full bucket.
// A burst below one is raised to one so the limiter can ever grant a token.
func NewRateLimiter(tokensPerSecond, burstSize float64, logger *logging.Logger) *RateLimiter {
	if burstSize < 1 {
		burstSize = 1
	}
	return &RateLimiter{
		tokens:     burstSize,
		maxTokens:  burstSize,
		refillRate: tokensPerSecond,
		lastRefill: time.Now(),
		logger:     logging.OrDefault(logger).Child("ratelimit"),
		now:        time.Now,
	}
}

// Allow takes one token if one is available and reports whether it did.
// Denials are logged at most once every 10 seconds.
func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refill()
	if rl.tokens >= 1.0 {
		rl.tokens -= 1.0
		return true
	}
	if now := rl.now(); now.Sub(rl.lastWarnTime) > 10*time.Second {
		rl.logger.Warn().
			Float64("rate", rl.refillRate).
			Float64("burst", rl.maxTokens).
			Msg("rate limit exceeded, rejecting requests")
		rl.lastWarnTime = now
	}
	return false
}

// RetryAfter returns how long until the next token is available.
// It returns an hour when the limiter never refills.
func (rl *RateLimiter) RetryAfter() time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refill()
	needed := 1.0 - rl.tokens
	if needed <= 0 {
		return 0
	}
	if rl.refillRate <= 0 {
		return time.Hour
	}
	return time.Duration(needed / rl.refillRate * float64(time.Second))
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds, at least one,
// for use in a Retry-After header.
func (rl *RateLimiter) RetryAfterSeconds() int {
	return int(math.Max(1, math.Ceil(rl.RetryAfter().Seconds())))
}

// Tokens returns the current number of tokens, including fractions.
func (rl *RateLimiter) Tokens() float64 {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.refill()
	return rl.tokens
}

// refill must be called with mu held.
func (rl *RateLimiter) refill() {
	now := rl.now()
	elapsed := now.Sub(rl.lastRefill).Seconds()
	if elapsed > 0 {
		rl.tokens = math.Min(rl.maxTokens, rl.tokens+elapsed*rl.refillRate)
	}
	rl.lastRefill = now
}
