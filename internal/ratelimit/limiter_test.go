package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/doclatex/doclatex/internal/logging"
)

// fakeClock lets tests move time forward without sleeping.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestLimiter(rate, burst float64) (*RateLimiter, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	rl := NewRateLimiter(rate, burst, logging.NewNopLogger())
	rl.now = clock.Now
	rl.lastRefill = clock.Now()
	return rl, clock
}

func TestNewRateLimiterStartsFull(t *testing.T) {
	rl, _ := newTestLimiter(1, 10)
	if tokens := rl.Tokens(); tokens != 10 {
		t.Errorf("expected 10 tokens, got %.2f", tokens)
	}
}

func TestNewRateLimiterRaisesTinyBurst(t *testing.T) {
	rl, _ := newTestLimiter(1, 0)
	if !rl.Allow() {
		t.Error("a zero burst should still grant one token")
	}
}

func TestAllowConsumesBurst(t *testing.T) {
	rl, _ := newTestLimiter(1, 5)
	for i := 0; i < 5; i++ {
		if !rl.Allow() {
			t.Fatalf("Allow() failed on attempt %d", i+1)
		}
	}
	if rl.Allow() {
		t.Error("Allow() should fail when the bucket is empty")
	}
}

func TestRefill(t *testing.T) {
	tests := []struct {
		name    string
		advance time.Duration
		want    float64
	}{
		{"partial", 200 * time.Millisecond, 2},
		{"capped at burst", time.Minute, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rl, clock := newTestLimiter(10, 10)
			for i := 0; i < 10; i++ {
				rl.Allow()
			}
			clock.Advance(tt.advance)
			if got := rl.Tokens(); got < tt.want-0.01 || got > tt.want+0.01 {
				t.Errorf("expected %.1f tokens, got %.2f", tt.want, got)
			}
		})
	}
}

func TestRetryAfter(t *testing.T) {
	rl, clock := newTestLimiter(2, 1)
	if d := rl.RetryAfter(); d != 0 {
		t.Errorf("expected no wait with a full bucket, got %v", d)
	}
	rl.Allow()
	if d := rl.RetryAfter(); d != 500*time.Millisecond {
		t.Errorf("expected 500ms, got %v", d)
	}
	if s := rl.RetryAfterSeconds(); s != 1 {
		t.Errorf("expected 1 second, got %d", s)
	}
	clock.Advance(500 * time.Millisecond)
	if !rl.Allow() {
		t.Error("token should be available after RetryAfter elapsed")
	}
}

func TestRetryAfterWithoutRefill(t *testing.T) {
	rl, _ := newTestLimiter(0, 1)
	rl.Allow()
	if d := rl.RetryAfter(); d != time.Hour {
		t.Errorf("expected one hour, got %v", d)
	}
}

func TestDeniedAllowLeavesBucketEmpty(t *testing.T) {
	rl, clock := newTestLimiter(1, 1)
	rl.Allow()
	for i := 0; i < 3; i++ {
		if rl.Allow() {
			t.Fatalf("request %d should be denied", i)
		}
	}
	if got := rl.Tokens(); got != 0 {
		t.Errorf("denials must not consume tokens below zero, got %v", got)
	}
	clock.Advance(time.Second)
	if !rl.Allow() {
		t.Error("token should be available after refill")
	}
}

func TestConcurrentAllow(t *testing.T) {
	rl, _ := newTestLimiter(0, 20)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if rl.Allow() {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if granted != 20 {
		t.Errorf("expected exactly 20 grants, got %d", granted)
	}
}
