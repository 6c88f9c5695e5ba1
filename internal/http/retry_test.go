package http

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

type statusErr int

func (e statusErr) Error() string   { return fmt.Sprintf("status %d", int(e)) }
func (e statusErr) StatusCode() int { return int(e) }

func fastConfig(maxRetries int) Config {
	return Config{
		MaxRetries:   maxRetries,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
	}
}

func TestExecuteWithRetry_Success(t *testing.T) {
	calls := 0
	err := ExecuteWithRetry(context.Background(), fastConfig(3), func() error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("expected nil error, got: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestExecuteWithRetry_FatalError(t *testing.T) {
	calls := 0
	err := ExecuteWithRetry(context.Background(), fastConfig(5), func() error {
		calls++
		return statusErr(404)
	})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if calls != 1 {
		t.Errorf("expected 1 call (no retry on fatal), got %d", calls)
	}
}

func TestExecuteWithRetry_RecoversAfterUnavailable(t *testing.T) {
	calls := 0
	retries := 0
	cfg := fastConfig(5)
	cfg.OnRetry = func(attempt int, err error, errType ErrorType) {
		retries++
		if errType != ErrorTypeRetryable {
			t.Errorf("expected retryable, got %s", ErrorTypeName(errType))
		}
	}

	err := ExecuteWithRetry(context.Background(), cfg, func() error {
		calls++
		if calls < 3 {
			return statusErr(503)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if calls != 3 || retries != 2 {
		t.Errorf("expected 3 calls and 2 retries, got %d and %d", calls, retries)
	}
}

func TestExecuteWithRetry_ExhaustsAttempts(t *testing.T) {
	calls := 0
	err := ExecuteWithRetry(context.Background(), fastConfig(3), func() error {
		calls++
		return errors.New("dial tcp: connection refused")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestExecuteWithRetry_ContextCancelledDuringSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := Config{
		MaxRetries:   5,
		InitialDelay: 5 * time.Second,
		MaxDelay:     30 * time.Second,
	}

	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := ExecuteWithRetry(ctx, cfg, func() error {
		return errors.New("connection reset by peer")
	})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("expected quick return after cancel, took %v", elapsed)
	}
}

func TestExecuteWithRetry_InsufficientDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	cfg := Config{
		MaxRetries:   5,
		InitialDelay: 5 * time.Second,
		MaxDelay:     30 * time.Second,
	}

	start := time.Now()
	err := ExecuteWithRetry(ctx, cfg, func() error {
		return errors.New("i/o timeout")
	})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("expected quick return, took %v", elapsed)
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorType
	}{
		{"nil", nil, ErrorTypeSuccess},
		{"cancelled", context.Canceled, ErrorTypeFatal},
		{"deadline", context.DeadlineExceeded, ErrorTypeNetwork},
		{"503", statusErr(503), ErrorTypeRetryable},
		{"429", statusErr(429), ErrorTypeRetryable},
		{"400", statusErr(400), ErrorTypeFatal},
		{"wrapped 500", fmt.Errorf("health: %w", statusErr(500)), ErrorTypeRetryable},
		{"refused", errors.New("dial tcp 127.0.0.1:8000: connection refused"), ErrorTypeNetwork},
		{"gateway text", errors.New("bad gateway 502"), ErrorTypeRetryable},
		{"other", errors.New("invalid template"), ErrorTypeFatal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyError(tt.err); got != tt.want {
				t.Errorf("ClassifyError() = %s, want %s", ErrorTypeName(got), ErrorTypeName(tt.want))
			}
		})
	}
}

func TestCalculateBackoff(t *testing.T) {
	if CalculateBackoff(0, time.Second, time.Minute) != 0 {
		t.Error("attempt 0 should not wait")
	}
	for i := 0; i < 50; i++ {
		d := CalculateBackoff(10, 100*time.Millisecond, 2*time.Second)
		if d < 0 || d >= 2*time.Second {
			t.Fatalf("backoff %v outside [0, 2s)", d)
		}
	}
}
