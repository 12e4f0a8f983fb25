package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestDoSucceedsFirstAttempt(t *testing.T) {
	calls := 0
	result, err := Do(context.Background(), func(ctx context.Context) (string, error) {
		calls++
		return "ok", nil
	}, Options{MaxAttempts: 3, InitialDelay: time.Millisecond})

	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if result != "ok" {
		t.Errorf("Expected result 'ok', got %q", result)
	}
	if calls != 1 {
		t.Errorf("Expected 1 call, got %d", calls)
	}
}

func TestDoExhaustsAttemptsOnPersistentFailure(t *testing.T) {
	calls := 0
	var gaps []time.Duration
	last := time.Now()

	_, err := Do(context.Background(), func(ctx context.Context) (int, error) {
		now := time.Now()
		if calls > 0 {
			gaps = append(gaps, now.Sub(last))
		}
		last = now
		calls++
		return 0, errors.New("connection refused")
	}, Options{MaxAttempts: 4, InitialDelay: 10 * time.Millisecond})

	if err == nil {
		t.Fatal("Expected error after exhausting attempts")
	}
	if calls != 4 {
		t.Errorf("Expected exactly 4 attempts, got %d", calls)
	}

	// Delays double each retry: 10ms, 20ms, 40ms. Timer jitter only adds,
	// so strict growth must hold.
	if len(gaps) != 3 {
		t.Fatalf("Expected 3 inter-attempt gaps, got %d", len(gaps))
	}
	for i := 1; i < len(gaps); i++ {
		if gaps[i] <= gaps[i-1] {
			t.Errorf("Expected strictly increasing delays, gap %d (%v) <= gap %d (%v)",
				i, gaps[i], i-1, gaps[i-1])
		}
	}
	if gaps[0] < 10*time.Millisecond {
		t.Errorf("First gap %v shorter than initial delay", gaps[0])
	}
}

func TestDoStopsOnNonRetryableError(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), func(ctx context.Context) (int, error) {
		calls++
		return 0, errors.New("invalid input: missing field")
	}, Options{MaxAttempts: 5, InitialDelay: time.Millisecond})

	if err == nil {
		t.Fatal("Expected error")
	}
	if calls != 1 {
		t.Errorf("Expected 1 attempt for non-retryable error, got %d", calls)
	}
}

func TestDoInvokesOnRetryHook(t *testing.T) {
	var observed []int
	_, _ = Do(context.Background(), func(ctx context.Context) (int, error) {
		return 0, errors.New("timeout")
	}, Options{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		OnRetry:      func(attempt int, err error) { observed = append(observed, attempt) },
	})

	if len(observed) != 2 {
		t.Fatalf("Expected OnRetry for attempts 1 and 2, got %v", observed)
	}
	if observed[0] != 1 || observed[1] != 2 {
		t.Errorf("Expected attempts [1 2], got %v", observed)
	}
}

func TestDoRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	done := make(chan error, 1)
	go func() {
		_, err := Do(ctx, func(ctx context.Context) (int, error) {
			calls++
			return 0, errors.New("connection reset")
		}, Options{MaxAttempts: 10, InitialDelay: time.Hour})
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Do did not return after cancellation")
	}
	if calls != 1 {
		t.Errorf("Expected 1 attempt before cancellation, got %d", calls)
	}
}

func TestWithTimeoutReturnsResult(t *testing.T) {
	result, err := WithTimeout(context.Background(), time.Second, "too slow",
		func(ctx context.Context) (string, error) {
			return "fast", nil
		})
	if err != nil {
		t.Fatalf("WithTimeout failed: %v", err)
	}
	if result != "fast" {
		t.Errorf("Expected 'fast', got %q", result)
	}
}

func TestWithTimeoutFiresAndIsRetryable(t *testing.T) {
	_, err := WithTimeout(context.Background(), 10*time.Millisecond, "operation too slow",
		func(ctx context.Context) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		})

	if err == nil {
		t.Fatal("Expected timeout error")
	}
	var timeout *TimeoutError
	if !errors.As(err, &timeout) {
		t.Fatalf("Expected *TimeoutError, got %T: %v", err, err)
	}
	if timeout.Message != "operation too slow" {
		t.Errorf("Expected custom message, got %q", timeout.Message)
	}
	if !IsRetryable(err) {
		t.Error("Timeout errors must be classified retryable")
	}
}

func TestIsRetryableClassification(t *testing.T) {
	tests := []struct {
		err       error
		retryable bool
	}{
		{nil, false},
		{errors.New("dial tcp: connection refused"), true},
		{errors.New("request timed out"), true},
		{errors.New("context deadline exceeded"), true},
		{errors.New("server returned status 503"), true},
		{errors.New("failed to fetch: status code 502"), true},
		{errors.New("too many requests"), true},
		{errors.New("status 400: bad request"), false},
		{errors.New("invalid JSON payload"), false},
		{errors.New("missing required field"), false},
		{fmt.Errorf("wrapped: %w", &TimeoutError{Message: "slow"}), true},
	}

	for _, tt := range tests {
		if got := IsRetryable(tt.err); got != tt.retryable {
			t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.retryable)
		}
	}
}
