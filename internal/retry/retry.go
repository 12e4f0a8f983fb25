package retry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Options configures Do.
type Options struct {
	MaxAttempts  int                            // Total attempts including the first (default 3)
	InitialDelay time.Duration                  // Delay before the second attempt; doubles each retry (default 1s)
	ShouldRetry  func(error) bool               // Error classifier; defaults to IsRetryable
	OnRetry      func(attempt int, err error)   // Observation hook invoked before each wait; must not alter control flow
}

// TimeoutError marks an operation that exceeded its deadline. It is always
// classified as retryable.
type TimeoutError struct {
	Message string
}

func (e *TimeoutError) Error() string {
	return e.Message
}

// Do invokes op, retrying on failure with exponential backoff while
// opts.ShouldRetry approves the error and attempts remain. The last error is
// returned once attempts are exhausted or the error is non-retryable.
func Do[T any](ctx context.Context, op func(ctx context.Context) (T, error), opts Options) (T, error) {
	var zero T

	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	delay := opts.InitialDelay
	if delay <= 0 {
		delay = time.Second
	}
	shouldRetry := opts.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = IsRetryable
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt == maxAttempts || !shouldRetry(err) {
			break
		}
		if opts.OnRetry != nil {
			opts.OnRetry(attempt, err)
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return zero, ctx.Err()
		}
		delay *= 2
	}

	return zero, lastErr
}

// WithTimeout runs op against a deadline. If the deadline wins, the returned
// error is a *TimeoutError carrying msg, which IsRetryable classifies as
// transient.
func WithTimeout[T any](ctx context.Context, d time.Duration, msg string, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type outcome struct {
		result T
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := op(ctx)
		done <- outcome{result, err}
	}()

	select {
	case out := <-done:
		return out.result, out.err
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			if msg == "" {
				msg = fmt.Sprintf("operation timed out after %s", d)
			}
			return zero, &TimeoutError{Message: msg}
		}
		return zero, ctx.Err()
	}
}

// retryableSignatures are substrings whose presence in an error message marks
// it as a transient network-class failure.
var retryableSignatures = []string{
	"timeout",
	"timed out",
	"deadline exceeded",
	"connection refused",
	"connection reset",
	"no such host",
	"network is unreachable",
	"broken pipe",
	"eof",
	"temporary failure",
	"status 500",
	"status 502",
	"status 503",
	"status 504",
	"status code 500",
	"status code 502",
	"status code 503",
	"status code 504",
	"too many requests",
	"status 429",
}

// IsRetryable classifies an error as transient (network failure, timeout, or
// server-side 5xx). Validation errors, 4xx responses, and parse errors are
// non-retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var timeout *TimeoutError
	if errors.As(err, &timeout) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, sig := range retryableSignatures {
		if strings.Contains(msg, sig) {
			return true
		}
	}
	return false
}
