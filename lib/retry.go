package lib

import (
	"context"
	"fmt"
	"time"
)

// RetryPolicy is an explicit retry value passed per operation. No hidden
// global defaults: callers that want different behavior construct their own.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Retryable   func(error) bool
}

// DefaultRetry is the policy used for broadcast and indexer calls:
// 5 attempts, 500ms doubling to a 8s cap, transient errors only.
func DefaultRetry() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    8 * time.Second,
		Retryable:   IsTransient,
	}
}

// NoRetry runs an operation exactly once.
func NoRetry() RetryPolicy {
	return RetryPolicy{MaxAttempts: 1, Retryable: func(error) bool { return false }}
}

// Do runs fn under the policy. Non-retryable errors return immediately;
// retryable ones back off exponentially until attempts are exhausted, at
// which point the last error is wrapped and returned.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	delay := p.BaseDelay
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if p.Retryable == nil || !p.Retryable(err) {
			return err
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}
	return fmt.Errorf("retries exhausted after %d attempts: %w", attempts, err)
}
