package library

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	defaultMaxAttempts  = 6
	defaultBaseDelay    = 10 * time.Millisecond
	defaultJitterFactor = 0.3
)

// ErrInvalidMaxAttempts is returned when max attempts are not positive.
var ErrInvalidMaxAttempts = errors.New("max attempts must be positive")

type retryConfig struct {
	maxAttempts  int
	baseDelay    time.Duration
	jitterFactor float64
}

// RetryOption configures retryOnBusy.
type RetryOption func(*retryConfig) error

// WithMaxAttempts sets how often a write is tried in total.
func WithMaxAttempts(n int) RetryOption {
	return func(c *retryConfig) error {
		if n <= 0 {
			return ErrInvalidMaxAttempts
		}
		c.maxAttempts = n
		return nil
	}
}

// WithBaseDelay sets the first backoff delay; later delays double.
func WithBaseDelay(d time.Duration) RetryOption {
	return func(c *retryConfig) error {
		if d < 0 {
			d = 0
		}
		c.baseDelay = d
		return nil
	}
}

// retryOnBusy runs fn until it succeeds, fails with a non-busy error, or the
// attempts are used up.
//
// Retry schedule (default): 0 ms, 10 ms, 20 ms, 40 ms, 80 ms, 160 ms (each +/-30%)
//
// Only SQLITE_BUSY and SQLITE_LOCKED are retried; a rejected borrow or
// reservation is a decision, not a transient failure.
func retryOnBusy(ctx context.Context, fn func(ctx context.Context) error, options ...RetryOption) error {
	config := &retryConfig{
		maxAttempts:  defaultMaxAttempts,
		baseDelay:    defaultBaseDelay,
		jitterFactor: defaultJitterFactor,
	}
	for _, option := range options {
		if err := option(config); err != nil {
			return err
		}
	}

	schedule := backoff.NewExponentialBackOff()
	schedule.InitialInterval = config.baseDelay
	schedule.Multiplier = 2
	schedule.RandomizationFactor = config.jitterFactor
	schedule.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(schedule, uint64(config.maxAttempts-1)), ctx)
	return backoff.Retry(func() error {
		err := fn(ctx)
		if err != nil && !isBusy(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
}
