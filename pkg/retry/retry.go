package retry

import (
	"context"
	"errors"
	"time"
)

// Classifier reports whether the error is transient and worth another
// attempt. Returning false stops the loop immediately.
type Classifier func(err error) bool

// Config bounds the retry loop.
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = time.Second
	defaultMaxDelay    = 5 * time.Second
)

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = defaultBaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = defaultMaxDelay
	}
	return c
}

// Attempt carries per-attempt state to the operation.
type Attempt struct {
	// Number is 1-based.
	Number int
}

// Operation is one try of the retryable work.
type Operation func(ctx context.Context, attempt Attempt) error

// Do runs op up to cfg.MaxAttempts times, waiting DelayFor(attempt)
// between tries. Only errors the classifier marks transient are
// retried; the last error is returned once attempts exhaust or a
// terminal error appears.
func Do(ctx context.Context, cfg Config, retryable Classifier, op Operation) error {
	if op == nil {
		return errors.New("retry: operation is required")
	}
	if retryable == nil {
		retryable = func(error) bool { return false }
	}
	cfg = cfg.withDefaults()

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		lastErr = op(ctx, Attempt{Number: attempt})
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) || attempt == cfg.MaxAttempts {
			return lastErr
		}
		if err := sleep(ctx, cfg.DelayFor(attempt)); err != nil {
			return lastErr
		}
	}
	return lastErr
}

// DelayFor returns the wait after the given 1-based attempt:
// base doubled per attempt, capped at MaxDelay.
func (c Config) DelayFor(attempt int) time.Duration {
	c = c.withDefaults()
	if attempt < 1 {
		attempt = 1
	}
	delay := c.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= c.MaxDelay {
			return c.MaxDelay
		}
	}
	if delay > c.MaxDelay {
		return c.MaxDelay
	}
	return delay
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
