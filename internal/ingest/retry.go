package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/zombor/pantry-tracker/internal/pantry"
)

// RetryOptions configures retry behavior for store operations
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// withRetry runs op until it succeeds, returns a non-retryable error, or the
// attempts run out. Each attempt gets its own timeout.
func withRetry(ctx context.Context, opts RetryOptions, timeout time.Duration, op func(ctx context.Context) error) error {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.InitialDelay <= 0 {
		opts.InitialDelay = 100 * time.Millisecond
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 2 * time.Second
	}

	delay := opts.InitialDelay
	var err error
	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		err = attemptWithTimeout(ctx, timeout, op)
		if err == nil {
			return nil
		}
		if !retryable(err) || attempt == opts.MaxAttempts {
			break
		}

		slog.Warn("Store operation failed, retrying",
			"attempt", attempt,
			"max_attempts", opts.MaxAttempts,
			"delay", delay,
			"error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
			delay *= 2
			if delay > opts.MaxDelay {
				delay = opts.MaxDelay
			}
		}
	}
	return fmt.Errorf("after %d attempts: %w", opts.MaxAttempts, err)
}

func attemptWithTimeout(ctx context.Context, timeout time.Duration, op func(ctx context.Context) error) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() { done <- op(ctx) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// retryable reports whether repeating the operation may succeed. Timeouts
// are final; the caller reports them as such.
func retryable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}
	var rerr *pantry.ReconciliationError
	if errors.As(err, &rerr) {
		return rerr.Retryable
	}
	return true
}
