// Package retry wraps remote calls with bounded exponential backoff.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = time.Second
)

// retryable is implemented by errors that may succeed on a later attempt.
type retryable interface {
	Retryable() bool
}

// Policy retries an operation on transient failures, sleeping
// baseDelay * 2^attempt between attempts. Non-retryable failures propagate
// immediately.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Logger      *slog.Logger

	// Sleep is swapped out in tests.
	Sleep func(ctx context.Context, d time.Duration) error
}

func NewPolicy(logger *slog.Logger) *Policy {
	if logger == nil {
		logger = slog.Default()
	}
	return &Policy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		Logger:      logger,
		Sleep:       sleepCtx,
	}
}

// Do runs op until it succeeds, fails permanently, or attempts run out. The
// last error is returned as-is so callers keep its classification.
func (p *Policy) Do(ctx context.Context, name string, op func(context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}
	base := p.BaseDelay
	if base <= 0 {
		base = DefaultBaseDelay
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		err = op(ctx)
		if err == nil {
			return nil
		}
		if !isRetryable(err) || attempt == attempts-1 {
			return err
		}
		delay := base * (1 << attempt)
		p.Logger.WarnContext(ctx, "transient failure, retrying",
			"op", name, "attempt", attempt+1, "delay", delay, "error", err)
		if sleepErr := p.Sleep(ctx, delay); sleepErr != nil {
			return sleepErr
		}
	}
	return err
}

func isRetryable(err error) bool {
	var r retryable
	return errors.As(err, &r) && r.Retryable()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
