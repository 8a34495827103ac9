package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/vitos/futures_atr_bot/internal/metrics"
	"go.uber.org/zap"
)

// RetryPolicy bounds repeated exchange calls: a fixed budget of
// attempts with exponential backoff. No jitter, no circuit breaker.
// Only wrap calls that are safe to repeat: an attempt may have
// mutated exchange state even though its confirmation failed.
type RetryPolicy struct {
	Attempts      int
	InitialDelay  time.Duration
	BackoffFactor int

	sleep func(ctx context.Context, d time.Duration) error // test hook
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:      3,
		InitialDelay:  1 * time.Second,
		BackoffFactor: 2,
	}
}

func (p RetryPolicy) wait(ctx context.Context, d time.Duration) error {
	if p.sleep != nil {
		return p.sleep(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// withRetry invokes fn up to policy.Attempts times, sleeping
// InitialDelay * BackoffFactor^(attempt-1) between failures. The last
// error is surfaced to the caller once the budget is exhausted.
func withRetry(ctx context.Context, logger *zap.Logger, policy RetryPolicy, op string, fn func(ctx context.Context) error) error {
	delay := policy.InitialDelay
	var lastErr error

	for attempt := 1; attempt <= policy.Attempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		logger.Error("Exchange call failed",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Error(lastErr))
		metrics.RetryAttempts.Inc()

		if attempt == policy.Attempts {
			break
		}
		if err := policy.wait(ctx, delay); err != nil {
			return err
		}
		delay *= time.Duration(policy.BackoffFactor)
	}

	return fmt.Errorf("%s failed after %d attempts: %w", op, policy.Attempts, lastErr)
}
