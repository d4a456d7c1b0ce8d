package llm

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// ErrRetriesExhausted is returned when no attempt produced a validated result.
var ErrRetriesExhausted = errors.New("maximum retries reached")

// RetryPolicy bounds how often a generation step is attempted
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
	Logger      *zap.Logger
}

// DefaultRetryPolicy makes three attempts one second apart
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Delay: time.Second}
}

// Retry calls generate until validate accepts its result or the attempts run out.
// Generation errors and rejected results both count as failed attempts. The
// returned error wraps ErrRetriesExhausted and the last failure cause.
func Retry[T any](ctx context.Context, policy RetryPolicy, generate func(context.Context) (T, error), validate func(T) bool) (T, error) {
	var zero T

	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	logger := policy.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := generate(ctx)
		switch {
		case err != nil:
			lastErr = err
			logger.Warn("generation attempt failed", zap.Int("attempt", attempt), zap.Error(err))
		case validate != nil && !validate(result):
			lastErr = errors.New("response failed validation")
			logger.Warn("generation attempt rejected", zap.Int("attempt", attempt))
		default:
			logger.Debug("generation attempt succeeded", zap.Int("attempt", attempt))
			return result, nil
		}

		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return zero, &GenerationError{Message: "generation cancelled", Cause: ctx.Err()}
		case <-time.After(policy.Delay):
		}
	}

	return zero, &GenerationError{Message: ErrRetriesExhausted.Error(), Cause: errors.Join(ErrRetriesExhausted, lastErr)}
}
