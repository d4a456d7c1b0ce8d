package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Delay: time.Millisecond}
}

func TestRetry_FirstAttemptValid(t *testing.T) {
	calls := 0
	result, err := Retry(context.Background(), fastPolicy(), func(context.Context) (string, error) {
		calls++
		return "a profile that is long enough to pass", nil
	}, ProfileText)

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, "a profile that is long enough to pass", result)
}

func TestRetry_InvalidThenValid(t *testing.T) {
	outputs := []string{"short", "still short", "this output is comfortably over twenty characters"}
	calls := 0
	result, err := Retry(context.Background(), fastPolicy(), func(context.Context) (string, error) {
		out := outputs[calls]
		calls++
		return out, nil
	}, ProfileText)

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, outputs[2], result)
}

func TestRetry_AlwaysInvalid(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), fastPolicy(), func(context.Context) (string, error) {
		calls++
		return "nope", nil
	}, ProfileText)

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.ErrorIs(t, err, ErrRetriesExhausted)

	var genErr *GenerationError
	assert.True(t, errors.As(err, &genErr))
}

func TestRetry_GenerationErrorsCountAsAttempts(t *testing.T) {
	calls := 0
	boom := errors.New("provider unavailable")
	_, err := Retry(context.Background(), fastPolicy(), func(context.Context) (string, error) {
		calls++
		return "", boom
	}, nil)

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.ErrorIs(t, err, boom)
}

func TestRetry_ErrorThenSuccess(t *testing.T) {
	calls := 0
	result, err := Retry(context.Background(), fastPolicy(), func(context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, errors.New("timeout")
		}
		return 42, nil
	}, func(int) bool { return true })

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 42, result)
}

func TestRetry_ContextCancelledStopsEarly(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	policy := RetryPolicy{MaxAttempts: 3, Delay: time.Hour}

	_, err := Retry(ctx, policy, func(context.Context) (string, error) {
		calls++
		cancel()
		return "", errors.New("fail")
	}, nil)

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetry_ZeroAttemptsStillTriesOnce(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), RetryPolicy{}, func(context.Context) (string, error) {
		calls++
		return "ok", nil
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}
