package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestExecutor(t *testing.T) (*Executor, *[]time.Duration) {
	sleeps := &[]time.Duration{}
	e := New(Config{
		Sleeper: func(ctx context.Context, d time.Duration) error {
			*sleeps = append(*sleeps, d)
			return nil
		},
		Logger: zerolog.New(nil).Level(zerolog.Disabled),
	})
	return e, sleeps
}

func TestDo_SucceedsOnFifthAttempt(t *testing.T) {
	e, sleeps := createTestExecutor(t)

	calls := 0
	err := e.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 5 {
			return &RateLimitError{}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 5, calls)

	// Exponential backoff without a hint: 2^0, 2^1, 2^2, 2^3 seconds
	require.Len(t, *sleeps, 4)
	assert.Equal(t, 1*time.Second, (*sleeps)[0])
	assert.Equal(t, 2*time.Second, (*sleeps)[1])
	assert.Equal(t, 4*time.Second, (*sleeps)[2])
	assert.Equal(t, 8*time.Second, (*sleeps)[3])
}

func TestDo_HonorsRetryAfterHint(t *testing.T) {
	e, sleeps := createTestExecutor(t)

	calls := 0
	err := e.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return &RateLimitError{RetryAfter: 30 * time.Second}
		}
		return nil
	})

	require.NoError(t, err)
	require.Len(t, *sleeps, 1)
	assert.Equal(t, 30*time.Second, (*sleeps)[0])
}

func TestDo_ExhaustsAfterFiveAttempts(t *testing.T) {
	e, _ := createTestExecutor(t)

	calls := 0
	err := e.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return &RateLimitError{RetryAfter: 7 * time.Second}
	})

	// No sixth attempt
	assert.Equal(t, 5, calls)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRateLimitExceeded)

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 5, exhausted.Attempts)
	assert.Equal(t, 7*time.Second, exhausted.RetryAfter)
}

func TestDo_NonRateLimitErrorPropagatesImmediately(t *testing.T) {
	e, sleeps := createTestExecutor(t)

	boom := errors.New("boom")
	calls := 0
	err := e.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return boom
	})

	assert.Equal(t, 1, calls)
	assert.Empty(t, *sleeps)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrRateLimitExceeded)
}

func TestDo_WrappedRateLimitErrorIsRetried(t *testing.T) {
	e, _ := createTestExecutor(t)

	calls := 0
	err := e.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return fmt.Errorf("llm call failed: %w", &RateLimitError{})
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestDo_ContextCancelledDuringSleep(t *testing.T) {
	e := New(Config{
		Sleeper: func(ctx context.Context, d time.Duration) error {
			return context.Canceled
		},
		Logger: zerolog.New(nil).Level(zerolog.Disabled),
	})

	err := e.Do(context.Background(), func(ctx context.Context) error {
		return &RateLimitError{}
	})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestDo1_ReturnsValue(t *testing.T) {
	e, _ := createTestExecutor(t)

	calls := 0
	got, err := Do1(context.Background(), e, func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", &RateLimitError{}
		}
		return "answer", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "answer", got)
	assert.Equal(t, 3, calls)
}
