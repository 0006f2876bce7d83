// Package retry wraps calls to rate-limited external services with
// bounded retry and exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultMaxAttempts is the total number of attempts before giving up.
	DefaultMaxAttempts = 5

	// DefaultBackoffFactor is the base of the exponential backoff curve.
	DefaultBackoffFactor = 2
)

// RateLimitError signals a transient rate-limit condition. Operations
// return it (usually wrapped) to request a retry. RetryAfter carries the
// service-provided hint, zero when the service gave none.
type RateLimitError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("rate limited: %v", e.Err)
	}
	return "rate limited"
}

func (e *RateLimitError) Unwrap() error { return e.Err }

// ExhaustedError is returned after every attempt was rate limited. It
// carries the last known retry-after hint so callers can surface it.
type ExhaustedError struct {
	Attempts   int
	RetryAfter time.Duration
	Err        error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("rate limit exceeded after %d attempts", e.Attempts)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// ErrRateLimitExceeded matches any ExhaustedError via errors.Is.
var ErrRateLimitExceeded = errors.New("rate limit exceeded")

func (e *ExhaustedError) Is(target error) bool { return target == ErrRateLimitExceeded }

// Sleeper waits for the given duration or until the context is cancelled.
type Sleeper func(ctx context.Context, d time.Duration) error

func defaultSleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// Executor retries operations that fail with a rate-limit condition.
// Non-rate-limit failures propagate immediately with zero retries.
type Executor struct {
	maxAttempts   int
	backoffFactor float64
	sleep         Sleeper
	logger        zerolog.Logger
}

// Config holds executor configuration.
type Config struct {
	MaxAttempts   int
	BackoffFactor float64
	Sleeper       Sleeper // optional, for tests
	Logger        zerolog.Logger
}

// New creates an executor. Zero-valued config fields fall back to defaults.
func New(cfg Config) *Executor {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.BackoffFactor <= 0 {
		cfg.BackoffFactor = DefaultBackoffFactor
	}
	if cfg.Sleeper == nil {
		cfg.Sleeper = defaultSleep
	}
	return &Executor{
		maxAttempts:   cfg.MaxAttempts,
		backoffFactor: cfg.BackoffFactor,
		sleep:         cfg.Sleeper,
		logger:        cfg.Logger.With().Str("component", "retry").Logger(),
	}
}

// Do runs op, retrying while it returns a *RateLimitError. The wait before
// retry n is the service-provided hint when present, otherwise
// backoffFactor^n seconds. After maxAttempts rate-limited attempts it
// returns an *ExhaustedError carrying the last hint.
func (e *Executor) Do(ctx context.Context, op func(ctx context.Context) error) error {
	var lastHint time.Duration
	var lastErr error

	for attempt := 0; attempt < e.maxAttempts; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}

		var rle *RateLimitError
		if !errors.As(err, &rle) {
			return err
		}

		lastHint = rle.RetryAfter
		lastErr = err

		if attempt == e.maxAttempts-1 {
			break
		}

		wait := rle.RetryAfter
		if wait <= 0 {
			wait = time.Duration(math.Pow(e.backoffFactor, float64(attempt))) * time.Second
		}

		e.logger.Warn().
			Int("attempt", attempt+1).
			Dur("wait", wait).
			Msg("Rate limit exceeded, retrying")

		if err := e.sleep(ctx, wait); err != nil {
			return err
		}
	}

	return &ExhaustedError{
		Attempts:   e.maxAttempts,
		RetryAfter: lastHint,
		Err:        lastErr,
	}
}

// Do1 runs an operation returning a value through the executor.
func Do1[T any](ctx context.Context, e *Executor, op func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := e.Do(ctx, func(ctx context.Context) error {
		var opErr error
		result, opErr = op(ctx)
		return opErr
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}
