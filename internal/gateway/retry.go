package gateway

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// DefaultMaxAttempts and DefaultBaseDelay are the envelope defaults when the
// caller passes zero values.
const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = time.Second
)

// WithRetry runs op with bounded exponential backoff. The cancellation
// context is checked before every attempt; a cancelled context fails
// immediately with ErrAborted and is never retried. Only failures wrapping
// ErrTransient (rate limit, overload) are retried, with
// delay = base * 2^attempt + random(0,base). Everything else is returned
// as-is. Exhausting the attempt budget returns ErrRetryExhausted wrapping
// the last failure.
func WithRetry[T any](ctx context.Context, op func(context.Context) (T, error), maxAttempts int, baseDelay time.Duration) (T, error) {
	var zero T
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if baseDelay <= 0 {
		baseDelay = DefaultBaseDelay
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, fmt.Errorf("%w: %v", ErrAborted, err)
		}

		out, err := op(ctx)
		if err == nil {
			return out, nil
		}
		if errors.Is(err, ErrAborted) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return zero, fmt.Errorf("%w: %v", ErrAborted, err)
		}
		if !errors.Is(err, ErrTransient) {
			return zero, err
		}
		lastErr = err

		if attempt == maxAttempts-1 {
			break
		}
		delay := baseDelay*(1<<attempt) + time.Duration(rand.Int63n(int64(baseDelay)))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return zero, fmt.Errorf("%w: %v", ErrAborted, ctx.Err())
		}
	}
	return zero, fmt.Errorf("%w after %d attempts: %v", ErrRetryExhausted, maxAttempts, lastErr)
}
