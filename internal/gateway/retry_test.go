package gateway

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestWithRetryTransientExhaustion(t *testing.T) {
	calls := 0
	_, err := WithRetry(context.Background(), func(ctx context.Context) (string, error) {
		calls++
		return "", Transient(fmt.Errorf("overloaded"))
	}, 3, time.Millisecond)
	if calls != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", calls)
	}
	if !errors.Is(err, ErrRetryExhausted) {
		t.Fatalf("expected ErrRetryExhausted, got %v", err)
	}
}

func TestWithRetryNonTransientNotRetried(t *testing.T) {
	calls := 0
	boom := errors.New("bad request")
	_, err := WithRetry(context.Background(), func(ctx context.Context) (string, error) {
		calls++
		return "", boom
	}, 3, time.Millisecond)
	if calls != 1 {
		t.Fatalf("expected 1 attempt, got %d", calls)
	}
	if !errors.Is(err, boom) {
		t.Fatalf("expected underlying error, got %v", err)
	}
	if errors.Is(err, ErrRetryExhausted) {
		t.Fatalf("non-transient failure must not report exhaustion")
	}
}

func TestWithRetryCancelledBeforeFirstAttempt(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	_, err := WithRetry(ctx, func(ctx context.Context) (string, error) {
		calls++
		return "ok", nil
	}, 3, time.Millisecond)
	if calls != 0 {
		t.Fatalf("cancelled context must issue zero calls, got %d", calls)
	}
	if !errors.Is(err, ErrAborted) {
		t.Fatalf("expected ErrAborted, got %v", err)
	}
}

func TestWithRetryAbortNeverRetried(t *testing.T) {
	calls := 0
	_, err := WithRetry(context.Background(), func(ctx context.Context) (string, error) {
		calls++
		return "", fmt.Errorf("%w: user stop", ErrAborted)
	}, 5, time.Millisecond)
	if calls != 1 {
		t.Fatalf("aborted op must not be retried, got %d calls", calls)
	}
	if !errors.Is(err, ErrAborted) {
		t.Fatalf("expected ErrAborted, got %v", err)
	}
}

func TestWithRetryRecoversAfterTransient(t *testing.T) {
	calls := 0
	out, err := WithRetry(context.Background(), func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", Transient(errors.New("rate limit"))
		}
		return "done", nil
	}, 5, time.Millisecond)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "done" || calls != 3 {
		t.Fatalf("expected success on third attempt, got %q after %d calls", out, calls)
	}
}

func TestTransientKeepsUnderlyingChain(t *testing.T) {
	base := errors.New("http 503")
	err := Transient(base)
	if !errors.Is(err, ErrTransient) {
		t.Fatalf("expected ErrTransient in chain")
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected underlying error in chain")
	}
}
