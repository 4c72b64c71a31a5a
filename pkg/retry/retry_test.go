package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDoSucceedsOnFirstAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("Do returned %v; want nil", err)
	}
	if calls != 1 {
		t.Fatalf("op called %d times; want 1", calls)
	}
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	}, WithMaxAttempts(5), WithInitialDelay(time.Millisecond), WithMaxDelay(time.Millisecond))

	if err != nil {
		t.Fatalf("Do returned %v; want nil", err)
	}
	if calls != 3 {
		t.Fatalf("op called %d times; want 3", calls)
	}
}

func TestDoReturnsWrappedErrorAfterExhaustingAttempts(t *testing.T) {
	wantErr := errors.New("permanently stuck")
	calls := 0
	err := Do(context.Background(), func(ctx context.Context) error {
		calls++
		return wantErr
	}, WithMaxAttempts(3), WithInitialDelay(time.Millisecond), WithMaxDelay(time.Millisecond))

	if err == nil {
		t.Fatalf("Do returned nil; want an error after exhausting every attempt")
	}
	if !errors.Is(err, wantErr) {
		t.Fatalf("Do's returned error does not wrap the last observed error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("op called %d times; want 3 (MaxAttempts)", calls)
	}
}

func TestDoStopsOnUnretryableError(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errors.New("fatal")
	}, WithMaxAttempts(5), WithRetryIf(func(err error) bool { return false }))

	if err == nil {
		t.Fatalf("Do returned nil; want an error for an unretryable failure")
	}
	if calls != 1 {
		t.Fatalf("op called %d times; want 1 (RetryIf should stop further attempts)", calls)
	}
}

func TestDoRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Do(ctx, func(ctx context.Context) error {
		calls++
		return nil
	})

	if err == nil {
		t.Fatalf("Do returned nil for an already-canceled context; want an error")
	}
	if calls != 0 {
		t.Fatalf("op called %d times on a pre-canceled context; want 0", calls)
	}
}
