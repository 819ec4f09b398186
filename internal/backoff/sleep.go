package backoff

import (
	"context"
	"errors"
	"time"
)

// ErrAttemptsExhausted is returned by Retry when every attempt failed.
var ErrAttemptsExhausted = errors.New("backoff: attempts exhausted")

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Retry calls fn up to maxAttempts times, sleeping per policy in between. It
// returns the number of attempts made and, on failure, ErrAttemptsExhausted
// joined with the last error, or the context error.
func Retry(ctx context.Context, policy Policy, maxAttempts int, fn func(attempt int) error) (int, error) {
	var last error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, err
		}
		if last = fn(attempt); last == nil {
			return attempt, nil
		}
		if attempt < maxAttempts {
			if err := Sleep(ctx, policy.Delay(attempt)); err != nil {
				return attempt, err
			}
		}
	}
	return maxAttempts, errors.Join(ErrAttemptsExhausted, last)
}
