package llm

import (
	"context"
	"fmt"
	"time"
)

var backoffs = []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}

// RetryWithBackoff calls fn up to maxAttempts times, sleeping between
// attempts. A maxAttempts of 1 means no retry. It stops early when ctx is
// done.
func RetryWithBackoff(ctx context.Context, maxAttempts int, fn func(ctx context.Context) error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for i := 0; i < maxAttempts; i++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if i == maxAttempts-1 {
			break
		}
		wait := backoffs[len(backoffs)-1]
		if i < len(backoffs) {
			wait = backoffs[i]
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("failed after %d attempts: %w", i+1, ctx.Err())
		case <-time.After(wait):
		}
	}

	if maxAttempts == 1 {
		return lastErr
	}
	return fmt.Errorf("failed after %d attempts: %w", maxAttempts, lastErr)
}
