package vecstore

import (
	"context"
	"fmt"
	"time"

	"github.com/clinisights/dx-core/internal/models"
)

// retryPolicy retries transient index I/O with exponential backoff
// (default 3 attempts: 100 ms, 400 ms, 1.6 s). Exhaustion surfaces as
// ErrIndexUnavailable so callers can degrade.
type retryPolicy struct {
	attempts int
	backoff  time.Duration
}

func newRetryPolicy(attempts int, backoff time.Duration) retryPolicy {
	if attempts <= 0 {
		attempts = 3
	}
	if backoff <= 0 {
		backoff = 100 * time.Millisecond
	}
	return retryPolicy{attempts: attempts, backoff: backoff}
}

func (p retryPolicy) do(ctx context.Context, op string, fn func() error) error {
	var lastErr error
	delay := p.backoff
	for attempt := 1; attempt <= p.attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %s: %v", models.ErrIndexUnavailable, op, err)
		}
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if attempt == p.attempts {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("%w: %s: %v", models.ErrIndexUnavailable, op, ctx.Err())
		}
		delay *= 4
	}
	return fmt.Errorf("%w: %s after %d attempts: %v", models.ErrIndexUnavailable, op, p.attempts, lastErr)
}
