package utils

import (
	"context"
	"fmt"
	"time"

	"pagerduty-analytics/internal/logging"
)

// Retry runs fn up to maxAttempts times with a fixed delay between attempts,
// giving up early when ctx is cancelled. Used for startup dependencies that
// may not be reachable yet.
func Retry(ctx context.Context, logger *logging.Logger, maxAttempts int, delay time.Duration, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := fn(); err != nil {
			lastErr = err
			logger.Errorf("Attempt %d/%d failed: %v", attempt, maxAttempts, err)
			if attempt < maxAttempts {
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					return fmt.Errorf("aborted after %d attempt(s): %w", attempt, ctx.Err())
				}
			}
			continue
		}
		return nil
	}
	return fmt.Errorf("failed after %d attempts: %w", maxAttempts, lastErr)
}
