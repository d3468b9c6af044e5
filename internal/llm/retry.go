package llm

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// retryWithBackoff runs operation up to maxAttempts times, sleeping an
// exponentially growing delay between attempts (baseDelay doubling, capped
// at maxDelay). The error from the final attempt is returned as-is.
func retryWithBackoff(ctx context.Context, operation func() error, maxAttempts int, baseDelay, maxDelay time.Duration) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		lastErr = operation()
		if lastErr == nil {
			if attempt > 1 {
				log.Debug().Int("attempt", attempt).Msg("Completion succeeded after retry")
			}
			return nil
		}
		if attempt == maxAttempts {
			break
		}

		delay := baseDelay
		for i := 1; i < attempt; i++ {
			delay *= 2
		}
		if delay > maxDelay {
			delay = maxDelay
		}
		log.Debug().Int("attempt", attempt).Dur("delay", delay).Err(lastErr).Msg("Completion failed, retrying")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}
