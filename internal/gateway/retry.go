package gateway

import (
	"context"
	"fmt"
	"time"
)

const (
	// jitterDivisor is used to calculate jitter (10% jitter).
	jitterDivisor = 10
	// halfDivisor is used to divide values by 2.
	halfDivisor = 2

	baseRetryDelay = 200 * time.Millisecond
	maxRetryDelay  = 2 * time.Second
)

// RetryDelay calculates exponential backoff for the given attempt.
func RetryDelay(attempts int) time.Duration {
	const maxShift = 30

	if attempts <= 0 {
		return baseRetryDelay
	}

	delay := baseRetryDelay
	for i := 0; i < attempts && i < maxShift; i++ {
		delay *= 2
		if delay > maxRetryDelay {
			return maxRetryDelay
		}
	}

	jitterRange := delay / jitterDivisor
	if jitterRange > 0 {
		jitter := time.Duration(time.Now().UnixNano() % int64(jitterRange))
		delay += jitter - jitterRange/halfDivisor
	}

	return delay
}

// sleep waits for d or until ctx is done. A wait that would outlast the
// context deadline is skipped.
func sleep(ctx context.Context, d time.Duration) error {
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < d {
		return fmt.Errorf("retry delay exceeds deadline: %w", context.DeadlineExceeded)
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
