package internal

import (
	"context"
	"fmt"
	"time"
)

// ActionRetryTaskCallback represents a callback function that performs one
// attempt of a retryable task under a cancellation context.
type ActionRetryTaskCallback[T any] func(ctx context.Context) (T, error)

// ActionOnRetry represents a callback function invoked before a retry
// attempt is scheduled.
type ActionOnRetry func(retryAttemptCount, retryAttemptTotal int, delay time.Duration)

// DefaultRetryAttempt is the default number of attempts for a retryable
// network operation.
const DefaultRetryAttempt = 3

// DefaultRetryDelayStep is the base inter-attempt delay. The wait before
// attempt n is n times this step.
const DefaultRetryDelayStep = 2 * time.Second

// WaitForRetry executes a task with retry logic. Cancellation is observed
// between attempts and aborts immediately without consuming the remaining
// attempts.
func WaitForRetry[T any](
	ctx context.Context,
	callback ActionRetryTaskCallback[T],
	retryAttempt int,
	delayStep time.Duration,
	actionOnRetry ActionOnRetry,
) (T, error) {
	var zero T

	if retryAttempt <= 0 {
		retryAttempt = DefaultRetryAttempt
	}
	if delayStep <= 0 {
		delayStep = DefaultRetryDelayStep
	}

	var lastError error
	for attempt := 1; attempt <= retryAttempt; attempt++ {
		result, err := callback(ctx)
		if err == nil {
			return result, nil
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}

		lastError = err
		if attempt == retryAttempt {
			break
		}

		delay := time.Duration(attempt) * delayStep
		PushLogWarning(nil, fmt.Sprintf("The operation has failed! Retrying attempt %d/%d in %v\n%v",
			attempt, retryAttempt, delay, err))
		if actionOnRetry != nil {
			actionOnRetry(attempt, retryAttempt, delay)
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
	}

	return zero, fmt.Errorf("the operation has failed after %d attempts: %w", retryAttempt, lastError)
}
