package utils

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// WaitForCondition periodically executes the given function fn based on the provided pollingInterval.
// The function fn should return true of the desired condition is met. If the function never returns true within the timeoutAfter
// period, ctx is cancelled, or fn returns an error, the condition will not have been met.
func WaitForCondition(ctx context.Context, timeoutAfter, pollingInterval time.Duration, fn func() (bool, error)) error {
	ctx, cancel := context.WithTimeout(ctx, timeoutAfter)
	defer cancel()

	for {
		reachedCondition, err := fn()
		if err != nil {
			return errors.Wrap(err, "error occurred while waiting for condition")
		}
		if reachedCondition {
			return nil
		}

		select {
		case <-ctx.Done():
			return errors.Errorf("failed waiting for condition after %f seconds", timeoutAfter.Seconds())
		case <-time.After(pollingInterval):
		}
	}
}
