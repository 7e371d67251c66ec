// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"fmt"
	"time"
)

// RetryWithBackoff runs op up to maxAttempts times with exponential backoff,
// checking ctx.Err() before each retry so a canceled caller stops waiting.
// Engine invocations use it to ride out transient engine-level failures; op
// decides retryability, typically via isEngineFailure.
//
// op returns (shouldRetry bool, err error). A false shouldRetry ends the loop
// with err as the result (nil on success). On exhaustion the last error is
// returned.
func RetryWithBackoff(
	ctx context.Context,
	maxAttempts int,
	baseBackoff time.Duration,
	op func(attempt int) (retry bool, err error),
) error {
	var lastErr error
	for attempt := range maxAttempts {
		if attempt > 0 {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("retry aborted: %w", err)
			}
			time.Sleep(baseBackoff * time.Duration(1<<(attempt-1)))
		}

		retry, err := op(attempt)
		if err == nil {
			return nil
		}
		if !retry {
			return err
		}
		lastErr = err
	}
	return lastErr
}
