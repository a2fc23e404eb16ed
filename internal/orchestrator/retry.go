package orchestrator

import (
	"context"
	"time"
)

// #region constants

const maxPersistAttempts = 3 // 1 try + 2 retries

// #endregion

// #region retry

// persistWithRetry runs fn up to maxPersistAttempts times, doubling the wait
// between attempts. It gives up early when ctx is done and returns the last
// error.
func persistWithRetry(ctx context.Context, backoff time.Duration, fn func(context.Context) error) error {
	var err error
	for attempt := 0; attempt < maxPersistAttempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if attempt == maxPersistAttempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(backoff << attempt):
		}
	}
	return err
}

// #endregion
