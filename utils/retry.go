package utils

import (
	"context"
	"errors"
	"time"
)

// ErrPollTimeout is returned when the context deadline fires before the
// condition is met.
var ErrPollTimeout = errors.New("timed out")

// Poll invokes fn every interval until it reports done, returns an error, or
// the context is cancelled. The first invocation happens immediately.
func Poll(
	ctx context.Context, interval time.Duration, fn func(ctx context.Context) (bool, error),
) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		done, err := fn(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return ErrPollTimeout
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
