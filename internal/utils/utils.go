// Package utils holds small helpers shared across packages.
package utils

import (
	"context"
	"time"
)

// WaitFor blocks for the duration or until the context is cancelled,
// whichever comes first. Every pause in the application flow goes through
// here so shutdown interrupts breaks and rate-limit waits.
func WaitFor(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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
