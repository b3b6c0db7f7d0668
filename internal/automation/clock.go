// Copyright 2025 Kyungsuk Kim
//
// Clock abstraction for the polling loops, so tests can drive time.
package automation

import (
	"context"
	"time"
)

// Clock supplies time to the stability and retry loops. Production code
// uses SystemClock; tests use a manual clock to step through poll cycles
// without sleeping.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is cancelled, returning ctx.Err()
	// in the latter case.
	Sleep(ctx context.Context, d time.Duration) error
}

// SystemClock is the real-time Clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
