// File: internal/reconcile/retry.go
// Brief: Bounded exponential backoff with jitter for conflict handling.

package reconcile

import (
	"context"
	"math/rand"
	"time"
)

// maxConflictAttempts bounds the re-fetch/recompute/retry loop under
// optimistic concurrency. A conflict after the last attempt is surfaced.
const maxConflictAttempts = 4

// backoff returns the sleep before the given 1-based attempt: exponential
// from 200ms, capped at 3s, with +/- 20% jitter.
func backoff(attempt int) time.Duration {
	base := 200 * time.Millisecond
	if attempt < 1 {
		attempt = 1
	}
	d := base * time.Duration(1<<uint(minInt(attempt-1, 4)))
	if d > 3*time.Second {
		d = 3 * time.Second
	}
	return jitter(d)
}

func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	f := 0.8 + rand.Float64()*0.4
	return time.Duration(float64(d) * f)
}

// withConflictRetry runs fn, re-invoking it on version conflicts until the
// attempt budget or the context deadline runs out. Every attempt observes
// current state again; fn must be safe to re-run from scratch.
func withConflictRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 1; attempt <= maxConflictAttempts; attempt++ {
		err = fn(ctx)
		if err == nil || !retryableConflict(err) {
			return err
		}
		if attempt == maxConflictAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff(attempt)):
		}
	}
	return err
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
