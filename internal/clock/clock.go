// Package clock holds the time helpers shared by the state stores.
package clock

import (
	"context"
	"sync"
	"time"
)

// Now returns the current time. Stores accept one so tests can pin creation times.
type Now func() time.Time

// UTC is the default Now.
func UTC() time.Time { return time.Now().UTC() }

// Delay blocks for d or until ctx is done. A non-positive d returns immediately
// unless ctx is already cancelled.
func Delay(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stepped returns a Now that starts at start and advances by step on every call.
// It is safe for concurrent use.
func Stepped(start time.Time, step time.Duration) Now {
	var mu sync.Mutex
	next := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t := next
		next = next.Add(step)
		return t
	}
}
