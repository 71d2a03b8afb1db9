package poller

import (
	"context"
	"time"
)

// Wait blocks until ready reports true, checking once immediately and then on
// every tick of interval.
//
// Returns true once ready holds. Returns false if ctx is cancelled first; a
// cancelled wait never calls ready again. There is no upper bound on the wait
// other than ctx.
//
// A non-positive interval is treated as 1ms to avoid a busy loop.
func Wait(ctx context.Context, interval time.Duration, ready func() bool) bool {
	if ctx.Err() != nil {
		return false
	}
	if ready() {
		return true
	}

	if interval <= 0 {
		interval = time.Millisecond
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			// ctx may have been cancelled while the tick was pending
			if ctx.Err() != nil {
				return false
			}
			if ready() {
				return true
			}
		}
	}
}
