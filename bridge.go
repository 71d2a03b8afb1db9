package trackbridge

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jpalmerr/trackbridge/internal/poller"
)

// Bridge defers work until a [Tracker] is installed in its [TrackerSlot].
//
// Calls issued before the tracking script has loaded are not dropped: each
// one polls the slot at a fixed interval and runs exactly once when a tracker
// appears. Waits have no timeout; they end only when a tracker appears or the
// bridge is closed.
//
// A Bridge with a nil slot is a no-op. This is the headless mode used when
// tracking is not configured.
type Bridge struct {
	slot     *TrackerSlot
	interval time.Duration
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	closed  bool
	wg      sync.WaitGroup
	pending atomic.Int64
}

// NewBridge creates a [Bridge] over slot. A non-positive interval uses the
// 100ms default.
func NewBridge(slot *TrackerSlot, interval time.Duration, logger *slog.Logger) *Bridge {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Bridge{
		slot:     slot,
		interval: interval,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// WaitForTracker runs fn with the installed tracker.
//
// If a tracker is already installed, fn runs synchronously before
// WaitForTracker returns. Otherwise a background poll is started and fn runs
// once, on that goroutine, after the tracker appears. In headless mode (nil
// slot) or after [Bridge.Close], WaitForTracker returns without scheduling
// anything.
//
// Panics in fn are recovered and logged.
func (b *Bridge) WaitForTracker(fn func(Tracker)) {
	if b == nil || b.slot == nil || b.ctx.Err() != nil {
		return
	}

	if t, ok := b.slot.Load(); ok {
		b.invoke(fn, t)
		return
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.wg.Add(1)
	b.pending.Add(1)
	b.mu.Unlock()

	go func() {
		defer b.wg.Done()

		var t Tracker
		found := poller.Wait(b.ctx, b.interval, func() bool {
			var ok bool
			t, ok = b.slot.Load()
			return ok
		})
		b.pending.Add(-1)
		if !found {
			return
		}
		b.invoke(fn, t)
	}()
}

// Pending returns the number of waits that have not yet found a tracker. A
// wait stops counting as soon as its tracker is found, before its callback
// runs.
func (b *Bridge) Pending() int {
	if b == nil {
		return 0
	}
	return int(b.pending.Load())
}

// Close cancels all pending waits and blocks until their goroutines exit.
// Callbacks of cancelled waits never run. Close is idempotent.
func (b *Bridge) Close() {
	if b == nil {
		return
	}
	b.mu.Lock()
	b.closed = true
	b.cancel()
	b.mu.Unlock()

	b.wg.Wait()
}

// invoke calls fn with panic recovery. Panics are logged with a correlation
// ID and do not propagate.
func (b *Bridge) invoke(fn func(Tracker), t Tracker) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("tracker callback panicked",
				"correlation_id", uuid.NewString(),
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
		}
	}()
	fn(t)
}
