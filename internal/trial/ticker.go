package trial

import (
	"sync"
	"time"
)

// TickHandle controls a running tick. Stop is synchronous and idempotent;
// calling it from inside the tick callback is allowed.
type TickHandle interface {
	Stop()
}

// TickScheduler produces a repeating callback. The manager guarantees at
// most one active handle by cancelling any existing tick before starting
// a new one.
type TickScheduler interface {
	Start(interval time.Duration, fn func()) TickHandle
}

// NewTickerScheduler returns the production scheduler backed by
// time.Ticker.
func NewTickerScheduler() TickScheduler {
	return tickerScheduler{}
}

type tickerScheduler struct{}

type tickerHandle struct {
	stop chan struct{}
	once sync.Once
}

func (h *tickerHandle) Stop() {
	h.once.Do(func() { close(h.stop) })
}

func (tickerScheduler) Start(interval time.Duration, fn func()) TickHandle {
	h := &tickerHandle{stop: make(chan struct{})}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-h.stop:
				return
			case <-ticker.C:
				// Re-check so a tick queued before Stop does not fire after.
				select {
				case <-h.stop:
					return
				default:
				}
				fn()
			}
		}
	}()

	return h
}
