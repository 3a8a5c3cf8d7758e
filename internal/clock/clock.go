// Package clock is the timer primitive the scheduler arms its entries on.
//
// Callbacks are never invoked synchronously from ScheduleOnce or
// ScheduleRepeating, so callers may arm timers while holding their own locks.
package clock

import (
	"sync"
	"time"
)

// Handle cancels a scheduled callback. Cancel is idempotent and reports
// whether the callback was still pending.
type Handle interface {
	Cancel() bool
}

type Clock interface {
	Now() time.Time
	// ScheduleOnce runs fn once after delay (negative delays fire promptly).
	ScheduleOnce(delay time.Duration, fn func()) Handle
	// ScheduleRepeating runs fn every interval until cancelled.
	ScheduleRepeating(interval time.Duration, fn func()) Handle
}

// Cancel is a nil-safe helper for optional handles.
func Cancel(h Handle) bool {
	if h == nil {
		return false
	}
	return h.Cancel()
}

// Real returns the wall clock.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) ScheduleOnce(delay time.Duration, fn func()) Handle {
	if delay < 0 {
		delay = 0
	}
	return timerHandle{t: time.AfterFunc(delay, fn)}
}

func (realClock) ScheduleRepeating(interval time.Duration, fn func()) Handle {
	if interval <= 0 {
		interval = time.Second
	}
	h := &tickerHandle{stop: make(chan struct{})}
	tk := time.NewTicker(interval)
	go func() {
		defer tk.Stop()
		for {
			select {
			case <-h.stop:
				return
			case <-tk.C:
				// stop may race with a tick; re-check before running.
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

type timerHandle struct{ t *time.Timer }

func (h timerHandle) Cancel() bool { return h.t.Stop() }

type tickerHandle struct {
	once sync.Once
	stop chan struct{}
}

func (h *tickerHandle) Cancel() bool {
	cancelled := false
	h.once.Do(func() {
		close(h.stop)
		cancelled = true
	})
	return cancelled
}
