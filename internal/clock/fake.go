package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake is a manually advanced clock for tests. Timers fire only inside
// Advance/Set, in due-time order, on the calling goroutine.
type Fake struct {
	mu     sync.Mutex
	now    time.Time
	seq    uint64
	timers []*fakeTimer
}

type fakeTimer struct {
	f        *Fake
	id       uint64
	when     time.Time
	interval time.Duration
	fn       func()
	done     bool
}

func NewFake(now time.Time) *Fake { return &Fake{now: now} }

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) ScheduleOnce(delay time.Duration, fn func()) Handle {
	if delay < 0 {
		delay = 0
	}
	return f.add(delay, 0, fn)
}

func (f *Fake) ScheduleRepeating(interval time.Duration, fn func()) Handle {
	if interval <= 0 {
		interval = time.Second
	}
	return f.add(interval, interval, fn)
}

func (f *Fake) add(delay, interval time.Duration, fn func()) *fakeTimer {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	t := &fakeTimer{f: f, id: f.seq, when: f.now.Add(delay), interval: interval, fn: fn}
	f.timers = append(f.timers, t)
	return t
}

func (t *fakeTimer) Cancel() bool {
	t.f.mu.Lock()
	defer t.f.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	t.f.removeLocked(t)
	return true
}

func (f *Fake) removeLocked(t *fakeTimer) {
	for i, v := range f.timers {
		if v == t {
			f.timers = append(f.timers[:i], f.timers[i+1:]...)
			return
		}
	}
}

// Advance moves time forward by d, firing every timer that comes due.
func (f *Fake) Advance(d time.Duration) {
	f.Set(f.Now().Add(d))
}

// Set moves time forward to target, firing every timer that comes due.
// Timers armed by callbacks fire too when they fall inside the window.
func (f *Fake) Set(target time.Time) {
	for {
		f.mu.Lock()
		next := f.nextDueLocked(target)
		if next == nil {
			if target.After(f.now) {
				f.now = target
			}
			f.mu.Unlock()
			return
		}
		if next.when.After(f.now) {
			f.now = next.when
		}
		if next.interval > 0 {
			next.when = next.when.Add(next.interval)
		} else {
			next.done = true
			f.removeLocked(next)
		}
		fn := next.fn
		f.mu.Unlock()

		fn()
	}
}

func (f *Fake) nextDueLocked(target time.Time) *fakeTimer {
	var best *fakeTimer
	for _, t := range f.timers {
		if t.when.After(target) {
			continue
		}
		if best == nil || t.when.Before(best.when) || (t.when.Equal(best.when) && t.id < best.id) {
			best = t
		}
	}
	return best
}

// Pending returns the due times of all armed timers, earliest first.
func (f *Fake) Pending() []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]time.Time, 0, len(f.timers))
	for _, t := range f.timers {
		out = append(out, t.when)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}
