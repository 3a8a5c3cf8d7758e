// Package retry decides whether a failed call is retried and after how long.
// It holds no state; callers own the timers.
package retry

import (
	"errors"
	"fmt"
	"time"
)

const DefaultBase = time.Second

// Policy is exponential backoff without jitter: attempt n (0-based) that
// fails waits Base * 2^n before the next attempt.
type Policy struct {
	Base     time.Duration
	MaxDelay time.Duration // 0 = uncapped
}

// Decision is the outcome for one failed attempt.
type Decision struct {
	Retry bool
	Delay time.Duration
	// Failures counts failed attempts including this one.
	Failures int
}

// Next decides for the failure of attempt n (0-based) with at most limit
// failed attempts allowed in total. Once limit failures have happened the
// action is exhausted. Every failure counts the same.
func (p Policy) Next(n, limit int) Decision {
	if n < 0 {
		n = 0
	}
	d := Decision{Failures: n + 1}
	if d.Failures >= limit {
		return d
	}
	d.Retry = true
	d.Delay = p.Delay(n)
	return d
}

// Delay returns Base * 2^n, capped by MaxDelay when set.
func (p Policy) Delay(n int) time.Duration {
	base := p.Base
	if base <= 0 {
		base = DefaultBase
	}
	if n < 0 {
		n = 0
	}
	d := base
	for i := 0; i < n; i++ {
		if d > time.Duration(1<<62)/2 {
			break
		}
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// NoRetry marks an error as permanent for callers that distinguish them
// (notification delivery). Playback failures are always retried.
//
//	return retry.NoRetry(fmt.Errorf("chat %d not found", id))
func NoRetry(err error) error {
	if err == nil {
		return nil
	}
	return noRetryError{err: err}
}

// IsNoRetry reports whether err is wrapped with NoRetry.
func IsNoRetry(err error) bool {
	var e noRetryError
	return errors.As(err, &e)
}

type noRetryError struct{ err error }

func (e noRetryError) Error() string { return fmt.Sprintf("no-retry: %v", e.err) }
func (e noRetryError) Unwrap() error { return e.err }
