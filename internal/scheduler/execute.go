package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"playcue/internal/action"
	logx "playcue/pkg/logx"
)

// fire is the timer callback of every entry.
func (e *Engine) fire(registryID string) {
	e.mu.Lock()
	ent, ok := e.entries[registryID]
	if !ok || !ent.active {
		e.mu.Unlock()
		return
	}
	now := e.clock.Now()
	if ent.kind == KindDaily {
		if ent.repeat == nil {
			ent.repeat = e.clock.ScheduleRepeating(e.cfg.RepeatInterval, func() { e.fire(registryID) })
		}
		ent.timer = nil
		ent.scheduledTime = now.Add(e.cfg.RepeatInterval)
	}
	if ent.running {
		e.mu.Unlock()
		e.log.Warn("previous execution still running; skipping firing", logx.String("action_id", ent.actionID))
		return
	}
	ent.running = true
	ent.fired++
	armed := e.active[ent.actionID]
	if armed.ID == "" {
		armed.ID = ent.actionID
	}
	ctx := e.runCtx
	e.mu.Unlock()

	e.executeSafely(ctx, registryID, armed)
}

// executeSafely re-reads the action before running it: deleted or
// deactivated actions drop their local entry instead of executing. When the
// store cannot be reached the armed copy is used.
func (e *Engine) executeSafely(ctx context.Context, registryID string, armed action.Record) {
	rec, err := e.store.Get(ctx, armed.ID)
	switch {
	case errors.Is(err, action.ErrNotFound):
		e.log.Info("action no longer exists; dropping entry", logx.String("action_id", armed.ID))
		e.Disarm(armed.ID)
		return
	case err != nil:
		e.log.Warn("reload action failed; executing armed copy", logx.String("action_id", armed.ID), logx.Err(err))
		rec = armed
	case !rec.IsActive:
		e.log.Info("action deactivated; dropping entry", logx.String("action_id", rec.ID))
		e.Disarm(rec.ID)
		return
	}
	e.executeWithRetry(ctx, registryID, rec, 0)
}

// executeWithRetry runs attempt n (0-based) of the chain started by a firing.
// Failures arm a cancellable retry on the owning entry until the retry
// limit is reached.
func (e *Engine) executeWithRetry(ctx context.Context, registryID string, rec action.Record, n int) {
	self := e.liveEntry(registryID)
	if self == nil {
		return
	}
	res, err := e.control(ctx, rec)
	now := e.clock.Now()
	if err == nil && res.Success {
		e.succeeded(ctx, rec, res, n, now)
		e.finish(registryID)
		return
	}
	if err == nil {
		msg := strings.TrimSpace(res.Message)
		if msg == "" {
			msg = "no message"
		}
		err = fmt.Errorf("%w: %s", ErrPlayerFailed, msg)
	}

	e.mu.Lock()
	limit := rec.RetryLimit(e.cfg.MaxRetries)
	d := e.policy.Next(n, limit)
	e.mu.Unlock()

	if !d.Retry {
		e.exhausted(ctx, rec, res, err, d.Failures)
		e.finish(registryID)
		return
	}

	if _, perr := e.store.Patch(ctx, rec.ID, action.Patch{RetryCount: action.Int(d.Failures)}); perr != nil {
		e.log.Warn("persist retry count failed", logx.String("action_id", rec.ID), logx.Err(perr))
	}
	rec.RetryCount = d.Failures

	e.mu.Lock()
	ent, ok := e.entries[registryID]
	if !ok || !ent.active {
		dropped := self.dropped
		e.mu.Unlock()
		if dropped {
			e.exhausted(ctx, rec, res, ErrChainDropped, d.Failures)
		}
		return
	}
	next := n + 1
	ent.chainRec, ent.chainFailures = rec, d.Failures
	ent.retry = e.clock.ScheduleOnce(d.Delay, func() { e.retryFire(registryID, rec, next) })
	e.mu.Unlock()

	e.log.Warn("action failed; retry scheduled",
		logx.String("action_id", rec.ID), logx.Int("attempt", d.Failures), logx.Int("max", limit),
		logx.Duration("retry_in", d.Delay), logx.Err(err))
	e.publish(EventRetry, ActionEvent{Action: rec, Result: resultPtr(res, err), Attempts: d.Failures, RetryIn: d.Delay, Error: err.Error()})
}

func (e *Engine) retryFire(registryID string, rec action.Record, n int) {
	e.mu.Lock()
	ent, ok := e.entries[registryID]
	if !ok || !ent.active {
		e.mu.Unlock()
		return
	}
	ent.retry = nil
	ent.chainRec, ent.chainFailures = action.Record{}, 0
	ctx := e.runCtx
	e.mu.Unlock()

	e.executeWithRetry(ctx, registryID, rec, n)
}

// liveEntry returns the active entry for registryID, or nil.
func (e *Engine) liveEntry(registryID string) *entry {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, ok := e.entries[registryID]
	if !ok || !ent.active {
		return nil
	}
	return ent
}

// control calls the player with a deadline and turns panics into failures.
func (e *Engine) control(ctx context.Context, rec action.Record) (res action.Result, err error) {
	e.mu.Lock()
	timeout := e.cfg.SinkTimeout
	e.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			e.log.Error("player panic", logx.String("action_id", rec.ID), logx.Any("panic", r), logx.Stack(logx.StackTrace(3, 24)))
			res, err = action.Result{}, fmt.Errorf("player panic: %v", r)
		}
	}()

	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return e.sink.Control(cctx, rec.Type, rec.ResolveTarget())
}

func (e *Engine) succeeded(ctx context.Context, rec action.Record, res action.Result, n int, now time.Time) {
	e.mu.Lock()
	repeat := e.cfg.RepeatInterval
	cleared := e.state.ClearExhausted(rec.ID)
	e.mu.Unlock()

	p := action.Patch{LastRun: action.Int64(now.Unix())}
	if rec.IsDaily {
		p.NextRun = action.Int64(now.Add(repeat).Unix())
	}
	if rec.RetryCount != 0 || n != 0 {
		p.RetryCount = action.Int(0)
	}
	if _, err := e.store.Patch(ctx, rec.ID, p); err != nil {
		e.log.Warn("persist run outcome failed", logx.String("action_id", rec.ID), logx.Err(err))
	}
	if cleared {
		e.saveState(ctx)
	}

	rec = p.Apply(rec)
	e.log.Info("action executed",
		logx.String("action_id", rec.ID), logx.String("type", string(rec.Type)), logx.String("target", rec.ResolveTarget()),
		logx.Int("attempt", n+1), logx.String("message", res.Message))
	e.publish(EventExecuted, ActionEvent{Action: rec, Result: &res, Attempts: n + 1})
}

func (e *Engine) exhausted(ctx context.Context, rec action.Record, res action.Result, err error, failures int) {
	if _, perr := e.store.Patch(ctx, rec.ID, action.Patch{RetryCount: action.Int(failures)}); perr != nil {
		e.log.Warn("persist retry count failed", logx.String("action_id", rec.ID), logx.Err(perr))
	}
	rec.RetryCount = failures

	e.mu.Lock()
	e.state.MarkExhausted(rec.ID)
	e.mu.Unlock()
	e.saveState(ctx)

	e.log.Error("action failed; retries exhausted",
		logx.String("action_id", rec.ID), logx.String("type", string(rec.Type)), logx.Int("attempts", failures), logx.Err(err))
	e.publish(EventFailed, ActionEvent{Action: rec, Result: resultPtr(res, err), Attempts: failures, Error: err.Error()})
}

// finish ends the chain of a firing; one-time entries retire here.
func (e *Engine) finish(registryID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, ok := e.entries[registryID]
	if !ok {
		return
	}
	ent.running = false
	if ent.kind == KindOnce {
		delete(e.active, ent.actionID)
		e.retireLocked(ent)
	}
}

func resultPtr(res action.Result, err error) *action.Result {
	if res == (action.Result{}) && err != nil {
		return nil
	}
	return &res
}
