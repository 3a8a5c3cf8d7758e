package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"playcue/internal/action"
	"playcue/internal/clock"
	logx "playcue/pkg/logx"
)

var dailyParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Arm replaces whatever is armed for rec.ID with a fresh entry. Inactive
// records only disarm; malformed records disarm and return the reason.
func (e *Engine) Arm(rec action.Record) error {
	if strings.TrimSpace(rec.ID) == "" {
		return ErrMissingID
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	e.disarmLocked(rec.ID)
	delete(e.active, rec.ID)
	return e.armLocked(rec, nil)
}

// armLocked arms rec on a new entry, or on carry when the previous arming
// still has a retry chain in flight.
func (e *Engine) armLocked(rec action.Record, carry *entry) error {
	if !rec.IsActive {
		return nil
	}
	if err := rec.Validate(); err != nil {
		return err
	}
	if rec.IsDaily {
		return e.armDailyLocked(rec, carry)
	}
	e.armOnceLocked(rec, carry)
	return nil
}

// entryLocked reuses carry for a new arming or registers a fresh entry.
func (e *Engine) entryLocked(actionID string, kind Kind, at time.Time, carry *entry) *entry {
	if carry == nil {
		return e.newEntryLocked(actionID, kind, at)
	}
	clock.Cancel(carry.timer)
	clock.Cancel(carry.repeat)
	carry.timer, carry.repeat = nil, nil
	carry.kind = kind
	carry.scheduledTime = at
	carry.active = true
	return carry
}

func (e *Engine) armOnceLocked(rec action.Record, carry *entry) {
	now := e.clock.Now()
	delay := rec.Date.Sub(now)
	if delay < 0 {
		if carry != nil {
			// Keep the entry until its chain finishes; finish retires it.
			e.active[rec.ID] = rec
			e.entryLocked(rec.ID, KindOnce, rec.Date, carry)
			e.log.Debug("one-time action is in the past; keeping pending retries",
				logx.String("action_id", rec.ID), logx.String("registry_id", carry.registryID))
			return
		}
		e.log.Warn("one-time action is in the past; skipping",
			logx.String("action_id", rec.ID), logx.Time("date", rec.Date), logx.Duration("late", -delay))
		return
	}
	e.active[rec.ID] = rec
	ent := e.entryLocked(rec.ID, KindOnce, rec.Date, carry)
	id := ent.registryID
	ent.timer = e.clock.ScheduleOnce(delay, func() { e.fire(id) })
	e.log.Debug("one-time action armed",
		logx.String("action_id", rec.ID), logx.String("registry_id", id), logx.Time("at", rec.Date), logx.Duration("in", delay))
}

func (e *Engine) armDailyLocked(rec action.Record, carry *entry) error {
	tod, err := action.ParseTimeOfDay(rec.Time)
	if err != nil {
		return err
	}
	loc := e.locationLocked(rec)
	now := e.clock.Now()
	next, err := NextDaily(now, tod, loc)
	if err != nil {
		return err
	}
	e.active[rec.ID] = rec
	ent := e.entryLocked(rec.ID, KindDaily, next, carry)
	id := ent.registryID
	delay := next.Sub(now)
	ent.timer = e.clock.ScheduleOnce(delay, func() { e.fire(id) })
	e.log.Debug("daily action armed",
		logx.String("action_id", rec.ID), logx.String("registry_id", id), logx.String("tz", loc.String()),
		logx.Time("next", next), logx.Duration("in", delay))
	return nil
}

// NextDaily returns the first instant strictly after now at which the wall
// clock in loc reads tod.
func NextDaily(now time.Time, tod action.TimeOfDay, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	sched, err := dailyParser.Parse(fmt.Sprintf("%d %d %d * * *", tod.Second, tod.Minute, tod.Hour))
	if err != nil {
		return time.Time{}, fmt.Errorf("daily schedule for %s: %w", tod, err)
	}
	next := sched.Next(now.In(loc))
	if next.IsZero() {
		return time.Time{}, fmt.Errorf("daily schedule for %s: no next occurrence", tod)
	}
	return next, nil
}

// Disarm cancels every entry of actionID and forgets the armed record.
// It reports how many entries were cancelled.
func (e *Engine) Disarm(actionID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.active, actionID)
	return e.disarmLocked(actionID)
}

// disarmLocked clears every matching entry's active flag before cancelling
// any handle, so a callback racing with the cancel sees it inactive.
func (e *Engine) disarmLocked(actionID string) int {
	return e.disarmExceptLocked(actionID, nil)
}

// disarmExceptLocked is disarmLocked sparing keep.
func (e *Engine) disarmExceptLocked(actionID string, keep *entry) int {
	var hit []*entry
	for _, ent := range e.entries {
		if ent.actionID == actionID && ent != keep {
			ent.active = false
			hit = append(hit, ent)
		}
	}
	for _, ent := range hit {
		e.retireLocked(ent)
	}
	if len(hit) > 0 {
		e.log.Debug("action disarmed", logx.String("action_id", actionID), logx.Int("entries", len(hit)))
	}
	return len(hit)
}

// Remove deletes the action from the store and drops all local state for it.
// Local cleanup happens even when the delete fails; the delete error is returned.
func (e *Engine) Remove(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return ErrMissingID
	}
	derr := e.store.Delete(ctx, id)
	if errors.Is(derr, action.ErrNotFound) {
		derr = nil
	}
	if derr != nil {
		e.log.Warn("delete action failed; disarming anyway", logx.String("action_id", id), logx.Err(derr))
	}

	e.mu.Lock()
	rec := e.active[id]
	delete(e.active, id)
	e.disarmLocked(id)
	cleared := e.state.ClearExhausted(id)
	e.mu.Unlock()

	if cleared {
		e.saveState(ctx)
	}
	if rec.ID == "" {
		rec.ID = id
	}
	e.publish(EventRemoved, ActionEvent{Action: rec})
	if derr != nil {
		return fmt.Errorf("delete action %s: %w", id, derr)
	}
	return nil
}

// Pause deactivates the action in the store and disarms it.
func (e *Engine) Pause(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return ErrMissingID
	}
	rec, err := e.store.Patch(ctx, id, action.Patch{IsActive: action.Bool(false)})
	if err != nil {
		return fmt.Errorf("pause action %s: %w", id, err)
	}
	e.Disarm(id)
	e.publish(EventPaused, ActionEvent{Action: rec})
	e.log.Info("action paused", logx.String("action_id", id))
	return nil
}

// Resume reactivates the action in the store and arms it from the stored record.
func (e *Engine) Resume(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return ErrMissingID
	}
	rec, err := e.store.Patch(ctx, id, action.Patch{IsActive: action.Bool(true)})
	if err != nil {
		return fmt.Errorf("resume action %s: %w", id, err)
	}
	if err := e.Arm(rec); err != nil {
		return fmt.Errorf("resume action %s: %w", id, err)
	}
	e.publish(EventResumed, ActionEvent{Action: rec})
	e.log.Info("action resumed", logx.String("action_id", id))
	return nil
}
