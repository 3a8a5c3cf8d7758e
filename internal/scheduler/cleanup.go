package scheduler

import (
	logx "playcue/pkg/logx"
)

// Sweep drops one-time entries whose scheduled time is more than StaleAfter
// in the past. Daily entries are never swept. It returns the number dropped.
func (e *Engine) Sweep() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := e.clock.Now().Add(-e.cfg.StaleAfter)
	var stale []*entry
	for _, ent := range e.entries {
		if ent.kind == KindOnce && ent.scheduledTime.Before(cutoff) {
			ent.active = false
			stale = append(stale, ent)
		}
	}
	for _, ent := range stale {
		delete(e.active, ent.actionID)
		e.retireLocked(ent)
		e.log.Info("stale one-time entry removed",
			logx.String("action_id", ent.actionID), logx.Time("scheduled", ent.scheduledTime))
	}
	return len(stale)
}
