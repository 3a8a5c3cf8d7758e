package scheduler

import (
	"time"

	"playcue/internal/action"
)

// Missed is a daily action that did not run while the process was down.
type Missed struct {
	Action       action.Record `json:"action"`
	SinceLastRun time.Duration `json:"since_last_run"`
	Downtime     time.Duration `json:"downtime"`
}

// DetectMissed reports daily actions whose last run is older than
// lastRunAfter when the process was down for longer than downtimeAfter.
// A zero lastInit (first start) never reports anything. Actions that never
// ran count as overdue.
func DetectMissed(recs []action.Record, lastInit, now time.Time, lastRunAfter, downtimeAfter time.Duration) []Missed {
	if lastInit.IsZero() {
		return nil
	}
	downtime := now.Sub(lastInit)
	if downtime <= downtimeAfter {
		return nil
	}
	var out []Missed
	for _, rec := range recs {
		if !rec.IsDaily || !rec.IsActive {
			continue
		}
		since := now.Sub(time.Unix(rec.LastRun, 0))
		if since <= lastRunAfter {
			continue
		}
		out = append(out, Missed{Action: rec, SinceLastRun: since, Downtime: downtime})
	}
	return out
}
