package notifier

import (
	"fmt"
	"strings"
	"time"

	"playcue/internal/action"
	"playcue/internal/eventbus"
	"playcue/internal/scheduler"
)

// Format turns a bus event into a notification. Events without a readable
// payload still produce a one-line notice; ok is false only for empty types.
func Format(ev eventbus.Event) (Notification, bool) {
	if strings.TrimSpace(ev.Type) == "" {
		return Notification{}, false
	}
	at := ev.Time
	if at.IsZero() {
		at = time.Now()
	}
	n := Notification{Type: ev.Type, Payload: ev.Data, At: at}

	switch d := ev.Data.(type) {
	case scheduler.ActionEvent:
		n.Text = formatAction(ev.Type, d)
	case *scheduler.ActionEvent:
		if d == nil {
			n.Text = ev.Type
			break
		}
		n.Text = formatAction(ev.Type, *d)
	case scheduler.InitSummary:
		n.Text = fmt.Sprintf("Scheduler initialized: %d loaded, %d armed, %d rejected, %d missed", d.Loaded, d.Armed, d.Rejected, d.Missed)
		if d.Downtime > 0 {
			n.Text += fmt.Sprintf(" (down %s)", d.Downtime.Round(time.Second))
		}
	default:
		n.Text = ev.Type
	}
	return n, true
}

func formatAction(typ string, ev scheduler.ActionEvent) string {
	label := describe(ev.Action)
	switch typ {
	case scheduler.EventExecuted:
		msg := ""
		if ev.Result != nil && ev.Result.Message != "" {
			msg = ": " + ev.Result.Message
		}
		if ev.Attempts > 1 {
			return fmt.Sprintf("✅ %s executed after %d attempts%s", label, ev.Attempts, msg)
		}
		return fmt.Sprintf("✅ %s executed%s", label, msg)
	case scheduler.EventRetry:
		return fmt.Sprintf("🔁 %s failed (attempt %d), retrying in %s: %s", label, ev.Attempts, ev.RetryIn, ev.Error)
	case scheduler.EventFailed:
		return fmt.Sprintf("🚨 %s failed after %d attempts: %s", label, ev.Attempts, ev.Error)
	case scheduler.EventMissed:
		return fmt.Sprintf("⚠️ %s was missed while the scheduler was down", label)
	case scheduler.EventRemoved:
		return fmt.Sprintf("🗑 %s removed", label)
	case scheduler.EventPaused:
		return fmt.Sprintf("⏸ %s paused", label)
	case scheduler.EventResumed:
		return fmt.Sprintf("▶️ %s resumed", label)
	default:
		return fmt.Sprintf("%s: %s", typ, label)
	}
}

// describe renders "play 'Morning show' at 08:00 (daily)".
func describe(r action.Record) string {
	var b strings.Builder
	b.WriteString(string(r.Type))
	if t := r.ResolveTarget(); t != "" {
		fmt.Fprintf(&b, " '%s'", t)
	}
	switch {
	case r.IsDaily && r.Time != "":
		fmt.Fprintf(&b, " at %s (daily)", r.Time)
	case !r.Date.IsZero():
		fmt.Fprintf(&b, " at %s", r.Date.Format("2006-01-02 15:04:05 MST"))
	}
	if r.ID != "" {
		fmt.Fprintf(&b, " [%s]", r.ID)
	}
	return b.String()
}
