package notifier

import (
	"strings"
	"testing"
	"time"

	"playcue/internal/action"
	"playcue/internal/eventbus"
	"playcue/internal/scheduler"
)

func TestFormat(t *testing.T) {
	t.Parallel()
	daily := action.Record{ID: "d1", Type: action.Play, Time: "08:00", IsDaily: true, EventName: "Morning show"}
	once := action.Record{ID: "o1", Type: action.Stop, Date: time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC)}

	tests := []struct {
		name string
		ev   eventbus.Event
		want []string
	}{
		{
			name: "executed",
			ev:   eventbus.Event{Type: scheduler.EventExecuted, Data: scheduler.ActionEvent{Action: daily, Result: &action.Result{Success: true, Message: "ok"}, Attempts: 1}},
			want: []string{"play 'Morning show' at 08:00 (daily)", "executed: ok", "[d1]"},
		},
		{
			name: "executed after retries",
			ev:   eventbus.Event{Type: scheduler.EventExecuted, Data: scheduler.ActionEvent{Action: daily, Attempts: 3}},
			want: []string{"after 3 attempts"},
		},
		{
			name: "retry",
			ev:   eventbus.Event{Type: scheduler.EventRetry, Data: &scheduler.ActionEvent{Action: once, Attempts: 1, RetryIn: time.Second, Error: "player down"}},
			want: []string{"stop at 2024-01-01 09:30:00 UTC", "retrying in 1s", "player down"},
		},
		{
			name: "failed",
			ev:   eventbus.Event{Type: scheduler.EventFailed, Data: scheduler.ActionEvent{Action: once, Attempts: 3, Error: "boom"}},
			want: []string{"failed after 3 attempts: boom"},
		},
		{
			name: "missed",
			ev:   eventbus.Event{Type: scheduler.EventMissed, Data: scheduler.ActionEvent{Action: daily}},
			want: []string{"missed"},
		},
		{
			name: "initialized",
			ev:   eventbus.Event{Type: scheduler.EventInitialized, Data: scheduler.InitSummary{Loaded: 4, Armed: 3, Rejected: 1, Downtime: 90 * time.Minute}},
			want: []string{"4 loaded", "3 armed", "1 rejected", "down 1h30m0s"},
		},
		{
			name: "unknown payload",
			ev:   eventbus.Event{Type: "action.custom", Data: 42},
			want: []string{"action.custom"},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			n, ok := Format(tt.ev)
			if !ok {
				t.Fatal("not formatted")
			}
			if n.Type != tt.ev.Type || n.At.IsZero() {
				t.Fatalf("bad envelope %+v", n)
			}
			for _, w := range tt.want {
				if !strings.Contains(n.Text, w) {
					t.Fatalf("text %q missing %q", n.Text, w)
				}
			}
		})
	}
}

func TestFormatRejectsEmptyType(t *testing.T) {
	t.Parallel()
	if _, ok := Format(eventbus.Event{}); ok {
		t.Fatal("empty event formatted")
	}
}
