package action

import (
	"errors"
	"testing"
	"time"
)

func TestResolveTarget(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		rec  Record
		want string
	}{
		{"explicit target wins", Record{Type: Play, Target: "lobby", EventName: "Mass"}, "lobby"},
		{"play falls back to event", Record{Type: Play, EventName: " Mass "}, "Mass"},
		{"stop ignores event", Record{Type: Stop, EventName: "Mass"}, ""},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := tc.rec.ResolveTarget(); got != tc.want {
				t.Fatalf("got %q want %q", got, tc.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	date := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	cases := []struct {
		name string
		rec  Record
		want error
	}{
		{"daily ok", Record{ID: "a", Type: Play, IsDaily: true, Time: "08:00"}, nil},
		{"once ok", Record{ID: "a", Type: Stop, Date: date}, nil},
		{"missing id", Record{Type: Play, Date: date}, ErrMissingID},
		{"bad type", Record{ID: "a", Type: "rewind", Date: date}, ErrInvalidType},
		{"bad time", Record{ID: "a", Type: Play, IsDaily: true, Time: "25:00"}, ErrInvalidTime},
		{"missing date", Record{ID: "a", Type: Pause}, ErrMissingDate},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.rec.Validate()
			if tc.want == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("got %v want %v", err, tc.want)
			}
		})
	}
}

func TestRetryLimit(t *testing.T) {
	t.Parallel()
	if got := (Record{}).RetryLimit(0); got != DefaultMaxRetries {
		t.Fatalf("got %d", got)
	}
	if got := (Record{}).RetryLimit(5); got != 5 {
		t.Fatalf("got %d", got)
	}
	if got := (Record{MaxRetries: 1}).RetryLimit(5); got != 1 {
		t.Fatalf("got %d", got)
	}
}

func TestRecoveryStateExhausted(t *testing.T) {
	t.Parallel()
	var s RecoveryState
	if !s.MarkExhausted("a") || s.MarkExhausted("a") {
		t.Fatal("MarkExhausted should add once")
	}
	s.MarkExhausted("b")
	if !s.ClearExhausted("a") || s.ClearExhausted("a") {
		t.Fatal("ClearExhausted should remove once")
	}
	if len(s.ExhaustedIDs) != 1 || s.ExhaustedIDs[0] != "b" {
		t.Fatalf("unexpected ids: %v", s.ExhaustedIDs)
	}
}

func TestPatchApply(t *testing.T) {
	t.Parallel()
	r := Record{ID: "a", IsActive: true, RetryCount: 2}
	got := Patch{IsActive: Bool(false), RetryCount: Int(0), LastRun: Int64(100)}.Apply(r)
	if got.IsActive || got.RetryCount != 0 || got.LastRun != 100 || got.NextRun != 0 {
		t.Fatalf("unexpected record: %+v", got)
	}
	if !(Patch{}).Empty() {
		t.Fatal("empty patch should be Empty")
	}
}
