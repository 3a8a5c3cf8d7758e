package scheduler

import (
	"errors"
	"testing"
	"time"

	"playcue/internal/action"
)

func TestArmDailyUsesNextOccurrence(t *testing.T) {
	h := newHarness(t, Config{})
	if err := h.eng.Arm(daily("a", "14:30:00")); err != nil {
		t.Fatalf("arm: %v", err)
	}
	ents := h.eng.Entries()
	if len(ents) != 1 {
		t.Fatalf("entries=%d", len(ents))
	}
	want := time.Date(2024, 1, 1, 14, 30, 0, 0, time.UTC)
	if !ents[0].ScheduledTime.Equal(want) || ents[0].Kind != KindDaily {
		t.Fatalf("unexpected entry: %+v", ents[0])
	}
}

func TestArmDailyFallsBackOnUnknownZone(t *testing.T) {
	h := newHarness(t, Config{})
	rec := daily("a", "14:30")
	rec.Timezone = "Mars/Olympus_Mons"
	if err := h.eng.Arm(rec); err != nil {
		t.Fatalf("arm: %v", err)
	}
	want := time.Date(2024, 1, 1, 14, 30, 0, 0, time.UTC)
	if got := h.eng.Entries()[0].ScheduledTime; !got.Equal(want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestArmOneTimeInPastIsSkipped(t *testing.T) {
	h := newHarness(t, Config{})
	if err := h.eng.Arm(once("a", t0.Add(-5*time.Second))); err != nil {
		t.Fatalf("arm: %v", err)
	}
	hl := h.eng.Health()
	if hl.RegistrySize != 0 || hl.ActiveCount != 0 {
		t.Fatalf("past action armed: %+v", hl)
	}
	h.clk.Advance(time.Hour)
	if n := len(h.sink.Calls()); n != 0 {
		t.Fatalf("sink called %d times", n)
	}
}

func TestArmRejectsMalformed(t *testing.T) {
	h := newHarness(t, Config{})

	cases := []struct {
		rec  action.Record
		want error
	}{
		{action.Record{Type: action.Play, IsDaily: true, Time: "08:00", IsActive: true}, ErrMissingID},
		{action.Record{ID: "a", Type: action.Play, IsDaily: true, Time: "25:00", IsActive: true}, action.ErrInvalidTime},
		{action.Record{ID: "b", Type: action.Stop, IsActive: true}, ErrMissingDate},
	}
	for _, tc := range cases {
		if err := h.eng.Arm(tc.rec); !errors.Is(err, tc.want) {
			t.Fatalf("arm %+v: got %v want %v", tc.rec, err, tc.want)
		}
	}
	if n := h.eng.Health().RegistrySize; n != 0 {
		t.Fatalf("registry=%d", n)
	}
}

func TestRearmKeepsOneEntryPerAction(t *testing.T) {
	h := newHarness(t, Config{})
	for i := 0; i < 3; i++ {
		if err := h.eng.Arm(daily("a", "14:30")); err != nil {
			t.Fatalf("arm: %v", err)
		}
	}
	if err := h.eng.Arm(once("b", t0.Add(time.Minute))); err != nil {
		t.Fatalf("arm: %v", err)
	}
	hl := h.eng.Health()
	if hl.RegistrySize != 2 || hl.ActiveCount != 2 || len(h.eng.Entries()) != hl.RegistrySize {
		t.Fatalf("unexpected health: %+v", hl)
	}
	if p := h.clk.Pending(); len(p) != 2 {
		t.Fatalf("pending timers=%d, want 2", len(p))
	}

	inactive := daily("a", "14:30")
	inactive.IsActive = false
	if err := h.eng.Arm(inactive); err != nil {
		t.Fatalf("arm inactive: %v", err)
	}
	if hl := h.eng.Health(); hl.RegistrySize != 1 || hl.ActiveCount != 1 {
		t.Fatalf("inactive record should disarm: %+v", hl)
	}
}

func TestDisarmCancelsTimers(t *testing.T) {
	h := newHarness(t, Config{})
	_ = h.eng.Arm(daily("a", "14:30"))
	if n := h.eng.Disarm("a"); n != 1 {
		t.Fatalf("disarmed %d", n)
	}
	if n := h.eng.Disarm("a"); n != 0 {
		t.Fatalf("second disarm cancelled %d", n)
	}
	h.clk.Advance(48 * time.Hour)
	if len(h.sink.Calls()) != 0 || len(h.clk.Pending()) != 0 {
		t.Fatal("disarmed action still fired")
	}
}

func TestPauseThenResumeRestoresSchedule(t *testing.T) {
	rec := daily("a", "14:30:00")
	h := newHarness(t, Config{}, rec)
	_ = h.eng.Arm(rec)
	before := h.eng.Entries()[0].ScheduledTime

	if err := h.eng.Pause(t.Context(), "a"); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if h.store.record(t, "a").IsActive {
		t.Fatal("store still active after pause")
	}
	if n := h.eng.Health().RegistrySize; n != 0 {
		t.Fatalf("registry=%d after pause", n)
	}

	if err := h.eng.Resume(t.Context(), "a"); err != nil {
		t.Fatalf("resume: %v", err)
	}
	ents := h.eng.Entries()
	if len(ents) != 1 || !ents[0].ScheduledTime.Equal(before) {
		t.Fatalf("resume armed %+v, want scheduled %v", ents, before)
	}
	if h.bus.Count(EventPaused) != 1 || h.bus.Count(EventResumed) != 1 {
		t.Fatalf("events: %v", h.bus.Types())
	}
}

func TestPauseUnknownActionReturnsError(t *testing.T) {
	h := newHarness(t, Config{})
	if err := h.eng.Pause(t.Context(), "ghost"); !errors.Is(err, action.ErrNotFound) {
		t.Fatalf("got %v", err)
	}
}

func TestRemoveCleansUpEvenWhenDeleteFails(t *testing.T) {
	rec := daily("a", "14:30")
	h := newHarness(t, Config{}, rec)
	h.store.deleteErr = errBoom
	_ = h.eng.Arm(rec)

	err := h.eng.Remove(t.Context(), "a")
	if !errors.Is(err, errBoom) {
		t.Fatalf("got %v", err)
	}
	if hl := h.eng.Health(); hl.RegistrySize != 0 || hl.ActiveCount != 0 {
		t.Fatalf("local state left behind: %+v", hl)
	}
	if h.bus.Count(EventRemoved) != 1 {
		t.Fatalf("events: %v", h.bus.Types())
	}
}

func TestRemoveDeletesRecord(t *testing.T) {
	rec := once("a", t0.Add(time.Minute))
	h := newHarness(t, Config{}, rec)
	_ = h.eng.Arm(rec)
	if err := h.eng.Remove(t.Context(), "a"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := h.store.Get(t.Context(), "a"); !errors.Is(err, action.ErrNotFound) {
		t.Fatalf("record still stored: %v", err)
	}
	h.clk.Advance(time.Hour)
	if len(h.sink.Calls()) != 0 {
		t.Fatal("removed action fired")
	}
}
