package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"playcue/internal/action"
	"playcue/internal/config"
)

const testConfig = `{
  "logging": {"level": "error", "console": false},
  "scheduler": {"timezone": "UTC", "max_retries": 2, "retry_base": "10ms"},
  "storage": {"driver": "memory"},
  "player": {"driver": "noop"},
  "notifier": {"enabled": false}
}`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestAppStartReloadStop(t *testing.T) {
	a, err := New(writeConfig(t, testConfig))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	st := a.Status()
	if !st.Scheduler.Initialized {
		t.Fatalf("engine not initialized: %+v", st.Scheduler)
	}
	if st.Scheduler.ActiveCount != 0 {
		t.Fatalf("active=%d want 0", st.Scheduler.ActiveCount)
	}
	if _, ok := st.Supervisors["app"]; !ok {
		t.Fatalf("missing app supervisor snapshot: %+v", st.Supervisors)
	}

	_, err = a.Store().Create(ctx, action.Record{
		ID:       "morning",
		Type:     action.Play,
		Time:     "08:00",
		IsDaily:  true,
		IsActive: true,
		Target:   "playlist-1",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := a.Reload(ctx); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if got := a.Engine().Health().ActiveCount; got != 1 {
		t.Fatalf("active after reload=%d want 1", got)
	}

	select {
	case <-a.Done():
		t.Fatalf("app stopped unexpectedly: %v", a.Err())
	default:
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	if err := a.Stop(stopCtx, StopSIGTERM); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	select {
	case <-a.Done():
	case <-time.After(time.Second):
		t.Fatalf("Done not closed after Stop")
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, `{"logging": {"level": "loud"}, "storage": {"driver": "memory"}}`)
	if _, err := New(path); err == nil {
		t.Fatalf("expected error for invalid logging level")
	}
}

func TestStopBeforeStartIsNoop(t *testing.T) {
	t.Parallel()
	a, err := New(writeConfig(t, testConfig))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := a.Stop(context.Background(), StopUnknown); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	select {
	case <-a.Done():
	default:
		t.Fatalf("Done should be closed for an app that never started")
	}
}

func TestMapStorageConfigDefaults(t *testing.T) {
	t.Parallel()
	cases := []struct {
		driver, path string
		wantPath     string
	}{
		{"", "", "./playcue.db"},
		{"SQLite", "", "./playcue.db"},
		{"file", "", "./playcue_store"},
		{"memory", "", ""},
		{"file", " /var/lib/playcue ", "/var/lib/playcue"},
	}
	for _, tc := range cases {
		cfg := &config.Config{Storage: config.StorageConfig{Driver: tc.driver, Path: tc.path}}
		got := mapStorageConfig(cfg)
		if got.Path != tc.wantPath {
			t.Fatalf("driver=%q path=%q: got %q want %q", tc.driver, tc.path, got.Path, tc.wantPath)
		}
		if got.BusyTimeout != time.Second {
			t.Fatalf("busy timeout=%v want 1s", got.BusyTimeout)
		}
	}
}

func TestMapPlayerConfigSkipsUnknownCommands(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{Player: config.PlayerConfig{
		Driver: " exec ",
		Commands: map[string]string{
			"play":   "mpc play",
			"PAUSE":  "mpc pause",
			"rewind": "mpc seek 0",
		},
	}}
	got := mapPlayerConfig(cfg)
	if got.Driver != "exec" {
		t.Fatalf("driver=%q", got.Driver)
	}
	if len(got.Commands) != 2 || got.Commands[action.Play] != "mpc play" || got.Commands[action.Pause] != "mpc pause" {
		t.Fatalf("commands=%v", got.Commands)
	}
}

func TestMapSchedulerConfigParsesDurations(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{Scheduler: config.SchedulerConfig{
		Timezone:    " Europe/Berlin ",
		MaxRetries:  5,
		RetryBase:   "250ms",
		SinkTimeout: "3s",
	}}
	got := mapSchedulerConfig(cfg)
	if got.Timezone != "Europe/Berlin" || got.MaxRetries != 5 {
		t.Fatalf("got %+v", got)
	}
	if got.RetryBase != 250*time.Millisecond || got.SinkTimeout != 3*time.Second {
		t.Fatalf("durations: base=%v sink=%v", got.RetryBase, got.SinkTimeout)
	}
	if got.CleanupInterval != 0 {
		t.Fatalf("unset duration should stay zero, got %v", got.CleanupInterval)
	}
}
