package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"playcue/internal/action"
	"playcue/internal/eventbus"
	"playcue/internal/scheduler"
	logx "playcue/pkg/logx"
)

type fakeSink struct {
	name string

	mu    sync.Mutex
	got   []Notification
	calls int
	fail  int // first n calls fail
	block chan struct{}
	enter chan struct{}
}

func (f *fakeSink) Name() string { return f.name }

func (f *fakeSink) Send(ctx context.Context, n Notification) error {
	if f.enter != nil {
		select {
		case f.enter <- struct{}{}:
		default:
		}
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.fail {
		return errors.New("sink down")
	}
	f.got = append(f.got, n)
	return nil
}

func (f *fakeSink) delivered() []Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Notification(nil), f.got...)
}

func testConfig() Config {
	return Config{
		Enabled:       true,
		Workers:       1,
		QueueSize:     8,
		RatePerSec:    1000,
		RetryMax:      2,
		RetryBase:     time.Millisecond,
		RetryMaxDelay: 2 * time.Millisecond,
	}
}

func stop(t *testing.T, s *Service) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	s.Stop(ctx)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestNotifyDeliversToEverySink(t *testing.T) {
	a, b := &fakeSink{name: "a"}, &fakeSink{name: "b"}
	s := New(testConfig(), []Sink{a, b}, logx.Nop(), nil)
	s.Start(context.Background())

	if err := s.Notify(context.Background(), Notification{Type: "action.executed", Text: "hello"}); err != nil {
		t.Fatalf("notify: %v", err)
	}
	stop(t, s)

	for _, sk := range []*fakeSink{a, b} {
		got := sk.delivered()
		if len(got) != 1 || got[0].Text != "hello" || got[0].At.IsZero() {
			t.Fatalf("%s got %+v", sk.name, got)
		}
	}
	if h := s.Snapshot(); len(h) != 2 {
		t.Fatalf("history=%d, want 2", len(h))
	}
}

func TestNotifyRetriesThenPublishesFailure(t *testing.T) {
	bus := eventbus.New()
	events, unsub := bus.Subscribe(32)
	defer unsub()

	flaky := &fakeSink{name: "flaky", fail: 2}
	dead := &fakeSink{name: "dead", fail: 100}
	cfg := testConfig()
	cfg.Events = []string{"none."}
	s := New(cfg, []Sink{flaky, dead}, logx.Nop(), bus)
	s.Start(context.Background())

	if err := s.Notify(context.Background(), Notification{Type: "t", Text: "x"}); err != nil {
		t.Fatal(err)
	}
	stop(t, s)

	if got := flaky.delivered(); len(got) != 1 {
		t.Fatalf("flaky delivered %d, want 1 after retries", len(got))
	}
	dead.mu.Lock()
	calls := dead.calls
	dead.mu.Unlock()
	if calls != 3 {
		t.Fatalf("dead sink calls=%d, want 1+RetryMax", calls)
	}

	var sawFailed, sawSent bool
	for len(events) > 0 {
		ev := <-events
		switch ev.Type {
		case EventFailed:
			sawFailed = ev.Data.(NotificationEvent).Sink == "dead"
		case EventSent:
			sawSent = true
		}
	}
	if !sawFailed || !sawSent {
		t.Fatalf("sent=%v failed=%v", sawSent, sawFailed)
	}
}

func TestNotifyQueueFull(t *testing.T) {
	sk := &fakeSink{name: "slow", block: make(chan struct{}), enter: make(chan struct{}, 1)}
	cfg := testConfig()
	cfg.QueueSize = 1
	s := New(cfg, []Sink{sk}, logx.Nop(), nil)
	s.Start(context.Background())
	defer stop(t, s)
	defer close(sk.block)

	ctx := context.Background()
	if err := s.Notify(ctx, Notification{Type: "t", Text: "1"}); err != nil {
		t.Fatal(err)
	}
	<-sk.enter
	if err := s.Notify(ctx, Notification{Type: "t", Text: "2"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Notify(ctx, Notification{Type: "t", Text: "3"}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("err=%v, want ErrQueueFull", err)
	}
}

func TestNotifyDedup(t *testing.T) {
	sk := &fakeSink{name: "a"}
	cfg := testConfig()
	cfg.DedupWindow = time.Minute
	s := New(cfg, []Sink{sk}, logx.Nop(), nil)
	s.Start(context.Background())

	n := Notification{Type: "action.failed", Text: "same"}
	for i := 0; i < 3; i++ {
		if err := s.Notify(context.Background(), n); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Notify(context.Background(), Notification{Type: "action.failed", Text: "other"}); err != nil {
		t.Fatal(err)
	}
	stop(t, s)

	if got := sk.delivered(); len(got) != 2 {
		t.Fatalf("delivered %d, want 2", len(got))
	}
}

func TestNotifyStates(t *testing.T) {
	t.Parallel()
	disabled := New(Config{}, nil, logx.Nop(), nil)
	if err := disabled.Notify(context.Background(), Notification{Text: "x"}); !errors.Is(err, ErrDisabled) {
		t.Fatalf("err=%v", err)
	}
	notStarted := New(testConfig(), nil, logx.Nop(), nil)
	if err := notStarted.Notify(context.Background(), Notification{Text: "x"}); !errors.Is(err, ErrStopped) {
		t.Fatalf("err=%v", err)
	}
}

func TestBridgeForwardsSchedulerEvents(t *testing.T) {
	bus := eventbus.New()
	sk := &fakeSink{name: "a"}
	s := New(testConfig(), []Sink{sk}, logx.Nop(), bus)
	s.Start(context.Background())
	defer stop(t, s)

	waitFor(t, func() bool { return bus.Stats().Subscribers == 1 })

	rec := action.Record{ID: "a1", Type: action.Play, Time: "08:00", IsDaily: true, EventName: "Morning"}
	bus.Publish(eventbus.Event{Type: scheduler.EventExecuted, Data: scheduler.ActionEvent{Action: rec, Result: &action.Result{Success: true}, Attempts: 1}})
	bus.Publish(eventbus.Event{Type: "unrelated.thing"})

	waitFor(t, func() bool { return len(sk.delivered()) >= 1 })
	time.Sleep(20 * time.Millisecond)
	got := sk.delivered()
	if len(got) != 1 {
		t.Fatalf("delivered %d, want only the action event", len(got))
	}
	if got[0].Type != scheduler.EventExecuted {
		t.Fatalf("type=%q", got[0].Type)
	}
}

func TestRetryDelayBounds(t *testing.T) {
	t.Parallel()
	cfg := Config{RetryBase: 100 * time.Millisecond, RetryMaxDelay: time.Second}
	for attempt := 1; attempt <= 6; attempt++ {
		d := retryDelay(cfg, attempt)
		if d < 0 || d > time.Second {
			t.Fatalf("attempt %d delay %s out of bounds", attempt, d)
		}
	}
	if d := retryDelay(cfg, 1); d < 70*time.Millisecond || d > 130*time.Millisecond {
		t.Fatalf("first delay %s, want ~100ms", d)
	}
}
