package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"playcue/internal/action"
	"playcue/internal/clock"
	"playcue/internal/eventbus"
	logx "playcue/pkg/logx"
)

var t0 = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

type memStore struct {
	mu        sync.Mutex
	recs      map[string]action.Record
	state     action.RecoveryState
	getErr    error
	deleteErr error
	saves     int
}

func newMemStore(recs ...action.Record) *memStore {
	s := &memStore{recs: map[string]action.Record{}}
	for _, r := range recs {
		s.recs[r.ID] = r
	}
	return s
}

func (s *memStore) ListActive(context.Context) ([]action.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []action.Record
	for _, r := range s.recs {
		if r.IsActive {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memStore) Get(_ context.Context, id string) (action.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return action.Record{}, s.getErr
	}
	r, ok := s.recs[id]
	if !ok {
		return action.Record{}, action.ErrNotFound
	}
	return r, nil
}

func (s *memStore) Patch(_ context.Context, id string, p action.Patch) (action.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.recs[id]
	if !ok {
		return action.Record{}, action.ErrNotFound
	}
	r = p.Apply(r)
	s.recs[id] = r
	return r, nil
}

func (s *memStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteErr != nil {
		return s.deleteErr
	}
	if _, ok := s.recs[id]; !ok {
		return action.ErrNotFound
	}
	delete(s.recs, id)
	return nil
}

func (s *memStore) LoadRecoveryState(context.Context) (action.RecoveryState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, nil
}

func (s *memStore) SaveRecoveryState(_ context.Context, st action.RecoveryState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st
	s.saves++
	return nil
}

func (s *memStore) record(t *testing.T, id string) action.Record {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.recs[id]
	if !ok {
		t.Fatalf("record %q missing from store", id)
	}
	return r
}

type sinkCall struct {
	Type   action.Type
	Target string
	At     time.Time
}

type sinkStep struct {
	res   action.Result
	err   error
	panic bool
}

// scriptSink replays steps in order and succeeds once they run out.
type scriptSink struct {
	mu    sync.Mutex
	clk   clock.Clock
	steps []sinkStep
	fail  bool // fail every call regardless of steps
	calls []sinkCall
}

func (s *scriptSink) Control(_ context.Context, typ action.Type, target string) (action.Result, error) {
	s.mu.Lock()
	s.calls = append(s.calls, sinkCall{Type: typ, Target: target, At: s.clk.Now()})
	var st sinkStep
	switch {
	case s.fail:
		st = sinkStep{res: action.Result{Success: false, Message: "player offline"}}
	case len(s.steps) > 0:
		st = s.steps[0]
		s.steps = s.steps[1:]
	default:
		st = sinkStep{res: action.Result{Success: true, Message: "ok"}}
	}
	s.mu.Unlock()
	if st.panic {
		panic("player exploded")
	}
	return st.res, st.err
}

func (s *scriptSink) Calls() []sinkCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sinkCall(nil), s.calls...)
}

type recBus struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (b *recBus) Publish(e eventbus.Event) {
	b.mu.Lock()
	b.events = append(b.events, e)
	b.mu.Unlock()
}

func (b *recBus) Subscribe(int) (<-chan eventbus.Event, func()) {
	ch := make(chan eventbus.Event)
	close(ch)
	return ch, func() {}
}

func (b *recBus) Types() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.events))
	for _, e := range b.events {
		out = append(out, e.Type)
	}
	return out
}

func (b *recBus) Count(typ string) int {
	n := 0
	for _, t := range b.Types() {
		if t == typ {
			n++
		}
	}
	return n
}

type harness struct {
	eng   *Engine
	clk   *clock.Fake
	store *memStore
	sink  *scriptSink
	bus   *recBus
}

func newHarness(t *testing.T, cfg Config, recs ...action.Record) *harness {
	t.Helper()
	if cfg.Timezone == "" {
		cfg.Timezone = "UTC"
	}
	clk := clock.NewFake(t0)
	h := &harness{
		clk:   clk,
		store: newMemStore(recs...),
		sink:  &scriptSink{clk: clk},
		bus:   &recBus{},
	}
	h.eng = New(cfg, Deps{Store: h.store, Sink: h.sink, Bus: h.bus, Clock: clk, Log: logx.Nop()})
	return h
}

func daily(id, at string) action.Record {
	return action.Record{ID: id, Type: action.Play, Time: at, IsDaily: true, IsActive: true, EventName: "Morning Mass"}
}

func once(id string, at time.Time) action.Record {
	return action.Record{ID: id, Type: action.Stop, Date: at, IsActive: true}
}

var errBoom = errors.New("boom")
