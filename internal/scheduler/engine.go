package scheduler

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"playcue/internal/action"
	"playcue/internal/clock"
	"playcue/internal/eventbus"
	"playcue/internal/retry"
	logx "playcue/pkg/logx"
)

type Engine struct {
	store Store
	sink  Sink
	bus   eventbus.Bus
	clock clock.Clock
	log   logx.Logger

	mu          sync.Mutex
	cfg         Config
	loc         *time.Location
	policy      retry.Policy
	entries     map[string]*entry        // registry id -> entry
	active      map[string]action.Record // action id -> armed record
	state       action.RecoveryState
	missed      []Missed
	initialized bool
	startedAt   time.Time
	runCtx      context.Context
	cron        *cron.Cron

	// serializes SaveRecoveryState calls so older snapshots never win
	stateMu sync.Mutex
}

func New(cfg Config, deps Deps) *Engine {
	e := &Engine{
		store:   deps.Store,
		sink:    deps.Sink,
		bus:     deps.Bus,
		clock:   deps.Clock,
		log:     deps.Log,
		entries: map[string]*entry{},
		active:  map[string]action.Record{},
		runCtx:  context.Background(),
	}
	if e.clock == nil {
		e.clock = clock.Real()
	}
	if e.bus == nil {
		e.bus = eventbus.Nop{}
	}
	if e.log.IsZero() {
		e.log = logx.Nop()
	}
	e.log = e.log.With(logx.String("comp", "scheduler"))
	e.startedAt = e.clock.Now()
	e.applyLocked(cfg)
	return e
}

// Apply swaps the engine config. It reports whether armed entries should be
// rebuilt (the default zone changed); the caller decides when to Initialize.
func (e *Engine) Apply(cfg Config) (rearm bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	prev := e.cfg
	e.applyLocked(cfg)
	if e.cron != nil && prev.CleanupInterval != e.cfg.CleanupInterval {
		e.restartCronLocked()
	}
	return prev.Timezone != e.cfg.Timezone
}

func (e *Engine) applyLocked(cfg Config) {
	e.cfg = cfg.withDefaults()
	e.policy = retry.Policy{Base: e.cfg.RetryBase, MaxDelay: e.cfg.RetryMaxDelay}
	e.loc = e.loadDefaultLocation(e.cfg.Timezone)
}

func (e *Engine) loadDefaultLocation(tz string) *time.Location {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		e.log.Warn("invalid timezone; falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

// locationLocked resolves the zone a daily record is projected into.
func (e *Engine) locationLocked(rec action.Record) *time.Location {
	tz := strings.TrimSpace(rec.Timezone)
	if tz == "" {
		return e.loc
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		e.log.Warn("invalid action timezone; using default",
			logx.String("action_id", rec.ID), logx.String("tz", tz), logx.String("default", e.loc.String()), logx.Err(err))
		return e.loc
	}
	return loc
}

// Start begins the periodic stale-entry sweep. Timer callbacks run with ctx
// from now on.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.runCtx = ctx
	if e.cron != nil {
		return
	}
	e.restartCronLocked()
}

func (e *Engine) restartCronLocked() {
	if e.cron != nil {
		e.cron.Stop()
	}
	c := cron.New(
		cron.WithLocation(e.loc),
		cron.WithChain(cron.Recover(cronLogger{log: e.log}), cron.SkipIfStillRunning(cronLogger{log: e.log})),
	)
	c.Schedule(cron.Every(e.cfg.CleanupInterval), cron.FuncJob(func() { e.Sweep() }))
	c.Start()
	e.cron = c
	e.log.Debug("cleanup sweep started", logx.Duration("every", e.cfg.CleanupInterval), logx.Duration("stale_after", e.cfg.StaleAfter))
}

// Stop halts the sweep and disarms everything. In-flight player calls are
// not interrupted.
func (e *Engine) Stop(ctx context.Context) {
	e.mu.Lock()
	c := e.cron
	e.cron = nil
	e.mu.Unlock()

	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
		}
	}
	e.ClearAll()
}

// Initialize loads every active action, reports actions missed while the
// process was down and arms one entry per action. Calling it again rebuilds
// the registry from scratch.
func (e *Engine) Initialize(ctx context.Context) error {
	recs, err := e.store.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("load active actions: %w", err)
	}
	state, err := e.store.LoadRecoveryState(ctx)
	if err != nil {
		e.log.Warn("recovery state unavailable; starting fresh", logx.Err(err))
		state = action.RecoveryState{}
	}

	now := e.clock.Now()
	chains := e.clearKeepingChains()

	e.mu.Lock()
	lastRunAfter, downtimeAfter := e.cfg.MissedLastRunAfter, e.cfg.MissedDowntimeAfter
	e.mu.Unlock()
	missed := DetectMissed(recs, state.LastInitialization, now, lastRunAfter, downtimeAfter)

	sum := InitSummary{Loaded: len(recs), Missed: len(missed)}
	if !state.LastInitialization.IsZero() {
		sum.Downtime = now.Sub(state.LastInitialization)
	}
	for _, rec := range recs {
		e.mu.Lock()
		carry := chains[rec.ID]
		delete(chains, rec.ID)
		if carry != nil && e.entries[carry.registryID] != carry {
			// Disarmed or re-armed by a concurrent call.
			carry = nil
		}
		e.disarmExceptLocked(rec.ID, carry)
		delete(e.active, rec.ID)
		err := e.armLocked(rec, carry)
		if err != nil && carry != nil {
			chains[rec.ID] = carry
		}
		e.mu.Unlock()
		if err != nil {
			sum.Rejected++
			e.log.Warn("action rejected", logx.String("action_id", rec.ID), logx.Err(err))
		}
	}
	e.dropChains(ctx, chains)

	state.LastInitialization = now
	e.mu.Lock()
	state.ExhaustedIDs = mergeIDs(state.ExhaustedIDs, e.state.ExhaustedIDs)
	e.state = state
	e.missed = missed
	e.initialized = true
	sum.Armed = len(e.entries)
	e.mu.Unlock()

	e.saveState(ctx)

	for _, m := range missed {
		e.log.Warn("daily action missed during downtime; not replaying",
			logx.String("action_id", m.Action.ID), logx.Duration("since_last_run", m.SinceLastRun), logx.Duration("downtime", m.Downtime))
		e.publish(EventMissed, ActionEvent{Action: m.Action})
	}
	e.publish(EventInitialized, sum)
	e.log.Info("scheduler initialized",
		logx.Int("loaded", sum.Loaded), logx.Int("armed", sum.Armed), logx.Int("rejected", sum.Rejected), logx.Int("missed", sum.Missed))
	return nil
}

// clearKeepingChains is ClearAll for re-initialization: entries whose retry
// chain is still in flight stay registered (their timers are cancelled) and
// are returned by action id so the chain can continue on the new arming.
func (e *Engine) clearKeepingChains() map[string]*entry {
	e.mu.Lock()
	defer e.mu.Unlock()
	chains := map[string]*entry{}
	var stale []*entry
	for _, ent := range e.entries {
		if ent.running || ent.retry != nil {
			clock.Cancel(ent.timer)
			clock.Cancel(ent.repeat)
			ent.timer, ent.repeat = nil, nil
			chains[ent.actionID] = ent
			continue
		}
		ent.active = false
		stale = append(stale, ent)
	}
	for _, ent := range stale {
		e.retireLocked(ent)
	}
	e.active = map[string]action.Record{}
	return chains
}

// dropChains ends retry chains whose action is no longer armable and
// reports them as final failures. An attempt still running reports when it
// returns, unless it succeeds.
func (e *Engine) dropChains(ctx context.Context, chains map[string]*entry) {
	type pending struct {
		rec      action.Record
		failures int
	}
	var final []pending
	e.mu.Lock()
	for id, ent := range chains {
		if e.entries[ent.registryID] != ent {
			continue
		}
		if ent.retry != nil {
			final = append(final, pending{rec: ent.chainRec, failures: ent.chainFailures})
		}
		ent.dropped = true
		ent.active = false
		e.retireLocked(ent)
		delete(e.active, id)
	}
	e.mu.Unlock()

	for _, p := range final {
		if p.rec.ID == "" {
			continue
		}
		e.exhausted(ctx, p.rec, action.Result{}, ErrChainDropped, p.failures)
	}
}

// ClearAll disarms every entry and forgets every armed action.
func (e *Engine) ClearAll() {
	e.mu.Lock()
	defer e.mu.Unlock()
	all := make([]*entry, 0, len(e.entries))
	for _, ent := range e.entries {
		ent.active = false
		all = append(all, ent)
	}
	for _, ent := range all {
		e.retireLocked(ent)
	}
	e.active = map[string]action.Record{}
}

func (e *Engine) Health() Health {
	e.mu.Lock()
	defer e.mu.Unlock()
	running := 0
	for _, ent := range e.entries {
		if ent.running {
			running++
		}
	}
	return Health{
		Initialized:        e.initialized,
		ActiveCount:        len(e.active),
		RegistrySize:       len(e.entries),
		ExhaustedCount:     len(e.state.ExhaustedIDs),
		MissedCount:        len(e.missed),
		Running:            running,
		Uptime:             e.clock.Now().Sub(e.startedAt),
		LastInitialization: e.state.LastInitialization,
		Timezone:           e.loc.String(),
	}
}

// Entries returns the live registry ordered by scheduled time.
func (e *Engine) Entries() []EntryInfo {
	e.mu.Lock()
	out := make([]EntryInfo, 0, len(e.entries))
	for _, ent := range e.entries {
		out = append(out, EntryInfo{
			RegistryID:    ent.registryID,
			ActionID:      ent.actionID,
			Kind:          ent.kind,
			ScheduledTime: ent.scheduledTime,
			Running:       ent.running,
			RetryPending:  ent.retry != nil,
			Fired:         ent.fired,
		})
	}
	e.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].ScheduledTime.Equal(out[j].ScheduledTime) {
			return out[i].ActionID < out[j].ActionID
		}
		return out[i].ScheduledTime.Before(out[j].ScheduledTime)
	})
	return out
}

// Missed returns the actions reported by the last Initialize.
func (e *Engine) Missed() []Missed {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Missed(nil), e.missed...)
}

// Exhausted returns the ids that ran out of retries.
func (e *Engine) Exhausted() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.state.ExhaustedIDs...)
}

func (e *Engine) newEntryLocked(actionID string, kind Kind, at time.Time) *entry {
	ent := &entry{
		registryID:    uuid.NewString(),
		actionID:      actionID,
		kind:          kind,
		scheduledTime: at,
		active:        true,
	}
	e.entries[ent.registryID] = ent
	return ent
}

// retireLocked cancels every handle of ent and drops it from the registry.
// Callers clear ent.active first.
func (e *Engine) retireLocked(ent *entry) {
	ent.active = false
	clock.Cancel(ent.timer)
	clock.Cancel(ent.repeat)
	clock.Cancel(ent.retry)
	ent.timer, ent.repeat, ent.retry = nil, nil, nil
	delete(e.entries, ent.registryID)
}

func (e *Engine) saveState(ctx context.Context) {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()

	e.mu.Lock()
	st := action.RecoveryState{
		LastInitialization: e.state.LastInitialization,
		ExhaustedIDs:       append([]string(nil), e.state.ExhaustedIDs...),
	}
	e.mu.Unlock()

	if err := e.store.SaveRecoveryState(ctx, st); err != nil {
		e.log.Warn("persist recovery state failed", logx.Err(err))
	}
}

func (e *Engine) publish(typ string, data any) {
	e.bus.Publish(eventbus.Event{Type: typ, Time: e.clock.Now(), Data: data})
}

func mergeIDs(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, id := range list {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

// cronLogger adapts logx to cron.Logger for the sweep job chain.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...interface{}) {
	l.log.Debug("cron: "+msg, logx.Any("kv", kv))
}

func (l cronLogger) Error(err error, msg string, kv ...interface{}) {
	l.log.Error("cron: "+msg, logx.Err(err), logx.Any("kv", kv))
}
