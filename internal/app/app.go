// Package app wires config, storage, player, scheduler engine, notifier and
// debug server into the playcued daemon and owns their lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"playcue/internal/config"
	"playcue/internal/eventbus"
	"playcue/internal/notifier"
	"playcue/internal/observability/pprof"
	"playcue/internal/player"
	rtsup "playcue/internal/runtime/supervisor"
	"playcue/internal/scheduler"
	"playcue/internal/storage"
	logx "playcue/pkg/logx"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  *eventbus.MemBus

	store  storage.Store
	player player.Controller
	engine *scheduler.Engine

	notif *notifier.Service
	pprof *pprof.Service

	sinksMu     sync.Mutex
	sinksCloser io.Closer

	stopOnce sync.Once
	stopErr  error
}

// Status is served on /health.
type Status struct {
	Scheduler   scheduler.Health          `json:"scheduler"`
	Exhausted   []string                  `json:"exhausted,omitempty"`
	Missed      []scheduler.Missed        `json:"missed,omitempty"`
	Bus         eventbus.Stats            `json:"bus"`
	Notifier    int                       `json:"notifications_sent"`
	Supervisors map[string]rtsup.Snapshot `json:"supervisors"`
	Entries     []scheduler.EntryInfo     `json:"entries,omitempty"`
}

// New loads the config at cfgPath and builds every component without
// starting background work.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return newApp(cfgm, cfg)
}

func newApp(cfgm *config.ConfigManager, cfg *config.Config) (*App, error) {
	logs, root := logx.New(mapLoggingConfig(cfg))
	log := root.With(logx.String("comp", "app"))
	bus := eventbus.New()

	store, err := storage.Open(mapStorageConfig(cfg), root.With(logx.String("comp", "storage")))
	if err != nil {
		_ = logs.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}

	ctrl, err := player.Open(mapPlayerConfig(cfg), root.With(logx.String("comp", "player")))
	if err != nil {
		_ = store.Close()
		_ = logs.Close()
		return nil, fmt.Errorf("open player: %w", err)
	}

	eng := scheduler.New(mapSchedulerConfig(cfg), scheduler.Deps{
		Store: store,
		Sink:  ctrl,
		Bus:   bus,
		Log:   root,
	})

	ncfg := mapNotifierConfig(cfg)
	sinks, closer, err := notifier.OpenSinks(ncfg)
	if err != nil {
		_ = store.Close()
		_ = logs.Close()
		return nil, fmt.Errorf("open notifier sinks: %w", err)
	}
	notif := notifier.New(ncfg, sinks, root.With(logx.String("comp", "notifier")), bus)

	a := &App{
		cfgm:        cfgm,
		log:         log,
		logs:        logs,
		bus:         bus,
		store:       store,
		player:      ctrl,
		engine:      eng,
		notif:       notif,
		sinksCloser: closer,
		pprof:       pprof.New(mapPprofConfig(cfg), root.With(logx.String("comp", "pprof"))),
	}
	a.pprof.SetHealth(func() any { return a.Status() })
	return a, nil
}

func (a *App) Engine() *scheduler.Engine { return a.engine }

func (a *App) Store() storage.Store { return a.store }

// Done is closed when the app supervisor context is canceled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Status() Status {
	st := Status{
		Scheduler: a.engine.Health(),
		Exhausted: a.engine.Exhausted(),
		Missed:    a.engine.Missed(),
		Bus:       a.bus.Stats(),
		Notifier:  len(a.notif.Snapshot()),
		Entries:   a.engine.Entries(),
		Supervisors: map[string]rtsup.Snapshot{
			"app": a.sup.Snapshot(),
		},
	}
	if s := a.notif.Supervisor(); s != nil {
		st.Supervisors["notifier"] = s.Snapshot()
	}
	if s := a.pprof.Supervisor(); s != nil {
		st.Supervisors["pprof"] = s.Snapshot()
	}
	return st
}

// Start initializes the engine from storage and launches background loops.
// An initialization failure is returned and nothing keeps running.
func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.NewSupervisor(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	runCtx := a.sup.Context()

	// Notifier first so the initialization events reach operators.
	a.notif.Start(runCtx)
	a.engine.Start(runCtx)
	if err := a.engine.Initialize(ctx); err != nil {
		a.sup.Cancel()
		a.notif.Stop(context.Background())
		a.engine.Stop(context.Background())
		return err
	}
	a.pprof.Start(runCtx)

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		a.logEvents(c, events)
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})
	a.sup.Go0("systemd.watchdog", func(c context.Context) {
		watchdogLoop(c, a.log, func() bool { return a.engine.Health().Initialized })
	})

	sdNotify(a.log, daemon.SdNotifyReady)
	h := a.engine.Health()
	a.log.Info("playcued started",
		logx.String("config", a.cfgm.Path()),
		logx.Int("active", h.ActiveCount),
		logx.String("timezone", h.Timezone),
	)
	return nil
}

// Reload re-reads the config file and rehydrates the engine from storage.
// It backs SIGHUP, so a host that edited actions can ask for a rescan.
func (a *App) Reload(ctx context.Context) error {
	sdNotify(a.log, daemon.SdNotifyReloading)
	defer sdNotify(a.log, daemon.SdNotifyReady)

	var errs []error
	if _, err := a.cfgm.Reload(ctx); err != nil {
		errs = append(errs, fmt.Errorf("config: %w", err))
	}
	if err := a.engine.Initialize(ctx); err != nil {
		errs = append(errs, fmt.Errorf("scheduler: %w", err))
	}
	err := errors.Join(errs...)
	if err != nil {
		a.log.Warn("reload incomplete", logx.Err(err))
	}
	return err
}

func (a *App) logEvents(ctx context.Context, events <-chan eventbus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			fields := []logx.Field{logx.String("type", e.Type), logx.Time("time", e.Time)}
			if ae, ok := e.Data.(scheduler.ActionEvent); ok {
				fields = append(fields, logx.String("action_id", ae.Action.ID), logx.Int("attempts", ae.Attempts))
			}
			a.log.Debug("event", fields...)
		}
	}
}

func (a *App) reloadLoop(ctx context.Context, sub <-chan *config.Config) {
	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config.
			for drained := false; !drained; {
				select {
				case newer := <-sub:
					if newer != nil {
						cfg = newer
					}
				default:
					drained = true
				}
			}
			a.applyConfig(ctx, last, cfg)
			last = cfg
		}
	}
}

func (a *App) applyConfig(ctx context.Context, prev, cfg *config.Config) {
	change := config.SummarizeConfigChange(prev, cfg)
	if len(change.Sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	if len(change.RestartRequired) > 0 {
		a.log.Warn("config sections changed that need a restart", logx.Strings("sections", change.RestartRequired))
	}

	if change.Has("logging") {
		a.logs.Apply(mapLoggingConfig(cfg))
	}

	if change.Has("scheduler") && a.engine.Apply(mapSchedulerConfig(cfg)) {
		a.log.Info("scheduler timezone changed; re-arming")
		if err := a.engine.Initialize(ctx); err != nil {
			a.log.Error("re-arm after timezone change failed", logx.Err(err))
		}
	}

	if change.Has("notifier") {
		a.applyNotifier(ctx, prev, cfg)
	}

	if change.Has("pprof") {
		a.pprof.Reconfigure(ctx, mapPprofConfig(cfg))
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(change.Sections, ","))}, change.Fields...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) applyNotifier(ctx context.Context, prev, cfg *config.Config) {
	ncfg := mapNotifierConfig(cfg)
	if !reflect.DeepEqual(prev.Notifier.Telegram, cfg.Notifier.Telegram) || !reflect.DeepEqual(prev.Notifier.Redis, cfg.Notifier.Redis) {
		sinks, closer, err := notifier.OpenSinks(ncfg)
		if err != nil {
			a.log.Warn("invalid notifier sinks; keeping previous", logx.Err(err))
			return
		}
		a.notif.SetSinks(sinks)
		if err := a.swapSinksCloser(closer); err != nil {
			a.log.Warn("closing previous notifier sinks failed", logx.Err(err))
		}
	}

	wasEnabled := a.notif.Enabled()
	a.notif.Apply(ncfg)
	switch {
	case wasEnabled && !ncfg.Enabled:
		a.log.Info("notifier disabled via config")
		stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		a.notif.Stop(stopCtx)
		cancel()
	case !wasEnabled && ncfg.Enabled:
		a.log.Info("notifier enabled via config")
		a.notif.Start(ctx)
	}
}

// swapSinksCloser installs next and closes the previous sink clients.
func (a *App) swapSinksCloser(next io.Closer) error {
	a.sinksMu.Lock()
	prev := a.sinksCloser
	a.sinksCloser = next
	a.sinksMu.Unlock()
	if prev == nil {
		return nil
	}
	return prev.Close()
}

// Stop shuts components down in dependency order. Only the first call does
// any work; an app that never started just releases its resources.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	a.stopOnce.Do(func() { a.stopErr = a.stop(ctx, reason) })
	return a.stopErr
}

func (a *App) stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		_ = a.swapSinksCloser(nil)
		_ = a.store.Close()
		return a.logs.Close()
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	sdNotify(a.log, daemon.SdNotifyStopping)
	a.sup.Cancel()

	a.step(ctx, "scheduler", 3*time.Second, func(c context.Context) error { a.engine.Stop(c); return nil })
	a.step(ctx, "pprof", time.Second, func(c context.Context) error { a.pprof.Stop(c); return nil })
	a.step(ctx, "notifier", 2*time.Second, func(c context.Context) error {
		a.notif.Stop(c)
		return a.swapSinksCloser(nil)
	})
	a.step(ctx, "storage", time.Second, func(c context.Context) error { return a.store.Close() })
	a.step(ctx, "supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	return a.logs.Close()
}

// step runs one shutdown step bounded by max and by the caller's deadline.
func (a *App) step(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) {
	start := time.Now()
	stepCtx, cancel := context.WithTimeout(ctx, max)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
	}
}
