package notifier

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"playcue/internal/eventbus"
	"playcue/internal/retry"
	rtsup "playcue/internal/runtime/supervisor"
	logx "playcue/pkg/logx"
)

var (
	ErrDisabled  = errors.New("notifier disabled")
	ErrQueueFull = errors.New("notifier queue full")
	ErrStopped   = errors.New("notifier stopped")
	ErrNoSinks   = errors.New("notifier has no sinks")
)

var defaultEvents = []string{"action.", "scheduler."}

type job struct {
	n        Notification
	dedupKey string
}

// Service implements the async pipeline: bus bridge, queue, worker pool,
// rate limit, retry and dedup. It is safe for concurrent use.
type Service struct {
	mu sync.Mutex

	log   logx.Logger
	bus   eventbus.Bus
	sinks []Sink

	cfg     Config
	limiter *rate.Limiter

	accepting bool
	sendWG    sync.WaitGroup

	queue        chan job
	sup          *rtsup.Supervisor
	bridgeCancel context.CancelFunc
	unsubscribe  func()
	stopDone     chan struct{} // non-nil while stopping

	dmu   sync.Mutex
	dedup map[string]time.Time

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, sinks []Sink, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		log:   log,
		bus:   bus,
		sinks: append([]Sink(nil), sinks...),
		dedup: map[string]time.Time{},
	}
	s.applyLocked(cfg)
	return s
}

// Supervisor returns the internal supervisor (nil if not started).
func (s *Service) Supervisor() *rtsup.Supervisor {
	s.mu.Lock()
	sup := s.sup
	s.mu.Unlock()
	return sup
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	en := s.cfg.Enabled
	s.mu.Unlock()
	return en
}

// Apply swaps pipeline settings. Worker count and queue size take effect on
// the next Start.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

// SetSinks replaces the delivery targets. In-flight jobs finish on the old set.
func (s *Service) SetSinks(sinks []Sink) {
	s.mu.Lock()
	s.sinks = append([]Sink(nil), sinks...)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 3
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 10 * time.Second
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if cfg.DedupWindow < 0 {
		cfg.DedupWindow = 0
	}
	if cfg.DedupMaxEntries <= 0 {
		cfg.DedupMaxEntries = 2000
	}
	if len(cfg.Events) == 0 {
		cfg.Events = defaultEvents
	}

	s.cfg = cfg
	// Burst = rate per sec, so short spikes don't block too hard.
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

// Start launches the workers and the bus bridge. It is idempotent and a no-op
// when disabled.
func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
		s.mu.Lock()
	}
	if s.queue != nil || !s.cfg.Enabled {
		s.mu.Unlock()
		return
	}

	s.queue = make(chan job, s.cfg.QueueSize)
	s.accepting = true
	workers := s.cfg.Workers

	s.sup = rtsup.NewSupervisor(ctx,
		rtsup.WithLogger(s.log),
		// Notifier failures must not take down the daemon.
		rtsup.WithCancelOnError(false),
	)
	sup := s.sup
	q := s.queue
	bctx, bcancel := context.WithCancel(sup.Context())
	s.bridgeCancel = bcancel
	// Subscribe before returning so events published right after Start are seen.
	var events <-chan eventbus.Event
	if s.bus != nil {
		events, s.unsubscribe = s.bus.Subscribe(128)
	}
	s.mu.Unlock()

	if events != nil {
		sup.GoRestart("bridge", func(context.Context) error {
			s.bridgeLoop(bctx, events)
			return context.Canceled
		}, rtsup.WithPublishFirstError(true))
	}

	for i := 0; i < workers; i++ {
		sup.GoRestart(fmt.Sprintf("worker.%d", i), func(c context.Context) error {
			s.workerLoop(c, q)
			s.mu.Lock()
			stopping := s.stopDone != nil
			s.mu.Unlock()
			if stopping {
				return context.Canceled
			}
			if c.Err() != nil {
				return c.Err()
			}
			return errors.New("notifier worker exited unexpectedly")
		}, rtsup.WithPublishFirstError(true))
	}
}

// Stop stops intake and drains the queue best-effort until ctx deadline.
func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	q := s.queue
	sup := s.sup
	bcancel := s.bridgeCancel
	unsub := s.unsubscribe
	if q == nil {
		s.mu.Unlock()
		return
	}
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}

	done := make(chan struct{})
	s.stopDone = done
	s.accepting = false
	s.mu.Unlock()

	if bcancel != nil {
		bcancel()
	}
	if unsub != nil {
		unsub()
	}

	go func() {
		defer close(done)
		// Wait for in-flight enqueues, then close the queue so workers drain.
		s.sendWG.Wait()
		close(q)
		if sup != nil {
			_ = sup.Wait(context.Background())
		}

		s.mu.Lock()
		s.queue = nil
		s.stopDone = nil
		s.sup = nil
		s.bridgeCancel = nil
		s.unsubscribe = nil
		s.mu.Unlock()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		if sup != nil {
			sup.Cancel()
		}
	}
}

// Notify enqueues n for every sink. Duplicates inside DedupWindow are
// suppressed and return nil.
func (s *Service) Notify(ctx context.Context, n Notification) error {
	if ctx != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}

	s.mu.Lock()
	if !s.cfg.Enabled {
		s.mu.Unlock()
		return ErrDisabled
	}
	if !s.accepting || s.queue == nil {
		s.mu.Unlock()
		return ErrStopped
	}
	q := s.queue
	window := s.cfg.DedupWindow
	max := s.cfg.DedupMaxEntries
	s.sendWG.Add(1)
	s.mu.Unlock()
	defer s.sendWG.Done()

	if n.At.IsZero() {
		n.At = time.Now()
	}
	key := dedupKey(n)
	if window > 0 && !s.dedupAllow(key, window, max) {
		s.publish(EventDeduped, NotificationEvent{Type: n.Type, Key: key})
		return nil
	}

	select {
	case q <- job{n: n, dedupKey: key}:
		return nil
	default:
		s.publish(EventDropped, NotificationEvent{Type: n.Type, Key: key, Error: ErrQueueFull.Error()})
		return ErrQueueFull
	}
}

func (s *Service) Snapshot() []HistoryItem {
	s.hmu.Lock()
	out := append([]HistoryItem(nil), s.history...)
	s.hmu.Unlock()
	return out
}

func (s *Service) appendHistory(sink string, n Notification) {
	s.hmu.Lock()
	s.history = append(s.history, HistoryItem{At: time.Now(), Sink: sink, Type: n.Type, Text: n.Text})
	if len(s.history) > 300 {
		s.history = s.history[len(s.history)-300:]
	}
	s.hmu.Unlock()
}

func (s *Service) publish(typ string, ev NotificationEvent) {
	if s.bus == nil {
		return
	}
	now := time.Now()
	ev.At = now
	s.bus.Publish(eventbus.Event{Type: typ, Time: now, Data: ev})
}

// bridgeLoop forwards matching bus events until ctx ends.
func (s *Service) bridgeLoop(ctx context.Context, ch <-chan eventbus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			s.mu.Lock()
			prefixes := s.cfg.Events
			s.mu.Unlock()
			if !matchesAny(ev.Type, prefixes) {
				continue
			}
			n, ok := Format(ev)
			if !ok {
				continue
			}
			if err := s.Notify(ctx, n); err != nil && !errors.Is(err, ErrStopped) && !errors.Is(err, context.Canceled) {
				s.log.Debug("notification not queued", logx.String("type", n.Type), logx.Err(err))
			}
		}
	}
}

func matchesAny(typ string, prefixes []string) bool {
	for _, p := range prefixes {
		if p == "*" || strings.HasPrefix(typ, p) {
			return true
		}
	}
	return false
}

func (s *Service) workerLoop(ctx context.Context, q <-chan job) {
	if q == nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-q:
			if !ok {
				return
			}
			s.mu.Lock()
			sinks := s.sinks
			s.mu.Unlock()
			for _, sk := range sinks {
				s.sendWithRetry(ctx, sk, j)
			}
		}
	}
}

func (s *Service) sendWithRetry(ctx context.Context, sk Sink, j job) {
	s.mu.Lock()
	cfg := s.cfg
	lim := s.limiter
	log := s.log
	s.mu.Unlock()

	maxAttempts := 1 + cfg.RetryMax
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if lim != nil {
			if err := lim.Wait(ctx); err != nil {
				return
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
		err := sk.Send(callCtx, j.n)
		cancel()
		if err == nil {
			s.appendHistory(sk.Name(), j.n)
			s.publish(EventSent, NotificationEvent{Sink: sk.Name(), Type: j.n.Type, Key: j.dedupKey})
			return
		}
		lastErr = err
		log.Debug("notify send failed", logx.String("sink", sk.Name()), logx.Err(err), logx.Int("attempt", attempt), logx.Int("max", maxAttempts))

		if attempt >= maxAttempts || retry.IsNoRetry(err) {
			break
		}

		delay := retryDelay(cfg, attempt)
		if delay <= 0 {
			continue
		}
		t := time.NewTimer(delay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return
		}
	}

	log.Warn("notification dropped after retries", logx.String("sink", sk.Name()), logx.String("type", j.n.Type), logx.Err(lastErr))
	s.publish(EventFailed, NotificationEvent{Sink: sk.Name(), Type: j.n.Type, Key: j.dedupKey, Error: lastErr.Error()})
}

func dedupKey(n Notification) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(n.Type))
	_, _ = h.Write([]byte("|"))
	_, _ = h.Write([]byte(n.Text))
	return fmt.Sprintf("%x", h.Sum64())
}

func (s *Service) dedupAllow(key string, window time.Duration, max int) bool {
	now := time.Now()

	s.dmu.Lock()
	defer s.dmu.Unlock()
	if until, ok := s.dedup[key]; ok && now.Before(until) {
		return false
	}
	s.dedup[key] = now.Add(window)

	for k, until := range s.dedup {
		if !now.Before(until) {
			delete(s.dedup, k)
		}
	}
	// Evict earliest expiry until within cap.
	for max > 0 && len(s.dedup) > max {
		var (
			minKey string
			minT   time.Time
		)
		for k, t := range s.dedup {
			if minKey == "" || t.Before(minT) {
				minKey, minT = k, t
			}
		}
		delete(s.dedup, minKey)
	}
	return true
}

// retryDelay is the wait before attempt+1: exponential with 0.7..1.3 jitter.
func retryDelay(cfg Config, attempt int) time.Duration {
	d := retry.Policy{Base: cfg.RetryBase, MaxDelay: cfg.RetryMaxDelay}.Delay(attempt - 1)
	j := 0.7 + rand.Float64()*0.6
	d = time.Duration(float64(d) * j)
	if d < 0 {
		return 0
	}
	if cfg.RetryMaxDelay > 0 && d > cfg.RetryMaxDelay {
		d = cfg.RetryMaxDelay
	}
	return d
}
