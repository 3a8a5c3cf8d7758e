package scheduler

import (
	"context"
	"errors"
	"time"

	"playcue/internal/action"
	"playcue/internal/clock"
	"playcue/internal/eventbus"
	logx "playcue/pkg/logx"
)

var (
	ErrMissingID    = action.ErrMissingID
	ErrMissingDate  = action.ErrMissingDate
	ErrPlayerFailed = errors.New("player reported failure")
	ErrChainDropped = errors.New("retry abandoned: action no longer active")
)

// Event types published on the bus.
const (
	EventInitialized = "scheduler.initialized"
	EventExecuted    = "action.executed"
	EventRetry       = "action.retry"
	EventFailed      = "action.failed"
	EventMissed      = "action.missed"
	EventRemoved     = "action.removed"
	EventPaused      = "action.paused"
	EventResumed     = "action.resumed"
)

// Store is the persistence the engine reads actions from and writes outcomes to.
type Store interface {
	ListActive(ctx context.Context) ([]action.Record, error)
	// Get returns action.ErrNotFound for unknown ids.
	Get(ctx context.Context, id string) (action.Record, error)
	Patch(ctx context.Context, id string, p action.Patch) (action.Record, error)
	Delete(ctx context.Context, id string) error
	LoadRecoveryState(ctx context.Context) (action.RecoveryState, error)
	SaveRecoveryState(ctx context.Context, st action.RecoveryState) error
}

// Sink performs playback control. A returned error and Success=false are
// both failures and are retried alike.
type Sink interface {
	Control(ctx context.Context, t action.Type, target string) (action.Result, error)
}

type Config struct {
	// Timezone is the zone for daily actions without their own; empty means Local.
	Timezone            string
	MaxRetries          int
	RetryBase           time.Duration
	RetryMaxDelay       time.Duration
	RepeatInterval      time.Duration
	CleanupInterval     time.Duration
	StaleAfter          time.Duration
	MissedLastRunAfter  time.Duration
	MissedDowntimeAfter time.Duration
	SinkTimeout         time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxRetries <= 0 {
		c.MaxRetries = action.DefaultMaxRetries
	}
	if c.RetryBase <= 0 {
		c.RetryBase = time.Second
	}
	if c.RepeatInterval <= 0 {
		c.RepeatInterval = 24 * time.Hour
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = time.Hour
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = time.Hour
	}
	if c.MissedLastRunAfter <= 0 {
		c.MissedLastRunAfter = 24 * time.Hour
	}
	if c.MissedDowntimeAfter <= 0 {
		c.MissedDowntimeAfter = 12 * time.Hour
	}
	if c.SinkTimeout <= 0 {
		c.SinkTimeout = 30 * time.Second
	}
	return c
}

// Deps are the collaborators injected into New. Clock, Bus and Log are optional.
type Deps struct {
	Store Store
	Sink  Sink
	Bus   eventbus.Bus
	Clock clock.Clock
	Log   logx.Logger
}

type Kind string

const (
	KindOnce  Kind = "once"
	KindDaily Kind = "daily"
)

// entry is one arming of an action. It is owned by Engine.mu.
type entry struct {
	registryID    string
	actionID      string
	kind          Kind
	scheduledTime time.Time
	active        bool
	running       bool
	fired         int

	timer  clock.Handle // first (or only) firing
	repeat clock.Handle // daily repeat, armed after the first firing
	retry  clock.Handle // pending backoff retry

	// chainRec and chainFailures describe the pending retry, if any.
	chainRec      action.Record
	chainFailures int
	// dropped is set when re-initialization abandoned the chain.
	dropped bool
}

// EntryInfo is a read-only view of a live entry.
type EntryInfo struct {
	RegistryID    string    `json:"registry_id"`
	ActionID      string    `json:"action_id"`
	Kind          Kind      `json:"kind"`
	ScheduledTime time.Time `json:"scheduled_time"`
	Running       bool      `json:"running"`
	RetryPending  bool      `json:"retry_pending"`
	Fired         int       `json:"fired"`
}

type Health struct {
	Initialized        bool          `json:"initialized"`
	ActiveCount        int           `json:"active_count"`
	RegistrySize       int           `json:"registry_size"`
	ExhaustedCount     int           `json:"exhausted_count"`
	MissedCount        int           `json:"missed_count"`
	Running            int           `json:"running"`
	Uptime             time.Duration `json:"uptime"`
	LastInitialization time.Time     `json:"last_initialization,omitempty"`
	Timezone           string        `json:"timezone"`
}

// ActionEvent is the Data of every action.* event.
type ActionEvent struct {
	Action   action.Record  `json:"action"`
	Result   *action.Result `json:"result,omitempty"`
	Attempts int            `json:"attempts,omitempty"`
	RetryIn  time.Duration  `json:"retry_in,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// InitSummary is the Data of scheduler.initialized.
type InitSummary struct {
	Loaded   int           `json:"loaded"`
	Armed    int           `json:"armed"`
	Rejected int           `json:"rejected"`
	Missed   int           `json:"missed"`
	Downtime time.Duration `json:"downtime,omitempty"`
}
