package notifier

import (
	"context"
	"time"
)

// Config controls the async notification pipeline.
type Config struct {
	Enabled         bool
	Workers         int
	QueueSize       int
	RatePerSec      int
	RetryMax        int
	RetryBase       time.Duration
	RetryMaxDelay   time.Duration
	SendTimeout     time.Duration
	DedupWindow     time.Duration
	DedupMaxEntries int
	// Events lists event type prefixes forwarded from the bus.
	// Empty means "action." and "scheduler.".
	Events []string

	Telegram TelegramConfig
	Redis    RedisConfig
}

type TelegramConfig struct {
	Enabled  bool
	Token    string
	ChatID   int64
	ThreadID int
	// APIURL overrides the Bot API endpoint.
	APIURL string
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	Channel  string
}

// Notification is one operator-facing message.
type Notification struct {
	Type    string    `json:"type"`
	Text    string    `json:"text"`
	Payload any       `json:"payload,omitempty"`
	At      time.Time `json:"at"`
}

// Sink delivers a notification to one destination.
type Sink interface {
	Name() string
	Send(ctx context.Context, n Notification) error
}

type HistoryItem struct {
	At   time.Time `json:"at"`
	Sink string    `json:"sink"`
	Type string    `json:"type"`
	Text string    `json:"text"`
}

// NotificationEvent is emitted on the event bus for notifier lifecycle events.
type NotificationEvent struct {
	Sink  string    `json:"sink,omitempty"`
	Type  string    `json:"type"`
	Key   string    `json:"key,omitempty"`
	At    time.Time `json:"at"`
	Error string    `json:"error,omitempty"`
}

const (
	EventSent    = "notifier.sent"
	EventFailed  = "notifier.failed"
	EventDropped = "notifier.dropped"
	EventDeduped = "notifier.deduped"
)
