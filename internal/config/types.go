package config

// Config is the playcued configuration file (JSON or YAML).
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1h").
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Pprof     PprofConfig     `json:"pprof,omitempty"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Storage   StorageConfig   `json:"storage"`
	Player    PlayerConfig    `json:"player"`
	Notifier  NotifierConfig  `json:"notifier,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// PprofConfig controls the optional debug HTTP server (pprof, /health).
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:6060").
//   - If you bind to a non-loopback address, set a token or explicitly allow_insecure.
type PprofConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`   // default: "127.0.0.1:6060"
	Prefix        string `json:"prefix,omitempty"` // default: "/debug/pprof/"
	Token         string `json:"token,omitempty"`  // optional bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`

	// Runtime profiling rates. Leave 0 to keep Go defaults.
	MutexProfileFraction int `json:"mutex_profile_fraction,omitempty"`
	BlockProfileRate     int `json:"block_profile_rate,omitempty"`
	MemProfileRate       int `json:"mem_profile_rate,omitempty"`
}

// SchedulerConfig controls the action engine.
//
// Defaults (when fields are omitted/zero):
//   - timezone: "UTC"
//   - max_retries: 3
//   - retry_base: "1s", retry_max_delay: unbounded
//   - cleanup_interval: "1h", stale_after: "1h"
//   - missed_last_run_after: "24h", missed_downtime_after: "12h"
//   - sink_timeout: "30s"
type SchedulerConfig struct {
	Timezone            string `json:"timezone,omitempty"`
	MaxRetries          int    `json:"max_retries,omitempty"`
	RetryBase           string `json:"retry_base,omitempty"`
	RetryMaxDelay       string `json:"retry_max_delay,omitempty"`
	CleanupInterval     string `json:"cleanup_interval,omitempty"`
	StaleAfter          string `json:"stale_after,omitempty"`
	MissedLastRunAfter  string `json:"missed_last_run_after,omitempty"`
	MissedDowntimeAfter string `json:"missed_downtime_after,omitempty"`
	SinkTimeout         string `json:"sink_timeout,omitempty"`
}

// StorageConfig selects the action store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./playcue.db" }
type StorageConfig struct {
	Driver      string `json:"driver"` // sqlite (default), file, memory
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// PlayerConfig selects how play/pause/stop reach the media player.
type PlayerConfig struct {
	Driver  string `json:"driver"` // noop (default), exec, http
	Timeout string `json:"timeout,omitempty"`
	// Commands maps an action type to a shell-quoted command line for the
	// exec driver. "{target}" is replaced with the action target.
	Commands map[string]string `json:"commands,omitempty"`
	HTTP     PlayerHTTPConfig  `json:"http,omitempty"`
}

type PlayerHTTPConfig struct {
	BaseURL    string `json:"base_url"`
	Token      string `json:"token,omitempty"` // do not log
	RatePerSec int    `json:"rate_per_sec,omitempty"`
	Burst      int    `json:"burst,omitempty"`
}

// NotifierConfig controls the async notification pipeline.
type NotifierConfig struct {
	Enabled         bool     `json:"enabled"`
	Workers         int      `json:"workers,omitempty"`
	QueueSize       int      `json:"queue_size,omitempty"`
	RatePerSec      int      `json:"rate_per_sec,omitempty"`
	RetryMax        int      `json:"retry_max,omitempty"`
	RetryBase       string   `json:"retry_base,omitempty"`
	RetryMaxDelay   string   `json:"retry_max_delay,omitempty"`
	SendTimeout     string   `json:"send_timeout,omitempty"`
	DedupWindow     string   `json:"dedup_window,omitempty"`
	DedupMaxEntries int      `json:"dedup_max_entries,omitempty"`
	Events          []string `json:"events,omitempty"`

	Telegram NotifierTelegram `json:"telegram,omitempty"`
	Redis    NotifierRedis    `json:"redis,omitempty"`
}

type NotifierTelegram struct {
	Enabled  bool   `json:"enabled"`
	Token    string `json:"token"` // do not log
	ChatID   int64  `json:"chat_id"`
	ThreadID int    `json:"thread_id,omitempty"`
	APIURL   string `json:"api_url,omitempty"`
}

type NotifierRedis struct {
	Enabled  bool   `json:"enabled"`
	Addr     string `json:"addr"`
	Password string `json:"password,omitempty"` // do not log
	DB       int    `json:"db,omitempty"`
	Channel  string `json:"channel,omitempty"`
}
