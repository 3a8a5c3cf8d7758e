package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"playcue/internal/action"
	logx "playcue/pkg/logx"
)

// Validate checks everything that can be checked without opening resources.
// All problems are reported together.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	if !logx.ValidLevel(cfg.Logging.Level) {
		add(fmt.Errorf("logging.level: unknown level %q", cfg.Logging.Level))
	}

	if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			add(fmt.Errorf("scheduler.timezone: %w", err))
		}
	}
	if cfg.Scheduler.MaxRetries < 0 {
		add(errors.New("scheduler.max_retries: must be >= 0"))
	}
	durations := []struct{ path, raw string }{
		{"scheduler.retry_base", cfg.Scheduler.RetryBase},
		{"scheduler.retry_max_delay", cfg.Scheduler.RetryMaxDelay},
		{"scheduler.cleanup_interval", cfg.Scheduler.CleanupInterval},
		{"scheduler.stale_after", cfg.Scheduler.StaleAfter},
		{"scheduler.missed_last_run_after", cfg.Scheduler.MissedLastRunAfter},
		{"scheduler.missed_downtime_after", cfg.Scheduler.MissedDowntimeAfter},
		{"scheduler.sink_timeout", cfg.Scheduler.SinkTimeout},
		{"storage.busy_timeout", cfg.Storage.BusyTimeout},
		{"player.timeout", cfg.Player.Timeout},
		{"notifier.retry_base", cfg.Notifier.RetryBase},
		{"notifier.retry_max_delay", cfg.Notifier.RetryMaxDelay},
		{"notifier.send_timeout", cfg.Notifier.SendTimeout},
		{"notifier.dedup_window", cfg.Notifier.DedupWindow},
		{"pprof.read_timeout", cfg.Pprof.ReadTimeout},
		{"pprof.write_timeout", cfg.Pprof.WriteTimeout},
		{"pprof.idle_timeout", cfg.Pprof.IdleTimeout},
	}
	for _, d := range durations {
		_, err := ParseDurationField(d.path, d.raw)
		add(err)
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "", "sqlite", "sqlite3", "file", "memory":
	default:
		add(fmt.Errorf("storage.driver: unknown driver %q", cfg.Storage.Driver))
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Player.Driver)) {
	case "", "noop":
	case "exec":
		if len(cfg.Player.Commands) == 0 {
			add(errors.New("player.commands: required for exec driver"))
		}
	case "http":
		u, err := url.Parse(strings.TrimSpace(cfg.Player.HTTP.BaseURL))
		if err != nil || u.Scheme == "" || u.Host == "" {
			add(fmt.Errorf("player.http.base_url: invalid url %q", cfg.Player.HTTP.BaseURL))
		}
	default:
		add(fmt.Errorf("player.driver: unknown driver %q", cfg.Player.Driver))
	}
	for k := range cfg.Player.Commands {
		if _, err := action.ParseType(k); err != nil {
			add(fmt.Errorf("player.commands: %w", err))
		}
	}

	n := cfg.Notifier
	if n.Enabled {
		if !n.Telegram.Enabled && !n.Redis.Enabled {
			add(errors.New("notifier: enabled without telegram or redis sink"))
		}
		if n.Telegram.Enabled && (strings.TrimSpace(n.Telegram.Token) == "" || n.Telegram.ChatID == 0) {
			add(errors.New("notifier.telegram: token and chat_id are required"))
		}
		if n.Redis.Enabled && strings.TrimSpace(n.Redis.Addr) == "" {
			add(errors.New("notifier.redis.addr: required"))
		}
	}
	return errors.Join(errs...)
}
