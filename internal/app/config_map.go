package app

import (
	"strings"
	"time"

	"playcue/internal/action"
	"playcue/internal/config"
	"playcue/internal/notifier"
	"playcue/internal/observability/pprof"
	"playcue/internal/player"
	"playcue/internal/scheduler"
	"playcue/internal/storage"
	logx "playcue/pkg/logx"
)

// The mappers below expect a config that passed config.Validate, so
// duration parse errors cannot happen here.

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapSchedulerConfig(cfg *config.Config) scheduler.Config {
	sc := cfg.Scheduler
	return scheduler.Config{
		Timezone:            strings.TrimSpace(sc.Timezone),
		MaxRetries:          sc.MaxRetries,
		RetryBase:           config.MustDuration(sc.RetryBase),
		RetryMaxDelay:       config.MustDuration(sc.RetryMaxDelay),
		CleanupInterval:     config.MustDuration(sc.CleanupInterval),
		StaleAfter:          config.MustDuration(sc.StaleAfter),
		MissedLastRunAfter:  config.MustDuration(sc.MissedLastRunAfter),
		MissedDowntimeAfter: config.MustDuration(sc.MissedDowntimeAfter),
		SinkTimeout:         config.MustDuration(sc.SinkTimeout),
	}
}

func mapStorageConfig(cfg *config.Config) storage.Config {
	sc := cfg.Storage
	path := strings.TrimSpace(sc.Path)
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if path == "" {
		switch driver {
		case "", "sqlite", "sqlite3":
			path = "./playcue.db"
		case "file":
			path = "./playcue_store"
		}
	}
	busy := config.MustDuration(sc.BusyTimeout)
	if busy <= 0 {
		busy = time.Second
	}
	return storage.Config{Driver: driver, Path: path, BusyTimeout: busy}
}

func mapPlayerConfig(cfg *config.Config) player.Config {
	pc := cfg.Player
	cmds := make(map[action.Type]string, len(pc.Commands))
	for k, v := range pc.Commands {
		if t, err := action.ParseType(k); err == nil {
			cmds[t] = v
		}
	}
	return player.Config{
		Driver:   strings.TrimSpace(pc.Driver),
		Timeout:  config.MustDuration(pc.Timeout),
		Commands: cmds,
		HTTP: player.HTTPConfig{
			BaseURL:    strings.TrimSpace(pc.HTTP.BaseURL),
			Token:      pc.HTTP.Token,
			RatePerSec: float64(pc.HTTP.RatePerSec),
			Burst:      pc.HTTP.Burst,
		},
	}
}

func mapNotifierConfig(cfg *config.Config) notifier.Config {
	n := cfg.Notifier
	return notifier.Config{
		Enabled:         n.Enabled,
		Workers:         n.Workers,
		QueueSize:       n.QueueSize,
		RatePerSec:      n.RatePerSec,
		RetryMax:        n.RetryMax,
		RetryBase:       config.MustDuration(n.RetryBase),
		RetryMaxDelay:   config.MustDuration(n.RetryMaxDelay),
		SendTimeout:     config.MustDuration(n.SendTimeout),
		DedupWindow:     config.MustDuration(n.DedupWindow),
		DedupMaxEntries: n.DedupMaxEntries,
		Events:          n.Events,
		Telegram: notifier.TelegramConfig{
			Enabled:  n.Telegram.Enabled,
			Token:    n.Telegram.Token,
			ChatID:   n.Telegram.ChatID,
			ThreadID: n.Telegram.ThreadID,
			APIURL:   n.Telegram.APIURL,
		},
		Redis: notifier.RedisConfig{
			Enabled:  n.Redis.Enabled,
			Addr:     n.Redis.Addr,
			Password: n.Redis.Password,
			DB:       n.Redis.DB,
			Channel:  n.Redis.Channel,
		},
	}
}

func mapPprofConfig(cfg *config.Config) pprof.Config {
	p := cfg.Pprof
	return pprof.Config{
		Enabled:              p.Enabled,
		Addr:                 strings.TrimSpace(p.Addr),
		Prefix:               strings.TrimSpace(p.Prefix),
		Token:                strings.TrimSpace(p.Token),
		AllowInsecure:        p.AllowInsecure,
		ReadTimeout:          config.MustDuration(p.ReadTimeout),
		WriteTimeout:         config.MustDuration(p.WriteTimeout),
		IdleTimeout:          config.MustDuration(p.IdleTimeout),
		MutexProfileFraction: p.MutexProfileFraction,
		BlockProfileRate:     p.BlockProfileRate,
		MemProfileRate:       p.MemProfileRate,
	}
}
