package config

import (
	"reflect"
	"sort"
	"strings"

	logx "playcue/pkg/logx"
)

// Change describes which sections differ between two configs.
type Change struct {
	Sections []string
	// Fields are safe to log: secrets are reduced to "<name>_set" booleans.
	Fields []logx.Field
	// RestartRequired lists changed sections that only apply at startup.
	RestartRequired []string
}

func (c Change) Has(section string) bool {
	for _, s := range c.Sections {
		if s == section {
			return true
		}
	}
	return false
}

// SummarizeConfigChange compares oldCfg and newCfg section by section.
func SummarizeConfigChange(oldCfg, newCfg *Config) Change {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var ch Change
	mark := func(section string, restart bool, fields ...logx.Field) {
		ch.Sections = append(ch.Sections, section)
		ch.Fields = append(ch.Fields, fields...)
		if restart {
			ch.RestartRequired = append(ch.RestartRequired, section)
		}
	}

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		mark("logging", false,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	op, np := oldCfg.Pprof, newCfg.Pprof
	tokenChanged := op.Token != np.Token
	op.Token, np.Token = "", ""
	if tokenChanged || !reflect.DeepEqual(op, np) {
		mark("pprof", false,
			logx.Bool("pprof.enabled", np.Enabled),
			logx.String("pprof.addr", strings.TrimSpace(np.Addr)),
			logx.Bool("pprof.token_set", strings.TrimSpace(newCfg.Pprof.Token) != ""),
			logx.Bool("pprof.allow_insecure", np.AllowInsecure),
		)
	}

	if !reflect.DeepEqual(oldCfg.Scheduler, newCfg.Scheduler) {
		mark("scheduler", false,
			logx.String("scheduler.timezone", strings.TrimSpace(newCfg.Scheduler.Timezone)),
			logx.Bool("scheduler.timezone_changed", strings.TrimSpace(oldCfg.Scheduler.Timezone) != strings.TrimSpace(newCfg.Scheduler.Timezone)),
			logx.Int("scheduler.max_retries", newCfg.Scheduler.MaxRetries),
			logx.String("scheduler.retry_base", newCfg.Scheduler.RetryBase),
		)
	}

	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		mark("storage", true,
			logx.String("storage.driver", strings.TrimSpace(newCfg.Storage.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(newCfg.Storage.Path) != ""),
		)
	}

	if !reflect.DeepEqual(oldCfg.Player, newCfg.Player) {
		mark("player", true,
			logx.String("player.driver", strings.TrimSpace(newCfg.Player.Driver)),
			logx.Int("player.commands", len(newCfg.Player.Commands)),
			logx.Bool("player.http_token_set", strings.TrimSpace(newCfg.Player.HTTP.Token) != ""),
		)
	}

	if !reflect.DeepEqual(oldCfg.Notifier, newCfg.Notifier) {
		n := newCfg.Notifier
		mark("notifier", false,
			logx.Bool("notifier.enabled", n.Enabled),
			logx.Int("notifier.workers", n.Workers),
			logx.Int("notifier.rate_per_sec", n.RatePerSec),
			logx.Bool("notifier.telegram", n.Telegram.Enabled),
			logx.Bool("notifier.telegram_token_set", strings.TrimSpace(n.Telegram.Token) != ""),
			logx.Bool("notifier.redis", n.Redis.Enabled),
		)
	}

	sort.Strings(ch.Sections)
	sort.Strings(ch.RestartRequired)
	return ch
}
