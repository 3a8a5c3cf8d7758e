// Package player drives the external playback control surface.
//
// A Controller turns (action type, target) into one control call and reports
// whether the player accepted it. Drivers:
//   - "exec": run a configured command per action type
//   - "http": POST to a player control endpoint
//   - "noop": accept everything (dry run)
package player

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"playcue/internal/action"
	logx "playcue/pkg/logx"
)

// ErrNoCommand is returned by the exec driver for an action type without a
// configured command.
var ErrNoCommand = errors.New("no command configured")

// Controller performs playback control. It satisfies scheduler.Sink.
type Controller interface {
	Control(ctx context.Context, t action.Type, target string) (action.Result, error)
}

type Config struct {
	Driver  string
	Timeout time.Duration

	// exec driver: command templates per action type; "{target}" is replaced
	// by the resolved target (and dropped when it is empty).
	Commands map[action.Type]string

	HTTP HTTPConfig
}

type HTTPConfig struct {
	BaseURL    string
	Token      string
	RatePerSec float64
	Burst      int
}

// Open builds the configured controller.
func Open(cfg Config, log logx.Logger) (Controller, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "player"))

	switch d := strings.ToLower(strings.TrimSpace(cfg.Driver)); d {
	case "", "noop":
		log.Warn("player driver is noop; actions are only logged")
		return Noop{Log: log}, nil
	case "exec":
		return newExec(cfg, log)
	case "http":
		return newHTTP(cfg, log)
	default:
		return nil, fmt.Errorf("unknown player driver: %s", d)
	}
}

// Noop accepts every call.
type Noop struct{ Log logx.Logger }

func (n Noop) Control(_ context.Context, t action.Type, target string) (action.Result, error) {
	n.Log.Info("noop player control", logx.String("type", string(t)), logx.String("target", target))
	return action.Result{Success: true, Message: "noop"}, nil
}
