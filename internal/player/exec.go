package player

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"unicode/utf8"

	"github.com/kballard/go-shellquote"

	"playcue/internal/action"
	logx "playcue/pkg/logx"
)

const (
	targetPlaceholder = "{target}"
	maxOutput         = 2048
)

type execController struct {
	log  logx.Logger
	argv map[action.Type][]string
}

func newExec(cfg Config, log logx.Logger) (*execController, error) {
	c := &execController{log: log, argv: map[action.Type][]string{}}
	for t, line := range cfg.Commands {
		if !t.Valid() {
			return nil, fmt.Errorf("player.commands: %w: %q", action.ErrInvalidType, t)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		args, err := shellquote.Split(line)
		if err != nil {
			return nil, fmt.Errorf("player.commands.%s: %w", t, err)
		}
		if len(args) == 0 {
			continue
		}
		c.argv[t] = args
	}
	if len(c.argv) == 0 {
		return nil, errors.New("player.commands: at least one command is required for exec driver")
	}
	return c, nil
}

// expand substitutes the target into a command template.
func expand(tmpl []string, target string) []string {
	out := make([]string, 0, len(tmpl))
	for _, a := range tmpl {
		if a == targetPlaceholder {
			if target != "" {
				out = append(out, target)
			}
			continue
		}
		out = append(out, strings.ReplaceAll(a, targetPlaceholder, target))
	}
	return out
}

func (c *execController) Control(ctx context.Context, t action.Type, target string) (action.Result, error) {
	tmpl, ok := c.argv[t]
	if !ok {
		return action.Result{}, fmt.Errorf("%w: %q", ErrNoCommand, t)
	}
	args := expand(tmpl, target)

	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	msg := truncate(strings.TrimSpace(out.String()), maxOutput)

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		c.log.Debug("player command ok", logx.String("type", string(t)), logx.String("cmd", shellquote.Join(args...)))
		return action.Result{Success: true, Message: msg}, nil
	case errors.As(err, &exitErr) && ctx.Err() == nil:
		if msg == "" {
			msg = exitErr.Error()
		}
		return action.Result{Success: false, Message: msg}, nil
	case errors.Is(err, exec.ErrNotFound):
		return action.Result{}, fmt.Errorf("player command: %w", err)
	default:
		if ctx.Err() != nil {
			return action.Result{}, fmt.Errorf("player command: %w", ctx.Err())
		}
		return action.Result{}, fmt.Errorf("player command: %w", err)
	}
}

// truncate cuts s to at most n bytes on a rune boundary, marking the cut.
func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	cut := n - len("...")
	if cut < 0 {
		cut = 0
	}
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
