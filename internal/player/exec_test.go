package player

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"playcue/internal/action"
	logx "playcue/pkg/logx"
)

func TestExpand(t *testing.T) {
	t.Parallel()

	cases := []struct {
		tmpl   []string
		target string
		want   string
	}{
		{[]string{"playerctl", "play", "{target}"}, "Morning Mass", "playerctl|play|Morning Mass"},
		{[]string{"playerctl", "play", "{target}"}, "", "playerctl|play"},
		{[]string{"mpc", "--playlist={target}"}, "hall", "mpc|--playlist=hall"},
	}
	for _, tc := range cases {
		got := strings.Join(expand(tc.tmpl, tc.target), "|")
		if got != tc.want {
			t.Fatalf("expand(%v,%q)=%q want %q", tc.tmpl, tc.target, got, tc.want)
		}
	}
}

func TestExecControl(t *testing.T) {
	t.Parallel()

	c, err := Open(Config{Driver: "exec", Commands: map[action.Type]string{
		action.Play:  `sh -c 'echo playing "$1"' sh {target}`,
		action.Pause: `sh -c 'echo busy >&2; exit 3'`,
		action.Stop:  `/definitely/not/a/binary`,
	}}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	ctx := context.Background()

	res, err := c.Control(ctx, action.Play, "Morning Mass")
	if err != nil || !res.Success || res.Message != "playing Morning Mass" {
		t.Fatalf("play: %+v %v", res, err)
	}

	res, err = c.Control(ctx, action.Pause, "")
	if err != nil || res.Success || res.Message != "busy" {
		t.Fatalf("pause: %+v %v", res, err)
	}

	if _, err = c.Control(ctx, action.Stop, ""); err == nil {
		t.Fatal("missing binary should error")
	}
}

func TestExecMissingCommandIsAnError(t *testing.T) {
	t.Parallel()
	c, err := Open(Config{Driver: "exec", Commands: map[action.Type]string{action.Play: "true"}}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_, err = c.Control(context.Background(), action.Stop, "")
	if !errors.Is(err, ErrNoCommand) {
		t.Fatalf("expected ErrNoCommand, got %v", err)
	}
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"abcdefghij", 8, "abcde..."},
		// "é" is two bytes; a byte cut would split it.
		{"aaaaé-tail", 8, "aaaa..."},
		{"日本語のテキスト", 10, "日本..."},
		{"abc", 0, "abc"},
	}
	for _, tc := range cases {
		got := truncate(tc.in, tc.n)
		if got != tc.want {
			t.Fatalf("truncate(%q, %d) = %q, want %q", tc.in, tc.n, got, tc.want)
		}
		if !utf8.ValidString(got) {
			t.Fatalf("truncate(%q, %d) produced invalid UTF-8", tc.in, tc.n)
		}
	}
}

func TestOpenExecValidation(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{Driver: "exec"}, logx.Nop()); err == nil {
		t.Fatal("exec without commands should fail")
	}
	if _, err := Open(Config{Driver: "exec", Commands: map[action.Type]string{action.Play: `echo "unterminated`}}, logx.Nop()); err == nil {
		t.Fatal("unbalanced quotes should fail")
	}
	if _, err := Open(Config{Driver: "exec", Commands: map[action.Type]string{"rewind": "true"}}, logx.Nop()); err == nil {
		t.Fatal("unknown action type should fail")
	}
	if _, err := Open(Config{Driver: "vlc"}, logx.Nop()); err == nil {
		t.Fatal("unknown driver should fail")
	}
}

func TestNoopAcceptsEverything(t *testing.T) {
	t.Parallel()
	c, err := Open(Config{}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	res, err := c.Control(context.Background(), action.Stop, "")
	if err != nil || !res.Success {
		t.Fatalf("noop: %+v %v", res, err)
	}
}
