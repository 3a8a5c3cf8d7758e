package player

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"playcue/internal/action"
	logx "playcue/pkg/logx"
)

func TestHTTPControl(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer s3cret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var req controlRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		switch r.URL.Path {
		case "/api/play":
			_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "message": "playing " + req.Target})
		case "/api/pause":
			_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "message": "nothing playing"})
		case "/api/stop":
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("player restarting"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c, err := Open(Config{Driver: "http", HTTP: HTTPConfig{BaseURL: srv.URL + "/api", Token: "s3cret", RatePerSec: 100}}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	ctx := context.Background()

	res, err := c.Control(ctx, action.Play, "hall")
	if err != nil || !res.Success || res.Message != "playing hall" {
		t.Fatalf("play: %+v %v", res, err)
	}

	res, err = c.Control(ctx, action.Pause, "")
	if err != nil || res.Success || res.Message != "nothing playing" {
		t.Fatalf("pause: %+v %v", res, err)
	}

	res, err = c.Control(ctx, action.Stop, "")
	if err == nil || res.Message != "player restarting" {
		t.Fatalf("stop should be a retryable failure: %+v %v", res, err)
	}
}

func TestHTTPClientErrorsAreFailures(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c, err := Open(Config{Driver: "http", HTTP: HTTPConfig{BaseURL: srv.URL}}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	res, err := c.Control(context.Background(), action.Play, "")
	if err == nil || res.Success {
		t.Fatalf("401 should fail: %+v %v", res, err)
	}
	if !strings.Contains(err.Error(), "401") {
		t.Fatalf("status missing from error: %v", err)
	}
}

func TestHTTPRequiresBaseURL(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{Driver: "http"}, logx.Nop()); err == nil {
		t.Fatal("missing base url should fail")
	}
	if _, err := Open(Config{Driver: "http", HTTP: HTTPConfig{BaseURL: "not a url"}}, logx.Nop()); err == nil {
		t.Fatal("invalid base url should fail")
	}
}

func TestDecodeResult(t *testing.T) {
	t.Parallel()
	cases := []struct {
		raw    string
		status int
		want   action.Result
	}{
		{`{"success":true,"message":"ok"}`, 200, action.Result{Success: true, Message: "ok"}},
		{`{"message":"queued"}`, 202, action.Result{Success: true, Message: "queued"}},
		{`{"success":true}`, 500, action.Result{Success: false}},
		{"plain text", 200, action.Result{Success: true, Message: "plain text"}},
	}
	for _, tc := range cases {
		if got := decodeResult([]byte(tc.raw), tc.status); got != tc.want {
			t.Fatalf("decodeResult(%q,%d)=%+v want %+v", tc.raw, tc.status, got, tc.want)
		}
	}
}
