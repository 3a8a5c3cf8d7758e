package player

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"playcue/internal/action"
	logx "playcue/pkg/logx"
)

type httpController struct {
	log     logx.Logger
	base    *url.URL
	token   string
	client  *http.Client
	limiter *rate.Limiter
}

type controlRequest struct {
	Action string `json:"action"`
	Target string `json:"target,omitempty"`
}

func newHTTP(cfg Config, log logx.Logger) (*httpController, error) {
	raw := strings.TrimSpace(cfg.HTTP.BaseURL)
	if raw == "" {
		return nil, errors.New("player.http.base_url is required for http driver")
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("player.http.base_url: invalid url %q", raw)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	rps := cfg.HTTP.RatePerSec
	if rps <= 0 {
		rps = 5
	}
	burst := cfg.HTTP.Burst
	if burst <= 0 {
		burst = 1
	}
	return &httpController{
		log:     log,
		base:    u,
		token:   strings.TrimSpace(cfg.HTTP.Token),
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}, nil
}

func (c *httpController) Control(ctx context.Context, t action.Type, target string) (action.Result, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return action.Result{}, fmt.Errorf("player rate limit: %w", err)
	}

	body, _ := json.Marshal(controlRequest{Action: string(t), Target: target})
	endpoint := c.base.JoinPath(string(t))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return action.Result{}, fmt.Errorf("player request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return action.Result{}, fmt.Errorf("player request: %w", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	res := decodeResult(raw, resp.StatusCode)
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		c.log.Debug("player request ok", logx.String("type", string(t)), logx.Int("status", resp.StatusCode))
		return res, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests && resp.StatusCode != http.StatusRequestTimeout:
		c.log.Warn("player rejected request", logx.String("type", string(t)), logx.Int("status", resp.StatusCode))
		return res, fmt.Errorf("player rejected request (%d): %s", resp.StatusCode, res.Message)
	default:
		return res, fmt.Errorf("player responded %d: %s", resp.StatusCode, res.Message)
	}
}

// decodeResult reads an optional {"success","message"} body; without one the
// status code decides.
func decodeResult(raw []byte, status int) action.Result {
	ok := status >= 200 && status < 300
	var body struct {
		Success *bool  `json:"success"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		res := action.Result{Success: ok, Message: body.Message}
		if body.Success != nil {
			res.Success = ok && *body.Success
		}
		return res
	}
	return action.Result{Success: ok, Message: truncate(strings.TrimSpace(string(raw)), 512)}
}
