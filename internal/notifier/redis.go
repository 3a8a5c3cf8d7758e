package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/redis/go-redis/v9"
)

const defaultRedisChannel = "playcue:events"

// RedisSink publishes each notification as JSON on a pub/sub channel.
type RedisSink struct {
	client  *redis.Client
	channel string
}

func NewRedisSink(cfg RedisConfig) (*RedisSink, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, errors.New("notifier.redis.addr is empty")
	}
	ch := strings.TrimSpace(cfg.Channel)
	if ch == "" {
		ch = defaultRedisChannel
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &RedisSink{client: client, channel: ch}, nil
}

func (r *RedisSink) Name() string { return "redis" }

func (r *RedisSink) Send(ctx context.Context, n Notification) error {
	b, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.channel, b).Err()
}

func (r *RedisSink) Close() error { return r.client.Close() }
