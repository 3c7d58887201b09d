package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gamma-omg/algo-engine/internal/config"
	"github.com/gamma-omg/algo-engine/internal/strategy"
	goredis "github.com/go-redis/redis/v8"
)

const (
	defaultChannel   = "signals"
	defaultStream    = "signals:stream"
	streamMaxLen     = 10000
	redisPingTimeout = 5 * time.Second
)

type redisClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *goredis.IntCmd
	XAdd(ctx context.Context, a *goredis.XAddArgs) *goredis.StringCmd
	Close() error
}

// RedisSink publishes intents as JSON on a pub/sub channel and appends them
// to a capped stream for consumers that need history.
type RedisSink struct {
	log     *slog.Logger
	client  redisClient
	channel string
	stream  string
}

func NewRedisSink(ctx context.Context, log *slog.Logger, cfg config.Redis) (*RedisSink, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", cfg.Addr, err)
	}

	log.Info("redis sink connected", slog.String("addr", cfg.Addr))
	return newRedisSink(log, client, cfg.Channel, cfg.Stream), nil
}

func newRedisSink(log *slog.Logger, client redisClient, channel, stream string) *RedisSink {
	if channel == "" {
		channel = defaultChannel
	}
	if stream == "" {
		stream = defaultStream
	}

	return &RedisSink{
		log:     log,
		client:  client,
		channel: channel,
		stream:  stream,
	}
}

func (r *RedisSink) Publish(ctx context.Context, s strategy.Signal) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode signal: %w", err)
	}

	if err := r.client.Publish(ctx, r.channel, string(data)).Err(); err != nil {
		return fmt.Errorf("failed to publish signal: %w", err)
	}

	err = r.client.XAdd(ctx, &goredis.XAddArgs{
		Stream: r.stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"symbol": s.Symbol,
			"side":   string(s.Side),
			"data":   string(data),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to append signal to stream: %w", err)
	}

	return nil
}

func (r *RedisSink) Close() error {
	return r.client.Close()
}
