package bus

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"

	"github.com/Guillaume-slize/digitalsolitude/internal/presence"
)

const DefaultChannel = "digitalsolitude:occupancy"

// RedisBus mirrors occupancy transitions onto a redis channel for
// outside observers. Nothing is ever read back into the registry.
type RedisBus struct {
	rdb     *redis.Client
	log     *slog.Logger
	channel string
}

var _ presence.TransitionSink = (*RedisBus)(nil)

// NewRedisBus connects to redis, retrying with backoff until ctx ends or a minute passes
func NewRedisBus(ctx context.Context, addr string, db int, channel string, log *slog.Logger) (*RedisBus, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, DB: db})

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = time.Minute
	err := backoff.Retry(func() error {
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn("redis.ping", "addr", addr, "err", err)
			return err
		}
		return nil
	}, backoff.WithContext(b, ctx))
	if err != nil {
		_ = rdb.Close()
		return nil, errors.Wrapf(err, "redis connect %s", addr)
	}

	if channel == "" {
		channel = DefaultChannel
	}
	log.Info("redis.connected", "addr", addr, "channel", channel)
	return &RedisBus{rdb: rdb, log: log, channel: channel}, nil
}

func (b *RedisBus) Name() string { return "redis" }

// RecordTransition publishes t as JSON
func (b *RedisBus) RecordTransition(ctx context.Context, t presence.Transition) error {
	raw, err := json.Marshal(t)
	if err != nil {
		return errors.Wrap(err, "encode transition")
	}
	return errors.Wrap(b.rdb.Publish(ctx, b.channel, raw).Err(), "redis publish")
}

// Close shuts down the redis connection
func (b *RedisBus) Close() { _ = b.rdb.Close() }
