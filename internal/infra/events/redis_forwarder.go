// Package events republishes app notifications on a Redis channel for
// observers running in other processes.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"appcrane/internal/domain/model"
	"appcrane/pkg/log"
)

// DefaultChannel is the Redis pub/sub channel events are published on.
const DefaultChannel = "appcrane:events"

type RedisForwarder struct {
	client  *redis.Client
	channel string
}

func NewRedisForwarder(client *redis.Client, channel string) *RedisForwarder {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisForwarder{client: client, channel: channel}
}

// Forward publishes one event.
func (f *RedisForwarder) Forward(ctx context.Context, ev model.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := f.client.Publish(ctx, f.channel, data).Err(); err != nil {
		return fmt.Errorf("publish event on %s: %w", f.channel, err)
	}
	return nil
}

// Run forwards events until the channel is closed or ctx ends.
func (f *RedisForwarder) Run(ctx context.Context, events <-chan model.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := f.Forward(ctx, ev); err != nil {
				log.Warn("[Events] failed to forward event", "event", ev.Event, "app_urn", ev.Data.AppUrn, "error", err)
			}
		}
	}
}
