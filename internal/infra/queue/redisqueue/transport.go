// Package redisqueue provides a Redis backed queue.Transport.
//
// Requests are pushed to <prefix><topic>:pending with LPUSH and popped with
// BRPOP, so they survive a restart of the consumer. Each reply goes to its own
// list <prefix><topic>:reply:<id> that expires after ten minutes.
package redisqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"appcrane/pkg/log"
	"appcrane/pkg/queue"
)

const (
	defaultKeyPrefix = "appcrane:queue:"
	defaultReplyTTL  = 10 * time.Minute
	// pollInterval bounds each blocking pop so context cancellation is noticed.
	pollInterval = time.Second
)

// Config holds Redis connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
}

type Transport struct {
	client    *redis.Client
	keyPrefix string
	replyTTL  time.Duration
	closed    atomic.Bool
}

var _ queue.Transport = (*Transport)(nil)

// New connects to Redis and verifies the connection.
func New(cfg Config) (*Transport, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Info("[RedisQueue] connected", "addr", cfg.Addr, "db", cfg.DB)
	return NewWithClient(client, ""), nil
}

// NewWithClient wraps an existing client. An empty keyPrefix selects the default.
func NewWithClient(client *redis.Client, keyPrefix string) *Transport {
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}
	return &Transport{
		client:    client,
		keyPrefix: keyPrefix,
		replyTTL:  defaultReplyTTL,
	}
}

// Client returns the underlying Redis client so other components can share it.
func (t *Transport) Client() *redis.Client {
	return t.client
}

func (t *Transport) pendingKey(topic string) string {
	return t.keyPrefix + topic + ":pending"
}

func (t *Transport) replyKey(topic, id string) string {
	return t.keyPrefix + topic + ":reply:" + id
}

func (t *Transport) Send(ctx context.Context, topic string, env queue.Envelope) error {
	if t.closed.Load() {
		return queue.ErrClosed
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	if err := t.client.LPush(ctx, t.pendingKey(topic), data).Err(); err != nil {
		return fmt.Errorf("push to %s: %w", topic, err)
	}
	return nil
}

func (t *Transport) Receive(ctx context.Context, topic string) (queue.Envelope, error) {
	raw, err := t.pop(ctx, t.pendingKey(topic))
	if err != nil {
		return queue.Envelope{}, err
	}
	var env queue.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		// A corrupt entry is dropped; returning it would stall the consumer.
		log.Error("[RedisQueue] dropped undecodable message", "topic", topic, "error", err)
		return queue.Envelope{}, nil
	}
	return env, nil
}

func (t *Transport) Reply(ctx context.Context, topic, id string, payload []byte) error {
	if t.closed.Load() {
		return queue.ErrClosed
	}
	if id == "" {
		return nil
	}
	key := t.replyKey(topic, id)
	pipe := t.client.TxPipeline()
	pipe.LPush(ctx, key, payload)
	pipe.Expire(ctx, key, t.replyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("reply to %s/%s: %w", topic, id, err)
	}
	return nil
}

func (t *Transport) AwaitReply(ctx context.Context, topic, id string) ([]byte, error) {
	key := t.replyKey(topic, id)
	raw, err := t.pop(ctx, key)
	if err == nil {
		_ = t.client.Del(context.WithoutCancel(ctx), key).Err()
	}
	return raw, err
}

// pop blocks on key until a value arrives, ctx ends or the transport closes.
func (t *Transport) pop(ctx context.Context, key string) ([]byte, error) {
	for {
		if t.closed.Load() {
			return nil, queue.ErrClosed
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		res, err := t.client.BRPop(ctx, pollInterval, key).Result()
		switch {
		case errors.Is(err, redis.Nil):
			continue
		case err != nil:
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			if t.closed.Load() || errors.Is(err, redis.ErrClosed) {
				return nil, queue.ErrClosed
			}
			return nil, fmt.Errorf("pop %s: %w", key, err)
		}
		// BRPOP answers [key, value].
		if len(res) != 2 {
			return nil, fmt.Errorf("pop %s: unexpected reply %v", key, res)
		}
		return []byte(res[1]), nil
	}
}

func (t *Transport) Ping(ctx context.Context) error {
	if t.closed.Load() {
		return queue.ErrClosed
	}
	return t.client.Ping(ctx).Err()
}

func (t *Transport) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	return t.client.Close()
}
