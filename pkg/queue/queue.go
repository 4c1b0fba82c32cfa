// Package queue implements a typed, schema-validated request/reply channel on
// top of a pluggable Transport.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"appcrane/pkg/backoff"
	"appcrane/pkg/log"
)

// ErrShuttingDown is returned when a queue is used after Shutdown.
var ErrShuttingDown = errors.New("queue is shutting down")

const (
	defaultTimeout              = 5 * time.Minute
	defaultMaxReconnectAttempts = 5
)

// Result is the reply of every request.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Failure builds an unsuccessful Result.
func Failure(format string, args ...any) Result {
	return Result{Success: false, Message: fmt.Sprintf(format, args...)}
}

// Handler processes one request. Errors are reported through the Result.
type Handler[Req any] func(ctx context.Context, req Req) Result

// Options tunes a Queue. Zero values pick the defaults.
type Options struct {
	// Timeout bounds how long Publish waits for a reply.
	Timeout time.Duration
	// MaxReconnectAttempts caps consumer reconnection; the n-th attempt waits
	// ReconnectBase * 2^n.
	MaxReconnectAttempts int
	ReconnectBase        time.Duration
	// OnFatal is called once when reconnection gives up.
	OnFatal func(err error)
}

// Queue is a typed request/reply channel for one command family.
type Queue[Req any] struct {
	name      string
	transport Transport
	validate  *validator.Validate
	opts      Options

	mu           sync.RWMutex
	shuttingDown bool
	consuming    bool
	cancel       context.CancelFunc
	scheduler    *cron.Cron

	active  sync.WaitGroup
	workers sync.WaitGroup

	fatalOnce sync.Once
}

// New creates a queue named name on transport.
func New[Req any](name string, transport Transport, opts Options) *Queue[Req] {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxReconnectAttempts <= 0 {
		opts.MaxReconnectAttempts = defaultMaxReconnectAttempts
	}
	if opts.ReconnectBase <= 0 {
		opts.ReconnectBase = time.Second
	}
	return &Queue[Req]{
		name:      name,
		transport: transport,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		opts:      opts,
	}
}

// Name returns the topic name.
func (q *Queue[Req]) Name() string {
	return q.name
}

// Publish validates req, sends it and waits for the reply. It never returns
// an error: every failure is reported as an unsuccessful Result.
func (q *Queue[Req]) Publish(ctx context.Context, req Req) Result {
	if q.IsShuttingDown() {
		return Failure("%s: %v", q.name, ErrShuttingDown)
	}
	if err := q.validate.Struct(req); err != nil {
		log.Warn("[Queue] rejected invalid payload", "queue", q.name, "error", err)
		return Failure("invalid %s payload: %v", q.name, err)
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return Failure("failed to encode %s payload: %v", q.name, err)
	}

	env := Envelope{ID: uuid.NewString(), Payload: payload}

	ctx, cancel := context.WithTimeout(ctx, q.opts.Timeout)
	defer cancel()

	if err := q.transport.Send(ctx, q.name, env); err != nil {
		log.Error("[Queue] failed to send message", "queue", q.name, "id", env.ID, "error", err)
		return Failure("failed to send %s message: %v", q.name, err)
	}

	raw, err := q.transport.AwaitReply(ctx, q.name, env.ID)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Failure("timed out waiting for %s reply after %s", q.name, q.opts.Timeout)
		}
		return Failure("failed to receive %s reply: %v", q.name, err)
	}

	var res Result
	if err := json.Unmarshal(raw, &res); err != nil {
		return Failure("invalid %s reply: %v", q.name, err)
	}
	return res
}

// PublishRepeatable publishes req every time spec (a standard five-field cron
// expression) fires. The queue must be closed with Shutdown to stop it.
func (q *Queue[Req]) PublishRepeatable(spec string, req Req) (cron.EntryID, error) {
	if _, err := cron.ParseStandard(spec); err != nil {
		return 0, fmt.Errorf("invalid cron expression %q: %w", spec, err)
	}
	if err := q.validate.Struct(req); err != nil {
		return 0, fmt.Errorf("invalid %s payload: %w", q.name, err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.shuttingDown {
		return 0, ErrShuttingDown
	}
	if q.scheduler == nil {
		q.scheduler = cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger)))
		q.scheduler.Start()
	}

	id, err := q.scheduler.AddFunc(spec, func() {
		res := q.Publish(context.Background(), req)
		if !res.Success {
			log.Warn("[Queue] repeatable publish failed", "queue", q.name, "message", res.Message)
		}
	})
	if err != nil {
		return 0, fmt.Errorf("schedule %s: %w", q.name, err)
	}
	log.Info("[Queue] scheduled repeatable job", "queue", q.name, "cron", spec)
	return id, nil
}

// Consume starts concurrency workers that pull requests and reply with the
// handler's Result. It returns immediately; call Shutdown to stop the workers.
func (q *Queue[Req]) Consume(ctx context.Context, concurrency int, handler Handler[Req]) error {
	if concurrency <= 0 {
		concurrency = 1
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.shuttingDown {
		return ErrShuttingDown
	}
	if q.consuming {
		return fmt.Errorf("queue %s already has consumers", q.name)
	}
	q.consuming = true

	ctx, q.cancel = context.WithCancel(ctx)
	for i := 0; i < concurrency; i++ {
		q.workers.Add(1)
		go q.worker(ctx, i, handler)
	}
	log.Info("[Queue] consumer started", "queue", q.name, "concurrency", concurrency)
	return nil
}

func (q *Queue[Req]) worker(ctx context.Context, id int, handler Handler[Req]) {
	defer q.workers.Done()

	b := backoff.NewCapped(q.opts.ReconnectBase, q.opts.ReconnectBase<<uint(q.opts.MaxReconnectAttempts), q.opts.MaxReconnectAttempts)

	for {
		env, err := q.transport.Receive(ctx, q.name)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrClosed) {
				return
			}
			log.Warn("[Queue] receive failed, reconnecting", "queue", q.name, "worker", id, "error", err)
			if !q.reconnect(ctx, b, err) {
				return
			}
			continue
		}
		b.Reset()
		q.process(ctx, env, handler)
	}
}

// reconnect pings the transport with exponential backoff until it answers.
// It returns false when the consumer should stop.
func (q *Queue[Req]) reconnect(ctx context.Context, b *backoff.Backoff, cause error) bool {
	for {
		delay, ok := b.Next()
		if !ok {
			err := fmt.Errorf("queue %s: giving up after %d reconnect attempts: %w", q.name, b.Attempt(), cause)
			q.fatalOnce.Do(func() {
				log.Error("[Queue] reconnection failed", "queue", q.name, "error", err)
				if q.opts.OnFatal != nil {
					q.opts.OnFatal(err)
				}
			})
			return false
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-timer.C:
		}

		if err := q.transport.Ping(ctx); err != nil {
			if errors.Is(err, ErrClosed) {
				return false
			}
			cause = err
			log.Warn("[Queue] reconnect attempt failed", "queue", q.name, "attempt", b.Attempt(), "error", err)
			continue
		}
		log.Info("[Queue] reconnected", "queue", q.name, "attempt", b.Attempt())
		return true
	}
}

func (q *Queue[Req]) process(ctx context.Context, env Envelope, handler Handler[Req]) {
	q.active.Add(1)
	defer q.active.Done()

	// In-flight requests run to completion even while shutting down.
	ctx = context.WithoutCancel(ctx)

	res := q.handle(ctx, env, handler)

	payload, err := json.Marshal(res)
	if err != nil {
		log.Error("[Queue] failed to encode reply", "queue", q.name, "id", env.ID, "error", err)
		return
	}
	if err := q.transport.Reply(ctx, q.name, env.ID, payload); err != nil {
		log.Error("[Queue] failed to send reply", "queue", q.name, "id", env.ID, "error", err)
	}
}

func (q *Queue[Req]) handle(ctx context.Context, env Envelope, handler Handler[Req]) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("[Queue] handler panicked", "queue", q.name, "id", env.ID, "panic", r, "stack", string(debug.Stack()))
			res = Failure("%s handler panicked: %v", q.name, r)
		}
	}()

	var req Req
	if err := json.Unmarshal(env.Payload, &req); err != nil {
		return Failure("invalid %s payload: %v", q.name, err)
	}
	if err := q.validate.Struct(req); err != nil {
		log.Warn("[Queue] dropped invalid payload", "queue", q.name, "id", env.ID, "error", err)
		return Failure("invalid %s payload: %v", q.name, err)
	}
	return handler(ctx, req)
}

// Shutdown stops accepting publishes, stops the scheduler and the consumers.
// In-flight requests keep running; use WaitForCompletion to wait for them.
func (q *Queue[Req]) Shutdown() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.shuttingDown {
		return
	}
	q.shuttingDown = true
	if q.scheduler != nil {
		q.scheduler.Stop()
	}
	if q.cancel != nil {
		q.cancel()
	}
}

// WaitForCompletion blocks until every worker has exited and every in-flight
// request has been answered.
func (q *Queue[Req]) WaitForCompletion() {
	q.workers.Wait()
	q.active.Wait()
}

// Close is Shutdown followed by WaitForCompletion. It does not close the
// transport, which may be shared between queues.
func (q *Queue[Req]) Close() {
	q.Shutdown()
	q.WaitForCompletion()
}

func (q *Queue[Req]) IsShuttingDown() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.shuttingDown
}
