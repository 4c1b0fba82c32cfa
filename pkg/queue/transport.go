package queue

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by a Transport once Close has been called.
var ErrClosed = errors.New("queue transport is closed")

// Envelope is the unit carried over a Transport.
type Envelope struct {
	ID      string `json:"id"`
	Payload []byte `json:"payload"`
}

// Transport moves envelopes and replies between publishers and consumers of a
// topic. Receive and AwaitReply block until a value is available or ctx ends.
type Transport interface {
	Send(ctx context.Context, topic string, env Envelope) error
	Receive(ctx context.Context, topic string) (Envelope, error)
	Reply(ctx context.Context, topic, id string, payload []byte) error
	AwaitReply(ctx context.Context, topic, id string) ([]byte, error)
	Ping(ctx context.Context) error
	Close() error
}

const memoryTopicBuffer = 1024

// MemoryTransport is an in-process Transport backed by channels. It is used
// when no broker is configured and in tests.
type MemoryTransport struct {
	mu      sync.Mutex
	topics  map[string]chan Envelope
	replies map[string]chan []byte
	closed  chan struct{}
	once    sync.Once
}

var _ Transport = (*MemoryTransport)(nil)

func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{
		topics:  make(map[string]chan Envelope),
		replies: make(map[string]chan []byte),
		closed:  make(chan struct{}),
	}
}

func (t *MemoryTransport) topic(name string) chan Envelope {
	t.mu.Lock()
	defer t.mu.Unlock()
	ch, ok := t.topics[name]
	if !ok {
		ch = make(chan Envelope, memoryTopicBuffer)
		t.topics[name] = ch
	}
	return ch
}

// expectReply registers the reply slot for a sent envelope.
func (t *MemoryTransport) expectReply(topic, id string) chan []byte {
	key := topic + "/" + id
	t.mu.Lock()
	defer t.mu.Unlock()
	ch, ok := t.replies[key]
	if !ok {
		ch = make(chan []byte, 1)
		t.replies[key] = ch
	}
	return ch
}

// pendingReply returns the reply slot, or nil once nobody awaits it.
func (t *MemoryTransport) pendingReply(topic, id string) chan []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.replies[topic+"/"+id]
}

func (t *MemoryTransport) dropReply(topic, id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.replies, topic+"/"+id)
}

func (t *MemoryTransport) isClosed() bool {
	select {
	case <-t.closed:
		return true
	default:
		return false
	}
}

func (t *MemoryTransport) Send(ctx context.Context, topic string, env Envelope) error {
	if t.isClosed() {
		return ErrClosed
	}
	t.expectReply(topic, env.ID)
	select {
	case t.topic(topic) <- env:
		return nil
	case <-ctx.Done():
		t.dropReply(topic, env.ID)
		return ctx.Err()
	case <-t.closed:
		t.dropReply(topic, env.ID)
		return ErrClosed
	}
}

func (t *MemoryTransport) Receive(ctx context.Context, topic string) (Envelope, error) {
	select {
	case env := <-t.topic(topic):
		return env, nil
	case <-ctx.Done():
		return Envelope{}, ctx.Err()
	case <-t.closed:
		return Envelope{}, ErrClosed
	}
}

func (t *MemoryTransport) Reply(ctx context.Context, topic, id string, payload []byte) error {
	if t.isClosed() {
		return ErrClosed
	}
	ch := t.pendingReply(topic, id)
	if ch == nil {
		// The publisher gave up waiting.
		return nil
	}
	select {
	case ch <- payload:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

func (t *MemoryTransport) AwaitReply(ctx context.Context, topic, id string) ([]byte, error) {
	defer t.dropReply(topic, id)
	select {
	case payload := <-t.expectReply(topic, id):
		return payload, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.closed:
		return nil, ErrClosed
	}
}

func (t *MemoryTransport) Ping(context.Context) error {
	if t.isClosed() {
		return ErrClosed
	}
	return nil
}

func (t *MemoryTransport) Close() error {
	t.once.Do(func() { close(t.closed) })
	return nil
}
