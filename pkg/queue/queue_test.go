package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoRequest struct {
	Command string `json:"command" validate:"required,oneof=echo fail panic slow"`
	Value   string `json:"value"`
}

func echoHandler(_ context.Context, req echoRequest) Result {
	switch req.Command {
	case "fail":
		return Failure("failed: %s", req.Value)
	case "panic":
		panic("boom")
	case "slow":
		time.Sleep(20 * time.Millisecond)
	}
	return Result{Success: true, Message: req.Value}
}

func newTestQueue(t *testing.T, opts Options) (*Queue[echoRequest], *MemoryTransport) {
	t.Helper()
	transport := NewMemoryTransport()
	q := New[echoRequest]("test-events", transport, opts)
	t.Cleanup(func() {
		q.Close()
		_ = transport.Close()
	})
	return q, transport
}

func TestPublishConsumeRoundTrip(t *testing.T) {
	q, _ := newTestQueue(t, Options{Timeout: time.Second})
	require.NoError(t, q.Consume(context.Background(), 1, echoHandler))

	res := q.Publish(context.Background(), echoRequest{Command: "echo", Value: "hello"})
	assert.True(t, res.Success)
	assert.Equal(t, "hello", res.Message)

	res = q.Publish(context.Background(), echoRequest{Command: "fail", Value: "nope"})
	assert.False(t, res.Success)
	assert.Equal(t, "failed: nope", res.Message)
}

func TestPublishInvalidPayloadNeverReachesConsumer(t *testing.T) {
	q, _ := newTestQueue(t, Options{Timeout: time.Second})

	var calls atomic.Int32
	require.NoError(t, q.Consume(context.Background(), 1, func(ctx context.Context, req echoRequest) Result {
		calls.Add(1)
		return Result{Success: true}
	}))

	res := q.Publish(context.Background(), echoRequest{Command: "unknown"})
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "invalid test-events payload")

	// A valid message afterwards is the first one the consumer sees.
	res = q.Publish(context.Background(), echoRequest{Command: "echo"})
	assert.True(t, res.Success)
	assert.EqualValues(t, 1, calls.Load())
}

func TestConsumerRejectsInvalidEnvelope(t *testing.T) {
	q, transport := newTestQueue(t, Options{Timeout: time.Second})

	var calls atomic.Int32
	require.NoError(t, q.Consume(context.Background(), 1, func(ctx context.Context, req echoRequest) Result {
		calls.Add(1)
		return Result{Success: true}
	}))

	ctx := context.Background()
	require.NoError(t, transport.Send(ctx, "test-events", Envelope{ID: "raw-1", Payload: []byte(`{"command":"bogus"}`)}))
	raw, err := transport.AwaitReply(ctx, "test-events", "raw-1")
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"success":false`)
	assert.EqualValues(t, 0, calls.Load())
}

func TestHandlerPanicBecomesFailure(t *testing.T) {
	q, _ := newTestQueue(t, Options{Timeout: time.Second})
	require.NoError(t, q.Consume(context.Background(), 1, echoHandler))

	res := q.Publish(context.Background(), echoRequest{Command: "panic"})
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "boom")

	// The worker survives the panic.
	res = q.Publish(context.Background(), echoRequest{Command: "echo", Value: "still alive"})
	assert.True(t, res.Success)
}

func TestPublishTimesOutWithoutConsumer(t *testing.T) {
	q, _ := newTestQueue(t, Options{Timeout: 20 * time.Millisecond})

	res := q.Publish(context.Background(), echoRequest{Command: "echo"})
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "timed out")
}

func TestLateRepliesAreDiscarded(t *testing.T) {
	q, transport := newTestQueue(t, Options{Timeout: 10 * time.Millisecond})
	release := make(chan struct{})
	var handled sync.WaitGroup
	handled.Add(3)
	require.NoError(t, q.Consume(context.Background(), 3, func(ctx context.Context, req echoRequest) Result {
		defer handled.Done()
		<-release
		return Result{Success: true}
	}))

	for i := 0; i < 3; i++ {
		res := q.Publish(context.Background(), echoRequest{Command: "echo"})
		assert.False(t, res.Success)
	}
	close(release)
	handled.Wait()

	assert.Eventually(t, func() bool {
		transport.mu.Lock()
		defer transport.mu.Unlock()
		return len(transport.replies) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestConsumeRespectsConcurrency(t *testing.T) {
	q, _ := newTestQueue(t, Options{Timeout: 5 * time.Second})

	var running, peak atomic.Int32
	require.NoError(t, q.Consume(context.Background(), 1, func(ctx context.Context, req echoRequest) Result {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		running.Add(-1)
		return Result{Success: true}
	}))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.True(t, q.Publish(context.Background(), echoRequest{Command: "echo"}).Success)
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, peak.Load())
}

func TestConsumeTwiceFails(t *testing.T) {
	q, _ := newTestQueue(t, Options{})
	require.NoError(t, q.Consume(context.Background(), 1, echoHandler))
	assert.Error(t, q.Consume(context.Background(), 1, echoHandler))
}

func TestPublishRepeatable(t *testing.T) {
	q, _ := newTestQueue(t, Options{})

	_, err := q.PublishRepeatable("not a cron", echoRequest{Command: "echo"})
	assert.Error(t, err)

	_, err = q.PublishRepeatable("*/5 * * * *", echoRequest{Command: "bogus"})
	assert.Error(t, err)

	_, err = q.PublishRepeatable("*/5 * * * *", echoRequest{Command: "echo"})
	assert.NoError(t, err)
}

func TestShutdownRejectsNewWorkAndDrainsInFlight(t *testing.T) {
	q, _ := newTestQueue(t, Options{Timeout: time.Second})

	started := make(chan struct{})
	release := make(chan struct{})
	require.NoError(t, q.Consume(context.Background(), 1, func(ctx context.Context, req echoRequest) Result {
		close(started)
		<-release
		return Result{Success: true, Message: req.Value}
	}))

	done := make(chan Result, 1)
	go func() { done <- q.Publish(context.Background(), echoRequest{Command: "slow", Value: "drained"}) }()
	<-started

	q.Shutdown()
	res := q.Publish(context.Background(), echoRequest{Command: "echo"})
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, ErrShuttingDown.Error())

	close(release)
	q.WaitForCompletion()

	res = <-done
	assert.True(t, res.Success)
	assert.Equal(t, "drained", res.Message)
}

// flakyTransport fails every Receive and every Ping.
type flakyTransport struct {
	*MemoryTransport
	pings atomic.Int32
}

func (t *flakyTransport) Receive(ctx context.Context, topic string) (Envelope, error) {
	return Envelope{}, errors.New("connection refused")
}

func (t *flakyTransport) Ping(ctx context.Context) error {
	t.pings.Add(1)
	return errors.New("connection refused")
}

func TestReconnectGivesUpAfterMaxAttempts(t *testing.T) {
	transport := &flakyTransport{MemoryTransport: NewMemoryTransport()}

	fatal := make(chan error, 1)
	q := New[echoRequest]("flaky", transport, Options{
		MaxReconnectAttempts: 3,
		ReconnectBase:        time.Millisecond,
		OnFatal:              func(err error) { fatal <- err },
	})
	defer q.Close()

	require.NoError(t, q.Consume(context.Background(), 1, echoHandler))

	select {
	case err := <-fatal:
		assert.Contains(t, err.Error(), "giving up after 3 reconnect attempts")
	case <-time.After(2 * time.Second):
		t.Fatal("expected reconnection to give up")
	}
	assert.EqualValues(t, 3, transport.pings.Load())
}
