package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iago/food-search-pipeline/internal/broker"
	"github.com/iago/food-search-pipeline/internal/config"
	"github.com/iago/food-search-pipeline/internal/domain"
)

const testQueue = "SearchRequest"

type chanObserver struct {
	results chan string
}

func (o *chanObserver) ObserveDelivery(_, result string, _ time.Duration) {
	o.results <- result
}

type harness struct {
	memory    *broker.MemoryBroker
	conns     *broker.ConnectionProvider
	publisher *broker.Publisher
	observer  *chanObserver
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	memory := broker.NewMemoryBroker()
	settings := broker.SettingsFunc(func(string) (config.BrokerConfig, bool) {
		return config.BrokerConfig{HostName: "memory"}, true
	})
	conns := broker.NewConnectionProvider(settings, memory, nil)
	channels := broker.NewChannelProvider(conns)
	t.Cleanup(func() {
		_ = channels.Close()
		_ = conns.Close()
	})
	return &harness{
		memory:    memory,
		conns:     conns,
		publisher: broker.NewPublisher(channels, nil),
		observer:  &chanObserver{results: make(chan string, 16)},
	}
}

// run starts a worker and returns a stop function that cancels it, waits for
// it to return and closes its channel.
func run[T any](t *testing.T, h *harness, handler Handler[T], timeout time.Duration) func() {
	t.Helper()
	channels := broker.NewChannelProvider(h.conns)
	w := New(channels, handler, Options{
		Stage:          "resolver",
		Broker:         config.StageBroker,
		Queue:          testQueue,
		Prefetch:       4,
		HandlerTimeout: timeout,
		RestartDelay:   10 * time.Millisecond,
		Observer:       h.observer,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Start(ctx)
	}()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			cancel()
			<-done
			_ = channels.Close()
		})
	}
	t.Cleanup(stop)
	return stop
}

func (h *harness) send(t *testing.T, payload any) {
	t.Helper()
	require.NoError(t, h.publisher.PublishTo(context.Background(), config.StageBroker, testQueue, payload))
}

func (h *harness) nextResult(t *testing.T) string {
	t.Helper()
	select {
	case result := <-h.observer.results:
		return result
	case <-time.After(2 * time.Second):
		t.Fatal("no delivery observed")
		return ""
	}
}

func TestWorkerAcknowledgesProcessedMessage(t *testing.T) {
	h := newHarness(t)
	received := make(chan domain.Envelope[[]string], 1)
	run(t, h, func(_ context.Context, envelope domain.Envelope[[]string]) error {
		received <- envelope
		return nil
	}, time.Second)

	id := uuid.Must(uuid.NewV7())
	h.send(t, domain.Envelope[[]string]{ID: id, Data: []string{"red", "spicy"}})

	assert.Equal(t, string(ResultAcked), h.nextResult(t))
	envelope := <-received
	assert.Equal(t, id, envelope.ID)
	assert.Equal(t, []string{"red", "spicy"}, envelope.Data)
	assert.Zero(t, h.memory.Len(testQueue))
	assert.Empty(t, h.memory.Dropped(testQueue))
}

func TestWorkerAcknowledgesEmptyPayloadWithoutCallingHandler(t *testing.T) {
	h := newHarness(t)
	called := make(chan struct{}, 1)
	run(t, h, func(context.Context, domain.Envelope[[]string]) error {
		called <- struct{}{}
		return nil
	}, time.Second)

	h.send(t, domain.Envelope[[]string]{ID: uuid.Must(uuid.NewV7()), Data: []string{}})
	h.send(t, domain.Envelope[[]string]{ID: uuid.Nil, Data: []string{"red"}})

	assert.Equal(t, string(ResultSkipped), h.nextResult(t))
	assert.Equal(t, string(ResultSkipped), h.nextResult(t))
	assert.Empty(t, called)
	assert.Empty(t, h.memory.Dropped(testQueue))
}

func TestWorkerAcknowledgesMalformedMessage(t *testing.T) {
	h := newHarness(t)
	run(t, h, func(context.Context, domain.Envelope[[]string]) error {
		t.Error("handler must not run for malformed input")
		return nil
	}, time.Second)

	h.send(t, json.RawMessage(`{"id":"not-a-uuid","data":["red"]}`))

	assert.Equal(t, string(ResultMalformed), h.nextResult(t))
	assert.Empty(t, h.memory.Dropped(testQueue))
}

func TestWorkerDropsMessageWhenProcessingFails(t *testing.T) {
	h := newHarness(t)
	run(t, h, func(context.Context, domain.Envelope[string]) error {
		return errors.New("cache unavailable")
	}, time.Second)

	h.send(t, domain.Envelope[string]{ID: uuid.Must(uuid.NewV7()), Data: "/out/a.txt"})

	assert.Equal(t, string(ResultNacked), h.nextResult(t))
	assert.Len(t, h.memory.Dropped(testQueue), 1)
	assert.Zero(t, h.memory.Len(testQueue))
}

func TestWorkerHandlerTimeoutDropsMessage(t *testing.T) {
	h := newHarness(t)
	run(t, h, func(ctx context.Context, _ domain.Envelope[string]) error {
		<-ctx.Done()
		return ctx.Err()
	}, 20*time.Millisecond)

	h.send(t, domain.Envelope[string]{ID: uuid.Must(uuid.NewV7()), Data: "/out/a.txt"})

	assert.Equal(t, string(ResultNacked), h.nextResult(t))
	assert.Len(t, h.memory.Dropped(testQueue), 1)
}

func TestWorkerShutdownLeavesMessageForRedelivery(t *testing.T) {
	h := newHarness(t)
	started := make(chan struct{})
	stop := run(t, h, func(ctx context.Context, _ domain.Envelope[[]string]) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}, 0)

	id := uuid.Must(uuid.NewV7())
	h.send(t, domain.Envelope[[]string]{ID: id, Data: []string{"red"}})
	<-started
	stop()

	assert.Equal(t, string(ResultAbandoned), h.nextResult(t))
	assert.Empty(t, h.memory.Dropped(testQueue))
	require.Equal(t, 1, h.memory.Len(testQueue))

	received := make(chan domain.Envelope[[]string], 1)
	run(t, h, func(_ context.Context, envelope domain.Envelope[[]string]) error {
		received <- envelope
		return nil
	}, time.Second)

	assert.Equal(t, string(ResultAcked), h.nextResult(t))
	assert.Equal(t, id, (<-received).ID)
}

func TestWorkerResumesAfterConnectionLoss(t *testing.T) {
	h := newHarness(t)
	run(t, h, func(context.Context, domain.Envelope[[]string]) error {
		return nil
	}, time.Second)

	h.send(t, domain.Envelope[[]string]{ID: uuid.Must(uuid.NewV7()), Data: []string{"red"}})
	assert.Equal(t, string(ResultAcked), h.nextResult(t))

	conn, err := h.conns.Get(context.Background(), config.StageBroker)
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	h.send(t, domain.Envelope[[]string]{ID: uuid.Must(uuid.NewV7()), Data: []string{"spicy"}})
	assert.Equal(t, string(ResultAcked), h.nextResult(t))
	assert.Equal(t, int64(2), h.memory.Dials())
}

func TestIsEmpty(t *testing.T) {
	assert.True(t, isEmpty([]string(nil)))
	assert.True(t, isEmpty([]string{}))
	assert.True(t, isEmpty(""))
	assert.True(t, isEmpty(nil))
	assert.False(t, isEmpty([]string{"a"}))
	assert.False(t, isEmpty("path"))
	assert.False(t, isEmpty(0))
}
