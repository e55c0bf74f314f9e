package broker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iago/food-search-pipeline/internal/config"
)

// MemoryBroker is an in-process broker with RabbitMQ delivery semantics:
// unacknowledged deliveries return to their queue, flagged redelivered,
// when the channel that received them closes. It is used for local runs
// and tests.
type MemoryBroker struct {
	mu      sync.Mutex
	queues  map[string]*memoryQueue
	dials   atomic.Int64
	dropped map[string][][]byte
}

type memoryMessage struct {
	body        []byte
	redelivered bool
}

type memoryQueue struct {
	messages chan memoryMessage
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		queues:  make(map[string]*memoryQueue),
		dropped: make(map[string][][]byte),
	}
}

func (b *MemoryBroker) Dial(ctx context.Context, _ string, _ config.BrokerConfig) (Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.dials.Add(1)
	return &memoryConnection{broker: b}, nil
}

// Dials reports how many connections were opened.
func (b *MemoryBroker) Dials() int64 {
	return b.dials.Load()
}

// Len reports how many messages wait in name, excluding in-flight ones.
func (b *MemoryBroker) Len(name string) int {
	return len(b.queue(name).messages)
}

// Dropped returns the bodies negatively acknowledged without requeue.
func (b *MemoryBroker) Dropped(name string) [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([][]byte(nil), b.dropped[name]...)
}

// Next waits for the next message on name and removes it from the queue.
func (b *MemoryBroker) Next(ctx context.Context, name string) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case message := <-b.queue(name).messages:
		return message.body, nil
	}
}

func (b *MemoryBroker) queue(name string) *memoryQueue {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.queues[name]
	if !ok {
		q = &memoryQueue{messages: make(chan memoryMessage, 1024)}
		b.queues[name] = q
	}
	return q
}

func (b *MemoryBroker) enqueue(name string, message memoryMessage) {
	b.queue(name).messages <- message
}

func (b *MemoryBroker) drop(name string, body []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dropped[name] = append(b.dropped[name], body)
}

type memoryConnection struct {
	broker *MemoryBroker

	mu       sync.Mutex
	closed   bool
	channels []*memoryChannel
}

func (c *memoryConnection) Channel() (Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, amqp.ErrClosed
	}
	ch := &memoryChannel{
		broker:  c.broker,
		done:    make(chan struct{}),
		unacked: make(map[uint64]pendingDelivery),
	}
	c.channels = append(c.channels, ch)
	return ch, nil
}

func (c *memoryConnection) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close closes the connection and every channel opened on it.
func (c *memoryConnection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return amqp.ErrClosed
	}
	c.closed = true
	channels := c.channels
	c.channels = nil
	c.mu.Unlock()

	for _, ch := range channels {
		_ = ch.Close()
	}
	return nil
}

type pendingDelivery struct {
	queue   string
	message memoryMessage
}

type memoryChannel struct {
	broker *MemoryBroker

	mu      sync.Mutex
	closed  bool
	done    chan struct{}
	tag     uint64
	unacked map[uint64]pendingDelivery
	wg      sync.WaitGroup
}

func (c *memoryChannel) QueueDeclare(name string, _, _, _, _ bool, _ amqp.Table) (amqp.Queue, error) {
	if c.IsClosed() {
		return amqp.Queue{}, amqp.ErrClosed
	}
	q := c.broker.queue(name)
	return amqp.Queue{Name: name, Messages: len(q.messages)}, nil
}

func (c *memoryChannel) Qos(_, _ int, _ bool) error {
	if c.IsClosed() {
		return amqp.ErrClosed
	}
	return nil
}

func (c *memoryChannel) PublishWithContext(ctx context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if c.IsClosed() {
		return amqp.ErrClosed
	}
	if exchange != "" {
		return amqp.ErrClosed
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case c.broker.queue(key).messages <- memoryMessage{body: append([]byte(nil), msg.Body...)}:
		return nil
	}
}

func (c *memoryChannel) Consume(queue, consumer string, _, _, _, _ bool, _ amqp.Table) (<-chan amqp.Delivery, error) {
	if c.IsClosed() {
		return nil, amqp.ErrClosed
	}
	q := c.broker.queue(queue)
	out := make(chan amqp.Delivery)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer close(out)
		for {
			select {
			case <-c.done:
				return
			case message := <-q.messages:
				c.mu.Lock()
				if c.closed {
					c.mu.Unlock()
					message.redelivered = true
					c.broker.enqueue(queue, message)
					return
				}
				c.tag++
				tag := c.tag
				c.unacked[tag] = pendingDelivery{queue: queue, message: message}
				c.mu.Unlock()

				delivery := amqp.Delivery{
					Acknowledger: c,
					ConsumerTag:  consumer,
					DeliveryTag:  tag,
					Redelivered:  message.redelivered,
					RoutingKey:   queue,
					ContentType:  "application/json",
					Timestamp:    time.Now().UTC(),
					Body:         message.body,
				}
				select {
				case out <- delivery:
				case <-c.done:
					return
				}
			}
		}
	}()
	return out, nil
}

func (c *memoryChannel) settle(tag uint64) (pendingDelivery, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return pendingDelivery{}, amqp.ErrClosed
	}
	pending, ok := c.unacked[tag]
	if !ok {
		return pendingDelivery{}, &amqp.Error{Code: amqp.PreconditionFailed, Reason: "unknown delivery tag"}
	}
	delete(c.unacked, tag)
	return pending, nil
}

func (c *memoryChannel) Ack(tag uint64, _ bool) error {
	_, err := c.settle(tag)
	return err
}

func (c *memoryChannel) Nack(tag uint64, _ bool, requeue bool) error {
	pending, err := c.settle(tag)
	if err != nil {
		return err
	}
	if requeue {
		pending.message.redelivered = true
		c.broker.enqueue(pending.queue, pending.message)
		return nil
	}
	c.broker.drop(pending.queue, pending.message.body)
	return nil
}

func (c *memoryChannel) Reject(tag uint64, requeue bool) error {
	return c.Nack(tag, false, requeue)
}

func (c *memoryChannel) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close stops consumers and returns unacknowledged deliveries to their
// queues.
func (c *memoryChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return amqp.ErrClosed
	}
	c.closed = true
	close(c.done)
	pending := c.unacked
	c.unacked = make(map[uint64]pendingDelivery)
	c.mu.Unlock()

	c.wg.Wait()
	for _, delivery := range pending {
		delivery.message.redelivered = true
		c.broker.enqueue(delivery.queue, delivery.message)
	}
	return nil
}
