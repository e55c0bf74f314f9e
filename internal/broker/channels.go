package broker

import (
	"context"
	"errors"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iago/food-search-pipeline/internal/outcome"
)

// ChannelProvider caches one channel per broker name for its own lifetime,
// typically one request scope or one stage process.
type ChannelProvider struct {
	connections *ConnectionProvider

	mu       sync.Mutex
	channels map[string]Channel
}

func NewChannelProvider(connections *ConnectionProvider) *ChannelProvider {
	return &ChannelProvider{
		connections: connections,
		channels:    make(map[string]Channel),
	}
}

// Get returns the channel cached for name or opens one on the broker's
// connection. Options only apply when a channel is opened.
func (p *ChannelProvider) Get(ctx context.Context, name string, opts ChannelOptions) (Channel, error) {
	p.mu.Lock()
	ch, ok := p.channels[name]
	if ok && ch.IsClosed() {
		delete(p.channels, name)
		ok = false
	}
	p.mu.Unlock()
	if ok {
		return ch, nil
	}

	conn, err := p.connections.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	if conn == nil || conn.IsClosed() {
		return nil, outcome.Internal(nil, "RabbitMQ Connection is not open")
	}

	opened, err := conn.Channel()
	if err != nil {
		return nil, outcome.Internal(err, "open channel on %s", name)
	}
	if opts.PrefetchCount > 0 {
		if err := opened.Qos(opts.PrefetchCount, 0, false); err != nil {
			_ = opened.Close()
			return nil, outcome.Internal(err, "set prefetch on %s", name)
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if existing, ok := p.channels[name]; ok && !existing.IsClosed() {
		_ = opened.Close()
		return existing, nil
	}
	p.channels[name] = opened
	return opened, nil
}

// Close closes every channel opened by this provider.
func (p *ChannelProvider) Close() error {
	p.mu.Lock()
	channels := p.channels
	p.channels = make(map[string]Channel)
	p.mu.Unlock()

	var errs []error
	for _, ch := range channels {
		if ch.IsClosed() {
			continue
		}
		if err := ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
