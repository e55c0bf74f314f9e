package broker

import (
	"context"
	"errors"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/iago/food-search-pipeline/internal/logger"
	"github.com/iago/food-search-pipeline/internal/outcome"
)

// ConnectionProvider dials and caches one connection per broker name.
// Concurrent first requests for the same name share a single dial.
type ConnectionProvider struct {
	settings Settings
	dialer   Dialer
	logger   *zap.Logger

	mu     sync.RWMutex
	conns  map[string]Connection
	closed bool

	dials singleflight.Group
}

func NewConnectionProvider(settings Settings, dialer Dialer, log *zap.Logger) *ConnectionProvider {
	return &ConnectionProvider{
		settings: settings,
		dialer:   dialer,
		logger:   logger.OrNop(log),
		conns:    make(map[string]Connection),
	}
}

// Get returns the cached connection for name, dialling it on first use.
// A missing broker section yields a NotFound outcome; a failed dial is not
// cached so the next caller dials again.
func (p *ConnectionProvider) Get(ctx context.Context, name string) (Connection, error) {
	if conn, ok := p.cached(name); ok {
		return conn, nil
	}

	result, err, _ := p.dials.Do(name, func() (any, error) {
		if conn, ok := p.cached(name); ok {
			return conn, nil
		}

		cfg, ok := p.settings.Broker(name)
		if !ok {
			return nil, outcome.NotFoundf("RabbitMQ:%s section not found", name)
		}

		conn, err := p.dialer.Dial(ctx, name, cfg)
		if err != nil {
			p.logger.Warn("broker connection failed", zap.String("broker", name), zap.Error(err))
			return nil, outcome.Internal(err, "connect to broker %s", name)
		}

		p.mu.Lock()
		defer p.mu.Unlock()
		if p.closed {
			_ = conn.Close()
			return nil, outcome.Internal(nil, "connection provider is shut down")
		}
		p.conns[name] = conn
		p.logger.Info("broker connection established", zap.String("broker", name), zap.String("host", cfg.HostName))
		return conn, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(Connection), nil
}

func (p *ConnectionProvider) cached(name string) (Connection, bool) {
	p.mu.RLock()
	conn, ok := p.conns[name]
	p.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if !conn.IsClosed() {
		return conn, true
	}

	p.mu.Lock()
	if p.conns[name] == conn {
		delete(p.conns, name)
	}
	p.mu.Unlock()
	p.logger.Warn("evicted closed broker connection", zap.String("broker", name))
	return nil, false
}

// Close closes every cached connection. Connections the broker already
// dropped are skipped.
func (p *ConnectionProvider) Close() error {
	p.mu.Lock()
	conns := p.conns
	p.conns = make(map[string]Connection)
	p.closed = true
	p.mu.Unlock()

	var errs []error
	for name, conn := range conns {
		if conn.IsClosed() {
			continue
		}
		if err := conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, err)
			p.logger.Warn("closing broker connection failed", zap.String("broker", name), zap.Error(err))
		}
	}
	return errors.Join(errs...)
}
