package broker

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iago/food-search-pipeline/internal/config"
)

// Channel is the subset of *amqp.Channel the pipeline relies on.
type Channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	Qos(prefetchCount, prefetchSize int, global bool) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	IsClosed() bool
	Close() error
}

// Connection is a live broker connection able to open channels.
type Connection interface {
	Channel() (Channel, error)
	IsClosed() bool
	Close() error
}

// Dialer opens a connection for a named broker section.
type Dialer interface {
	Dial(ctx context.Context, name string, cfg config.BrokerConfig) (Connection, error)
}

// Settings resolves broker sections by name.
type Settings interface {
	Broker(name string) (config.BrokerConfig, bool)
}

// SettingsFunc adapts a lookup function to Settings.
type SettingsFunc func(name string) (config.BrokerConfig, bool)

func (f SettingsFunc) Broker(name string) (config.BrokerConfig, bool) {
	return f(name)
}

// ChannelOptions are applied once, when a channel is opened.
type ChannelOptions struct {
	PrefetchCount int
}

// DeclareQueue declares a durable, non-exclusive queue. Every producer and
// consumer declares with identical arguments so redeclaration never fails.
func DeclareQueue(ch Channel, name string) error {
	_, err := ch.QueueDeclare(name, true, false, false, false, nil)
	return err
}
