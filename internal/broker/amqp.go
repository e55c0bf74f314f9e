package broker

import (
	"context"
	"fmt"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iago/food-search-pipeline/internal/config"
)

// AMQPDialer dials RabbitMQ with amqp091-go.
type AMQPDialer struct {
	// ConnectTimeout bounds the TCP dial and AMQP handshake.
	ConnectTimeout time.Duration
	// ClientName is reported to the broker as the connection name.
	ClientName string
}

func (d AMQPDialer) Dial(ctx context.Context, name string, cfg config.BrokerConfig) (Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	timeout := d.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	properties := amqp.NewConnectionProperties()
	properties.SetClientConnectionName(strings.TrimSpace(d.ClientName + " " + name))

	conn, err := amqp.DialConfig(BrokerURI(cfg), amqp.Config{
		Dial:       amqp.DefaultDial(timeout),
		Properties: properties,
		Heartbeat:  10 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("dial %s:%d: %w", cfg.HostName, cfg.Port, err)
	}
	return &amqpConnection{conn: conn}, nil
}

// BrokerURI renders cfg as an amqp:// URI.
func BrokerURI(cfg config.BrokerConfig) string {
	vhost := cfg.VHost
	if vhost == "" {
		vhost = "/"
	}
	return amqp.URI{
		Scheme:   "amqp",
		Host:     cfg.HostName,
		Port:     cfg.Port,
		Username: cfg.UserName,
		Password: cfg.Password,
		Vhost:    vhost,
	}.String()
}

type amqpConnection struct {
	conn *amqp.Connection
}

func (c *amqpConnection) Channel() (Channel, error) {
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, err
	}
	return ch, nil
}

func (c *amqpConnection) IsClosed() bool {
	return c.conn.IsClosed()
}

func (c *amqpConnection) Close() error {
	return c.conn.Close()
}
