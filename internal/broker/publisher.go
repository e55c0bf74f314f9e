package broker

import (
	"context"
	"encoding/json"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iago/food-search-pipeline/internal/domain"
	"github.com/iago/food-search-pipeline/internal/outcome"
)

// PublishObserver is notified of every publish attempt.
type PublishObserver interface {
	ObservePublish(route domain.Route, err error)
}

// Publisher serializes payloads as JSON and sends them to a queue through the
// default exchange. It makes exactly one attempt per call.
type Publisher struct {
	channels *ChannelProvider
	observer PublishObserver

	declared sync.Map
}

func NewPublisher(channels *ChannelProvider, observer PublishObserver) *Publisher {
	return &Publisher{channels: channels, observer: observer}
}

func (p *Publisher) Publish(ctx context.Context, route domain.Route, payload any) error {
	err := p.publish(ctx, route, payload)
	if p.observer != nil {
		p.observer.ObservePublish(route, err)
	}
	return err
}

func (p *Publisher) PublishTo(ctx context.Context, brokerName, destination string, payload any) error {
	return p.Publish(ctx, domain.Route{Broker: brokerName, Destination: destination}, payload)
}

func (p *Publisher) publish(ctx context.Context, route domain.Route, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return outcome.Internal(err, "serialize message for %s", route)
	}

	ch, err := p.channels.Get(ctx, route.Broker, ChannelOptions{})
	if err != nil {
		return outcome.Wrap(outcome.NotFound, err, "channel for %s unavailable", route.Broker)
	}
	if ch.IsClosed() {
		return outcome.NotFoundf("channel for %s is not open", route.Broker)
	}

	if err := p.declareOnce(ch, route); err != nil {
		return err
	}

	err = ch.PublishWithContext(ctx, "", route.Destination, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
	if err != nil {
		return outcome.Internal(err, "publish to %s", route)
	}
	return nil
}

func (p *Publisher) declareOnce(ch Channel, route domain.Route) error {
	key := route.String()
	if _, ok := p.declared.Load(key); ok {
		return nil
	}
	if err := DeclareQueue(ch, route.Destination); err != nil {
		return outcome.Internal(err, "declare queue %s", route)
	}
	p.declared.Store(key, struct{}{})
	return nil
}
