package worker

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/iago/food-search-pipeline/internal/broker"
	"github.com/iago/food-search-pipeline/internal/domain"
	"github.com/iago/food-search-pipeline/internal/logger"
)

const (
	DefaultPrefetch     = 16
	DefaultRestartDelay = 2 * time.Second
)

// Result is the terminal state of one delivery.
type Result string

const (
	ResultAcked     Result = "acked"
	ResultSkipped   Result = "skipped"
	ResultMalformed Result = "malformed"
	ResultNacked    Result = "nacked"
	ResultAbandoned Result = "abandoned"
)

var errStreamClosed = errors.New("delivery stream closed")

// Handler processes one valid envelope. A nil error acknowledges the
// delivery; any other error drops it.
type Handler[T any] func(ctx context.Context, envelope domain.Envelope[T]) error

// Observer is notified once per delivery with its terminal result.
type Observer interface {
	ObserveDelivery(stage, result string, elapsed time.Duration)
}

type Options struct {
	Stage          string
	Broker         string
	Queue          string
	Prefetch       int
	HandlerTimeout time.Duration
	RestartDelay   time.Duration
	Observer       Observer
	Logger         *zap.Logger
}

// Worker consumes one queue with manual acknowledgement. Up to Prefetch
// deliveries are processed concurrently.
type Worker[T any] struct {
	channels *broker.ChannelProvider
	handler  Handler[T]
	opts     Options
	logger   *zap.Logger
	slots    *semaphore.Weighted
}

func New[T any](channels *broker.ChannelProvider, handler Handler[T], opts Options) *Worker[T] {
	if opts.Prefetch <= 0 {
		opts.Prefetch = DefaultPrefetch
	}
	if opts.RestartDelay <= 0 {
		opts.RestartDelay = DefaultRestartDelay
	}
	log := logger.OrNop(opts.Logger).With(
		zap.String("stage", opts.Stage),
		zap.String("queue", opts.Queue),
	)
	return &Worker[T]{
		channels: channels,
		handler:  handler,
		opts:     opts,
		logger:   log,
		slots:    semaphore.NewWeighted(int64(opts.Prefetch)),
	}
}

// Start consumes until ctx is canceled, re-entering the consume loop after
// RestartDelay whenever the broker ends the delivery stream. Deliveries in
// flight at shutdown are left unacknowledged.
func (w *Worker[T]) Start(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		err := w.consume(ctx)
		if err == nil || ctx.Err() != nil {
			return
		}
		w.logger.Warn("consume loop stopped", zap.Error(err), zap.Duration("restart_in", w.opts.RestartDelay))

		timer := time.NewTimer(w.opts.RestartDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (w *Worker[T]) consume(ctx context.Context) error {
	ch, err := w.channels.Get(ctx, w.opts.Broker, broker.ChannelOptions{PrefetchCount: w.opts.Prefetch})
	if err != nil {
		return err
	}
	if err := broker.DeclareQueue(ch, w.opts.Queue); err != nil {
		return err
	}
	deliveries, err := ch.Consume(w.opts.Queue, w.opts.Stage+"-"+uuid.NewString(), false, false, false, false, nil)
	if err != nil {
		return err
	}
	w.logger.Info("consuming", zap.Int("prefetch", w.opts.Prefetch))

	var inflight sync.WaitGroup
	defer inflight.Wait()

	for {
		select {
		case <-ctx.Done():
			return nil
		case delivery, ok := <-deliveries:
			if !ok {
				return errStreamClosed
			}
			if err := w.slots.Acquire(ctx, 1); err != nil {
				return nil
			}
			inflight.Add(1)
			go func() {
				defer inflight.Done()
				defer w.slots.Release(1)
				w.handle(ctx, delivery)
			}()
		}
	}
}

func (w *Worker[T]) handle(ctx context.Context, delivery amqp.Delivery) {
	started := time.Now()
	result := w.process(ctx, delivery)
	if w.opts.Observer != nil {
		w.opts.Observer.ObserveDelivery(w.opts.Stage, string(result), time.Since(started))
	}
}

func (w *Worker[T]) process(ctx context.Context, delivery amqp.Delivery) Result {
	var envelope domain.Envelope[T]
	if err := json.Unmarshal(delivery.Body, &envelope); err != nil {
		w.logger.Warn("discarding malformed message", zap.Error(err))
		return w.ack(delivery, ResultMalformed)
	}

	log := w.logger.With(zap.String("request_id", envelope.ID.String()))
	if envelope.ID == uuid.Nil || isEmpty(envelope.Data) {
		log.Info("empty message acknowledged")
		return w.ack(delivery, ResultSkipped)
	}
	if w.handler == nil {
		return w.ack(delivery, ResultAcked)
	}

	handlerCtx := logger.WithContext(ctx, log)
	if w.opts.HandlerTimeout > 0 {
		var cancel context.CancelFunc
		handlerCtx, cancel = context.WithTimeout(handlerCtx, w.opts.HandlerTimeout)
		defer cancel()
	}

	err := w.handler(handlerCtx, envelope)
	if err == nil {
		return w.ack(delivery, ResultAcked)
	}
	if ctx.Err() != nil {
		log.Info("shutdown interrupted processing, leaving message for redelivery", zap.Error(err))
		return ResultAbandoned
	}

	log.Error("processing failed, dropping message", zap.Error(err), zap.Bool("redelivered", delivery.Redelivered))
	if nackErr := delivery.Nack(false, false); nackErr != nil {
		log.Warn("nack failed", zap.Error(nackErr))
	}
	return ResultNacked
}

func (w *Worker[T]) ack(delivery amqp.Delivery, result Result) Result {
	if err := delivery.Ack(false); err != nil {
		w.logger.Warn("ack failed", zap.Uint64("delivery_tag", delivery.DeliveryTag), zap.Error(err))
	}
	return result
}

func isEmpty(data any) bool {
	value := reflect.ValueOf(data)
	switch value.Kind() {
	case reflect.Invalid:
		return true
	case reflect.Slice, reflect.Map, reflect.String, reflect.Array:
		return value.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return value.IsNil()
	default:
		return false
	}
}
