package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/iago/food-search-pipeline/internal/logger"
)

const (
	DefaultMaxAttempts = 10
	DefaultDelay       = 5 * time.Second
)

// Options configure Retry. Zero values select the defaults.
type Options struct {
	MaxAttempts uint
	Delay       time.Duration
	Logger      *zap.Logger
}

// Retry runs op until it succeeds, attempting it at most MaxAttempts times
// with a fixed Delay between attempts. Callers treat the returned error as
// fatal.
func Retry[T any](ctx context.Context, name string, opts Options, op func(context.Context) (T, error)) (T, error) {
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Delay <= 0 {
		opts.Delay = DefaultDelay
	}
	log := logger.OrNop(opts.Logger)

	attempt := uint(0)
	result, err := backoff.Retry(ctx, func() (T, error) {
		attempt++
		value, err := op(ctx)
		if err != nil {
			log.Warn(name+" not ready",
				zap.Uint("attempt", attempt),
				zap.Uint("max_attempts", opts.MaxAttempts),
				zap.Error(err),
			)
			return value, err
		}
		return value, nil
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(opts.Delay)),
		backoff.WithMaxTries(opts.MaxAttempts),
		backoff.WithMaxElapsedTime(0),
	)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("%s not ready after %d attempts: %w", name, attempt, err)
	}
	if attempt > 1 {
		log.Info(name+" ready", zap.Uint("attempts", attempt))
	}
	return result, nil
}

// Do is Retry for operations without a result.
func Do(ctx context.Context, name string, opts Options, op func(context.Context) error) error {
	_, err := Retry(ctx, name, opts, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}
