package app

import (
	"context"

	"go.uber.org/zap"

	"github.com/iago/food-search-pipeline/internal/bootstrap"
	"github.com/iago/food-search-pipeline/internal/cache"
	"github.com/iago/food-search-pipeline/internal/config"
	"github.com/iago/food-search-pipeline/internal/repository"
)

func retryOptions(cfg config.Config, log *zap.Logger) bootstrap.Options {
	return bootstrap.Options{
		MaxAttempts: cfg.Bootstrap.MaxAttempts,
		Delay:       cfg.Bootstrap.Delay,
		Logger:      log,
	}
}

// ConnectRedis waits for Redis to answer PING. The returned close function
// releases the client.
func ConnectRedis(ctx context.Context, cfg config.Config, log *zap.Logger) (*cache.RedisStore, func() error, error) {
	client := cache.NewRedisClient(cfg.Redis)
	store := cache.NewRedisStore(client)
	if err := bootstrap.Do(ctx, "Redis", retryOptions(cfg, log), store.Ping); err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	log.Info("connected to Redis", zap.String("addr", cfg.Redis.Addr()))
	return store, client.Close, nil
}

// ConnectPostgres waits for PostgreSQL and applies the schema migrations.
func ConnectPostgres(ctx context.Context, cfg config.Config, log *zap.Logger) (*repository.PostgresSearchRequests, error) {
	repo, err := bootstrap.Retry(ctx, "PostgreSQL", retryOptions(cfg, log), func(ctx context.Context) (*repository.PostgresSearchRequests, error) {
		repo, err := repository.NewPostgresSearchRequests(ctx, cfg.Postgres.DSN())
		if err != nil {
			return nil, err
		}
		if err := repo.Migrate(ctx); err != nil {
			repo.Close()
			return nil, err
		}
		return repo, nil
	})
	if err != nil {
		return nil, err
	}
	log.Info("connected to PostgreSQL and migrations applied")
	return repo, nil
}
