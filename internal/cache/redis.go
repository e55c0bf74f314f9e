package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iago/food-search-pipeline/internal/config"
	"github.com/iago/food-search-pipeline/internal/outcome"
)

// RedisStore keeps the tag index as Redis sets (one set of item names per
// tag) and result paths as plain keys with an expiry.
type RedisStore struct {
	client redis.UniversalClient
}

func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Intersect returns the items tagged with every tag.
func (s *RedisStore) Intersect(ctx context.Context, tags []string) ([]string, error) {
	if len(tags) == 0 {
		return nil, nil
	}
	items, err := s.client.SInter(ctx, tags...).Result()
	if err != nil {
		return nil, outcome.Internal(err, "intersect %d tags", len(tags))
	}
	return items, nil
}

func (s *RedisStore) AddMembers(ctx context.Context, tag string, items ...string) error {
	if len(items) == 0 {
		return nil
	}
	members := make([]any, 0, len(items))
	for _, item := range items {
		members = append(members, item)
	}
	if err := s.client.SAdd(ctx, tag, members...).Err(); err != nil {
		return outcome.Internal(err, "add items to tag %s", tag)
	}
	return nil
}

func (s *RedisStore) GetResult(ctx context.Context, tags []string) (string, bool, error) {
	path, err := s.client.Get(ctx, ResultKey(tags)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, outcome.Internal(err, "read result cache")
	}
	return path, true, nil
}

func (s *RedisStore) SetResult(ctx context.Context, tags []string, path string, ttl time.Duration) error {
	if err := s.client.Set(ctx, ResultKey(tags), path, ttl).Err(); err != nil {
		return outcome.Internal(err, "write result cache")
	}
	return nil
}
