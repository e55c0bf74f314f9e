package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iago/food-search-pipeline/internal/outcome"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client), server
}

func TestResultKeyHashesSeparatedTags(t *testing.T) {
	// sha256("red\x00spicy")
	assert.Equal(t, "files:337b5ad46e25f6ab7b689449e88ebc656481dc5b69b4fb2dc927d2376e5a468f", ResultKey([]string{"red", "spicy"}))
	assert.NotEqual(t, ResultKey([]string{"redspicy"}), ResultKey([]string{"red", "spicy"}))
	assert.NotEqual(t, ResultKey([]string{"ab", "c"}), ResultKey([]string{"a", "bc"}))
	assert.NotEqual(t, ResultKey([]string{"red", "spicy"}), ResultKey([]string{"spicy", "red"}))
	assert.Len(t, ResultKey(nil), len("files:")+64)
}

func TestRedisStoreKeepsSplitTagSetsApart(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()
	require.NoError(t, store.SetResult(ctx, []string{"ab", "c"}, "/out/ab_c.txt", time.Minute))

	_, ok, err := store.GetResult(ctx, []string{"a", "bc"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStoreIntersect(t *testing.T) {
	store, server := newRedisStore(t)
	_, err := server.SAdd("red", "dish-42", "dish-7")
	require.NoError(t, err)
	_, err = server.SAdd("spicy", "dish-42", "dish-9")
	require.NoError(t, err)

	items, err := store.Intersect(context.Background(), []string{"red", "spicy"})
	require.NoError(t, err)
	assert.Equal(t, []string{"dish-42"}, items)

	items, err = store.Intersect(context.Background(), []string{"red", "unknown"})
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestRedisStoreResultRoundTripWithExpiry(t *testing.T) {
	store, server := newRedisStore(t)
	tags := []string{"red", "spicy"}

	_, ok, err := store.GetResult(context.Background(), tags)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.SetResult(context.Background(), tags, "/out/a.txt", 10*time.Minute))

	assert.Equal(t, 10*time.Minute, server.TTL(ResultKey(tags)))
	path, ok, err := store.GetResult(context.Background(), tags)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "/out/a.txt", path)

	server.FastForward(11 * time.Minute)
	_, ok, err = store.GetResult(context.Background(), tags)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStoreAddMembers(t *testing.T) {
	store, server := newRedisStore(t)

	require.NoError(t, store.AddMembers(context.Background(), "vegan", "tofu", "salad"))

	members, err := server.Members("vegan")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"tofu", "salad"}, members)
}

func TestRedisStoreFailuresAreInternal(t *testing.T) {
	store, server := newRedisStore(t)
	server.Close()

	err := store.SetResult(context.Background(), []string{"red"}, "/out/a.txt", time.Minute)

	require.Error(t, err)
	assert.Equal(t, outcome.InternalServerError, outcome.StatusOf(err))
}

func TestMemoryStoreMirrorsRedisSemantics(t *testing.T) {
	store := NewMemoryStore(2)
	ctx := context.Background()
	require.NoError(t, store.AddMembers(ctx, "red", "dish-42", "dish-7"))
	require.NoError(t, store.AddMembers(ctx, "spicy", "dish-42"))

	items, err := store.Intersect(ctx, []string{"red", "spicy"})
	require.NoError(t, err)
	assert.Equal(t, []string{"dish-42"}, items)

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	store.now = func() time.Time { return now }
	require.NoError(t, store.SetResult(ctx, []string{"red"}, "/out/a.txt", time.Minute))
	ttl, ok := store.ResultTTL([]string{"red"})
	require.True(t, ok)
	assert.Equal(t, time.Minute, ttl)

	now = now.Add(2 * time.Minute)
	_, ok, err = store.GetResult(ctx, []string{"red"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStoreEvictsOldestResult(t *testing.T) {
	store := NewMemoryStore(2)
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	for i, tag := range []string{"a", "b", "c"} {
		at := base.Add(time.Duration(i) * time.Second)
		store.now = func() time.Time { return at }
		require.NoError(t, store.SetResult(ctx, []string{tag}, "/out/"+tag, 0))
	}

	_, ok, _ := store.GetResult(ctx, []string{"a"})
	assert.False(t, ok)
	_, ok, _ = store.GetResult(ctx, []string{"c"})
	assert.True(t, ok)
}
