package resolver

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iago/food-search-pipeline/internal/cache"
	"github.com/iago/food-search-pipeline/internal/domain"
)

type recordingNext struct {
	sent []domain.Envelope[[]string]
	err  error
}

func (n *recordingNext) Execute(_ context.Context, envelope domain.Envelope[[]string]) error {
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, envelope)
	return nil
}

func newIndex(t *testing.T) (*cache.RedisStore, *miniredis.Miniredis) {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	_, err := server.SAdd("red", "dish-42", "dish-7")
	require.NoError(t, err)
	_, err = server.SAdd("spicy", "dish-42")
	require.NoError(t, err)
	return cache.NewRedisStore(client), server
}

func TestHandleForwardsIntersectionWithSameID(t *testing.T) {
	index, _ := newIndex(t)
	next := &recordingNext{}
	id := uuid.Must(uuid.NewV7())

	err := New(index, next).Handle(context.Background(), domain.Envelope[[]string]{ID: id, Data: []string{"red", "spicy"}})

	require.NoError(t, err)
	require.Len(t, next.sent, 1)
	assert.Equal(t, id, next.sent[0].ID)
	assert.Equal(t, []string{"dish-42"}, next.sent[0].Data)
}

func TestHandleEmptyIntersectionPublishesNothing(t *testing.T) {
	index, _ := newIndex(t)
	next := &recordingNext{}

	err := New(index, next).Handle(context.Background(), domain.Envelope[[]string]{
		ID:   uuid.Must(uuid.NewV7()),
		Data: []string{"red", "sweet"},
	})

	require.NoError(t, err)
	assert.Empty(t, next.sent)
}

func TestHandlePropagatesFailures(t *testing.T) {
	index, server := newIndex(t)
	envelope := domain.Envelope[[]string]{ID: uuid.Must(uuid.NewV7()), Data: []string{"red"}}

	err := New(index, &recordingNext{err: errors.New("broker down")}).Handle(context.Background(), envelope)
	assert.EqualError(t, err, "broker down")

	server.Close()
	err = New(index, &recordingNext{}).Handle(context.Background(), envelope)
	assert.Error(t, err)
}
