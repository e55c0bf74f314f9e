package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iago/food-search-pipeline/internal/domain"
)

func pendingRequest(t *testing.T, repo *MemorySearchRequests) *domain.SearchRequest {
	t.Helper()
	request := &domain.SearchRequest{
		ID:        uuid.Must(uuid.NewV7()),
		Tags:      []string{"red", "spicy"},
		Status:    domain.RequestStatusPending,
		CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, repo.Create(context.Background(), request))
	return request
}

func TestMemorySearchRequestsCompleteIsIdempotent(t *testing.T) {
	repo := NewMemorySearchRequests()
	request := pendingRequest(t, repo)
	finished := time.Date(2026, 3, 1, 12, 0, 5, 0, time.UTC)

	completed, err := repo.Complete(context.Background(), request.ID, "/out/first.txt", finished)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestStatusCompleted, completed.Status)
	assert.Equal(t, "/out/first.txt", completed.FilePath)
	require.NotNil(t, completed.FinishedAt)
	assert.Equal(t, finished, *completed.FinishedAt)

	again, err := repo.Complete(context.Background(), request.ID, "/out/second.txt", finished.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, "/out/first.txt", again.FilePath)
	assert.Equal(t, finished, *again.FinishedAt)
}

func TestMemorySearchRequestsFailedIsTerminal(t *testing.T) {
	repo := NewMemorySearchRequests()
	request := pendingRequest(t, repo)
	ctx := context.Background()

	require.NoError(t, repo.Fail(ctx, request.ID, time.Now()))
	require.NoError(t, repo.Fail(ctx, request.ID, time.Now()))

	_, err := repo.Complete(ctx, request.ID, "/out/late.txt", time.Now())
	assert.ErrorIs(t, err, ErrStatusConflict)

	stored, err := repo.Get(ctx, request.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestStatusFailed, stored.Status)
	assert.Empty(t, stored.FilePath)
}

func TestMemorySearchRequestsCompletedCannotFail(t *testing.T) {
	repo := NewMemorySearchRequests()
	request := pendingRequest(t, repo)
	ctx := context.Background()

	_, err := repo.Complete(ctx, request.ID, "/out/a.txt", time.Now())
	require.NoError(t, err)

	assert.ErrorIs(t, repo.Fail(ctx, request.ID, time.Now()), ErrStatusConflict)
}

func TestMemorySearchRequestsUnknownID(t *testing.T) {
	repo := NewMemorySearchRequests()
	ctx := context.Background()
	id := uuid.Must(uuid.NewV7())

	_, err := repo.Get(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = repo.Complete(ctx, id, "/out/a.txt", time.Now())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, repo.Fail(ctx, id, time.Now()), ErrNotFound)
}

func TestMemorySearchRequestsReturnsCopies(t *testing.T) {
	repo := NewMemorySearchRequests()
	request := pendingRequest(t, repo)
	request.Tags[0] = "mutated"

	stored, err := repo.Get(context.Background(), request.ID)
	require.NoError(t, err)
	stored.Tags[1] = "mutated"

	again, err := repo.Get(context.Background(), request.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"red", "spicy"}, again.Tags)
}
