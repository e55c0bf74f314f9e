package repository

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iago/food-search-pipeline/internal/domain"
)

var (
	ErrNotFound       = errors.New("search request not found")
	ErrStatusConflict = errors.New("search request status cannot change")
)

// SearchRequestRepository persists search requests and their lifecycle.
type SearchRequestRepository interface {
	Create(ctx context.Context, request *domain.SearchRequest) error
	Get(ctx context.Context, id uuid.UUID) (*domain.SearchRequest, error)
	// Complete marks the request completed with filePath. Re-completing a
	// completed request leaves it unchanged and returns it.
	Complete(ctx context.Context, id uuid.UUID, filePath string, finishedAt time.Time) (*domain.SearchRequest, error)
	Fail(ctx context.Context, id uuid.UUID, finishedAt time.Time) error
	Ping(ctx context.Context) error
}

// MemorySearchRequests stores requests in memory. The API falls back to it
// when no database is configured.
type MemorySearchRequests struct {
	mu       sync.RWMutex
	requests map[uuid.UUID]*domain.SearchRequest
}

func NewMemorySearchRequests() *MemorySearchRequests {
	return &MemorySearchRequests{
		requests: make(map[uuid.UUID]*domain.SearchRequest),
	}
}

func (r *MemorySearchRequests) Create(_ context.Context, request *domain.SearchRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.requests[request.ID] = cloneRequest(request)
	return nil
}

func (r *MemorySearchRequests) Get(_ context.Context, id uuid.UUID) (*domain.SearchRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	request, ok := r.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRequest(request), nil
}

func (r *MemorySearchRequests) Complete(
	_ context.Context,
	id uuid.UUID,
	filePath string,
	finishedAt time.Time,
) (*domain.SearchRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	request, ok := r.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !request.Status.CanTransitionTo(domain.RequestStatusCompleted) {
		return nil, ErrStatusConflict
	}
	if request.Status != domain.RequestStatusCompleted {
		request.Status = domain.RequestStatusCompleted
		request.FilePath = filePath
		finished := finishedAt.UTC()
		request.FinishedAt = &finished
	}
	return cloneRequest(request), nil
}

func (r *MemorySearchRequests) Fail(_ context.Context, id uuid.UUID, finishedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	request, ok := r.requests[id]
	if !ok {
		return ErrNotFound
	}
	if !request.Status.CanTransitionTo(domain.RequestStatusFailed) {
		return ErrStatusConflict
	}
	if request.Status != domain.RequestStatusFailed {
		request.Status = domain.RequestStatusFailed
		finished := finishedAt.UTC()
		request.FinishedAt = &finished
	}
	return nil
}

func (r *MemorySearchRequests) Ping(context.Context) error {
	return nil
}

func cloneRequest(request *domain.SearchRequest) *domain.SearchRequest {
	if request == nil {
		return nil
	}
	clone := *request
	clone.Tags = append([]string(nil), request.Tags...)
	if request.FinishedAt != nil {
		finished := *request.FinishedAt
		clone.FinishedAt = &finished
	}
	return &clone
}

// Len reports how many requests are stored.
func (r *MemorySearchRequests) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.requests)
}

// Range calls fn with a copy of every stored request.
func (r *MemorySearchRequests) Range(fn func(domain.SearchRequest)) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, request := range r.requests {
		fn(*cloneRequest(request))
	}
}
