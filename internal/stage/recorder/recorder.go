// Package recorder completes search requests and warms the result cache so
// identical searches can be answered without running the pipeline.
package recorder

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iago/food-search-pipeline/internal/domain"
	"github.com/iago/food-search-pipeline/internal/logger"
	"github.com/iago/food-search-pipeline/internal/repository"
)

const DefaultResultTTL = 10 * time.Minute

type Records interface {
	Complete(ctx context.Context, id uuid.UUID, filePath string, finishedAt time.Time) (*domain.SearchRequest, error)
}

type ResultCache interface {
	SetResult(ctx context.Context, tags []string, path string, ttl time.Duration) error
}

type Handler struct {
	records Records
	cache   ResultCache
	ttl     time.Duration
	now     func() time.Time
}

func New(records Records, cache ResultCache, ttl time.Duration) *Handler {
	if ttl <= 0 {
		ttl = DefaultResultTTL
	}
	return &Handler{
		records: records,
		cache:   cache,
		ttl:     ttl,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Handle marks the request completed and caches its file path under the
// request's original tags. Unknown requests and requests that already failed
// are acknowledged without touching the cache.
func (h *Handler) Handle(ctx context.Context, envelope domain.Envelope[string]) error {
	log := logger.FromContext(ctx)

	record, err := h.records.Complete(ctx, envelope.ID, envelope.Data, h.now())
	switch {
	case errors.Is(err, repository.ErrNotFound):
		log.Warn("search request not found, skipping")
		return nil
	case errors.Is(err, repository.ErrStatusConflict):
		log.Warn("search request cannot be completed, skipping", zap.Error(err))
		return nil
	case err != nil:
		return err
	}

	if err := h.cache.SetResult(ctx, record.Tags, record.FilePath, h.ttl); err != nil {
		return err
	}
	log.Info("search request completed", zap.String("file_path", record.FilePath))
	return nil
}
