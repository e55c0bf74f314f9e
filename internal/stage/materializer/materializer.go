package materializer

import (
	"context"

	"go.uber.org/zap"

	"github.com/iago/food-search-pipeline/internal/domain"
	"github.com/iago/food-search-pipeline/internal/logger"
)

// Store persists resolved items and returns where they were written.
type Store interface {
	Write(ctx context.Context, items []string) (string, error)
}

type Next interface {
	Execute(ctx context.Context, envelope domain.Envelope[string]) error
}

type Handler struct {
	store Store
	next  Next
}

func New(store Store, next Next) *Handler {
	return &Handler{store: store, next: next}
}

func (h *Handler) Handle(ctx context.Context, envelope domain.Envelope[[]string]) error {
	path, err := h.store.Write(ctx, envelope.Data)
	if err != nil {
		return err
	}
	if err := h.next.Execute(ctx, domain.Derive(envelope, path)); err != nil {
		return err
	}
	logger.FromContext(ctx).Info("results written", zap.String("file_path", path), zap.Int("items", len(envelope.Data)))
	return nil
}
