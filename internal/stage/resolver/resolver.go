// Package resolver turns a set of search tags into the items tagged with all
// of them.
package resolver

import (
	"context"

	"go.uber.org/zap"

	"github.com/iago/food-search-pipeline/internal/domain"
	"github.com/iago/food-search-pipeline/internal/logger"
)

type Index interface {
	Intersect(ctx context.Context, tags []string) ([]string, error)
}

// Next is satisfied by the facade's ForwardResolved command.
type Next interface {
	Execute(ctx context.Context, envelope domain.Envelope[[]string]) error
}

type Handler struct {
	index Index
	next  Next
}

func New(index Index, next Next) *Handler {
	return &Handler{index: index, next: next}
}

// Handle publishes the intersection for the envelope's tags. An empty
// intersection ends the request here.
func (h *Handler) Handle(ctx context.Context, envelope domain.Envelope[[]string]) error {
	log := logger.FromContext(ctx)

	items, err := h.index.Intersect(ctx, envelope.Data)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		log.Info("no items match tags", zap.Strings("tags", envelope.Data))
		return nil
	}

	if err := h.next.Execute(ctx, domain.Derive(envelope, items)); err != nil {
		return err
	}
	log.Info("tags resolved", zap.Int("items", len(items)))
	return nil
}
