package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iago/food-search-pipeline/internal/domain"
	"github.com/iago/food-search-pipeline/internal/facade"
	"github.com/iago/food-search-pipeline/internal/logger"
	"github.com/iago/food-search-pipeline/internal/outcome"
	"github.com/iago/food-search-pipeline/internal/repository"
)

type ResultLookup interface {
	GetResult(ctx context.Context, tags []string) (string, bool, error)
}

// SubmitResult is either an accepted request id or a cached result path.
type SubmitResult struct {
	ID       uuid.UUID
	FilePath string
	Cached   bool
}

// SearchService starts pipeline runs. Records and results are optional:
// without them searches are published but cannot be looked up.
type SearchService struct {
	scopes  facade.ScopeFactory
	records repository.SearchRequestRepository
	results ResultLookup
	logger  *zap.Logger
	now     func() time.Time
}

func NewSearchService(
	scopes facade.ScopeFactory,
	records repository.SearchRequestRepository,
	results ResultLookup,
	log *zap.Logger,
) *SearchService {
	return &SearchService{
		scopes:  scopes,
		records: records,
		results: results,
		logger:  logger.OrNop(log),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *SearchService) Submit(ctx context.Context, rawTags []string) (SubmitResult, error) {
	tags := normalizeTags(rawTags)
	if len(tags) == 0 {
		return SubmitResult{}, outcome.BadRequestf("at least one search tag is required")
	}

	if s.results != nil {
		path, ok, err := s.results.GetResult(ctx, tags)
		switch {
		case err != nil:
			s.logger.Warn("result cache lookup failed", zap.Error(err))
		case ok:
			return SubmitResult{FilePath: path, Cached: true}, nil
		}
	}

	envelope, err := domain.NewEnvelope(tags)
	if err != nil {
		return SubmitResult{}, outcome.Internal(err, "create search request")
	}
	log := s.logger.With(zap.String("request_id", envelope.ID.String()))

	if s.records != nil {
		record := &domain.SearchRequest{
			ID:        envelope.ID,
			Tags:      tags,
			Status:    domain.RequestStatusPending,
			CreatedAt: s.now(),
		}
		if err := s.records.Create(ctx, record); err != nil {
			return SubmitResult{}, outcome.Internal(err, "store search request")
		}
	}

	scope := s.scopes()
	defer func() {
		if err := scope.Close(); err != nil {
			log.Warn("closing publish scope failed", zap.Error(err))
		}
	}()

	if err := scope.SubmitSearch().Execute(ctx, envelope); err != nil {
		log.Error("search request not published", zap.Error(err))
		if s.records != nil {
			if failErr := s.records.Fail(ctx, envelope.ID, s.now()); failErr != nil {
				log.Warn("marking search request failed", zap.Error(failErr))
			}
		}
		return SubmitResult{}, err
	}

	log.Info("search request accepted", zap.Strings("tags", tags))
	return SubmitResult{ID: envelope.ID}, nil
}

func (s *SearchService) Get(ctx context.Context, rawID string) (*domain.SearchRequest, error) {
	id, err := uuid.Parse(strings.TrimSpace(rawID))
	if err != nil {
		return nil, outcome.BadRequestf("invalid search request id")
	}
	if s.records == nil {
		return nil, outcome.NotFoundf("search records are not enabled")
	}

	record, err := s.records.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, outcome.NotFoundf("search request %s not found", id)
	}
	if err != nil {
		return nil, outcome.Internal(err, "load search request")
	}
	return record, nil
}

func normalizeTags(raw []string) []string {
	tags := make([]string, 0, len(raw))
	for _, tag := range raw {
		tag = strings.TrimSpace(tag)
		if tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}
