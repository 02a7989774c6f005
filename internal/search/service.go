package search

import (
	"context"

	"go.uber.org/zap"
)

// Service tries the primary backend first and falls back to the secondary.
type Service struct {
	primary  Backend
	fallback Backend
	indexer  Indexer
	logger   *zap.Logger
}

// NewService wires the search facade. primary and indexer may be nil when
// Meilisearch is not configured.
func NewService(primary Backend, fallback Backend, indexer Indexer, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{primary: primary, fallback: fallback, indexer: indexer, logger: logger}
}

// NewMeiliService is the production wiring: meili may be nil.
func NewMeiliService(meili *Meili, pgfts *PgFTS, logger *zap.Logger) *Service {
	if meili == nil {
		return NewService(nil, pgfts, nil, logger)
	}
	return NewService(meili, pgfts, meili, logger)
}

func (s *Service) Search(ctx context.Context, q Query) Response {
	if q.Limit <= 0 || q.Limit > 100 {
		q.Limit = 20
	}
	if s.primary != nil && s.primary.Healthy() {
		results, total, err := s.primary.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text, Backend: s.primary.Name()}
		}
		s.logger.Warn("primary search failed, falling back", zap.String("backend", s.primary.Name()), zap.Error(err))
	}
	if s.fallback == nil {
		return Response{Results: []Result{}, Query: q.Text}
	}

	results, total, err := s.fallback.Search(ctx, q)
	if err != nil {
		s.logger.Warn("fallback search failed", zap.String("backend", s.fallback.Name()), zap.Error(err))
		return Response{Results: []Result{}, Query: q.Text, Backend: s.fallback.Name()}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text, Backend: s.fallback.Name()}
}

// IndexArticle pushes one article to the index without blocking the caller.
func (s *Service) IndexArticle(record ArticleRecord) {
	if s.indexer == nil || !s.indexer.Healthy() {
		return
	}
	go func() {
		if err := s.indexer.IndexArticles([]ArticleRecord{record}); err != nil {
			s.logger.Warn("index article failed", zap.String("article", record.ID), zap.Error(err))
		}
	}()
}

// RemoveArticle drops an article from the index without blocking the caller.
func (s *Service) RemoveArticle(id string) {
	if s.indexer == nil || !s.indexer.Healthy() {
		return
	}
	go func() {
		if err := s.indexer.DeleteArticle(id); err != nil {
			s.logger.Warn("remove article from index failed", zap.String("article", id), zap.Error(err))
		}
	}()
}

// Reindex synchronously pushes every record and reports how many were sent.
func (s *Service) Reindex(records []ArticleRecord) (int, error) {
	if s.indexer == nil || !s.indexer.Healthy() || len(records) == 0 {
		return 0, nil
	}
	if err := s.indexer.IndexArticles(records); err != nil {
		return 0, err
	}
	return len(records), nil
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
