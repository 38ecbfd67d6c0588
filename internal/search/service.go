package search

import (
	"context"
	"log/slog"
	"time"
)

const indexTimeout = 10 * time.Second

type recordLoader interface {
	LoadAllRecords(ctx context.Context) ([]ThoughtRecord, error)
}

type primaryEngine interface {
	Searcher
	Indexer
}

// Service tries Meilisearch first and falls back to Postgres full-text search.
type Service struct {
	primary  primaryEngine
	fallback Searcher
	loader   recordLoader
	logger   *slog.Logger
}

// NewService creates a search service. meili may be nil when Meilisearch is
// not configured; pgfts may be nil to disable search entirely. A recovered
// Meilisearch is rebuilt from Postgres so thoughts written during the outage
// become searchable there.
func NewService(meili *Meili, pgfts *PgFTS, logger *slog.Logger) *Service {
	s := &Service{logger: logger}
	if meili != nil {
		s.primary = meili
		meili.OnRecover(func() {
			s.ReindexAllFromPG(context.Background())
		})
	}
	if pgfts != nil {
		s.fallback = pgfts
		s.loader = pgfts
	}
	return s
}

func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.primary != nil && s.primary.Healthy() {
		results, total, err := s.primary.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		s.logger.Warn("meilisearch error, falling back to pgfts", "error", err)
	}

	if s.fallback == nil {
		return Response{Results: []Result{}, Query: q.Text}
	}
	results, total, err := s.fallback.Search(ctx, q)
	if err != nil {
		s.logger.Error("pgfts search failed", "error", err)
		return Response{Results: []Result{}, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexThought pushes a thought to Meilisearch in the background.
func (s *Service) IndexThought(t ThoughtRecord) {
	if s.primary == nil || !s.primary.Healthy() {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), indexTimeout)
		defer cancel()
		if err := s.primary.IndexThought(ctx, t); err != nil {
			s.logger.Warn("index thought failed", "thought_id", t.ID, "error", err)
		}
	}()
}

// ReindexAllFromPG rebuilds the Meilisearch index from Postgres.
func (s *Service) ReindexAllFromPG(ctx context.Context) {
	if s.primary == nil || !s.primary.Healthy() || s.loader == nil {
		return
	}
	records, err := s.loader.LoadAllRecords(ctx)
	if err != nil {
		s.logger.Error("reindex load failed", "error", err)
		return
	}
	if err := s.primary.IndexThoughts(ctx, records); err != nil {
		s.logger.Error("reindex thoughts failed", "error", err)
		return
	}
	s.logger.Info("search index rebuilt", "thoughts", len(records))
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
