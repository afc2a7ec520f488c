package search

import (
	"context"

	"github.com/rs/zerolog"

	"podnotes/api/internal/logging"
	"podnotes/api/internal/outline"
)

// Service is the facade that tries Meilisearch first and falls back to the database.
type Service struct {
	meili    *Meili
	fallback *SQLSearch
	log      zerolog.Logger
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, fallback *SQLSearch, logger zerolog.Logger) *Service {
	return &Service{meili: meili, fallback: fallback, log: logging.Component(logger, "search")}
}

func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		s.log.Warn().Err(err).Msg("meilisearch error, falling back to database")
	}

	results, total, err := s.fallback.SearchContext(ctx, q)
	if err != nil {
		s.log.Error().Err(err).Msg("database search failed")
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// Observe keeps the index in step with a committed outline change. It is
// registered with Engine.OnCommit and never blocks the caller.
func (s *Service) Observe(_ context.Context, result outline.Result) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	records := recordsOf(result)
	deleted := append([]string(nil), result.Deleted...)
	go func() {
		if err := s.meili.IndexNodes(records); err != nil {
			s.log.Warn().Err(err).Str("container_id", result.ContainerID).Msg("index nodes")
		}
		if err := s.meili.DeleteNodes(deleted); err != nil {
			s.log.Warn().Err(err).Str("container_id", result.ContainerID).Msg("delete nodes")
		}
	}()
}

func recordsOf(result outline.Result) []NodeRecord {
	var records []NodeRecord
	if result.Created != nil {
		records = append(records, NodeRecord{UUID: result.Created.UUID, ContainerID: result.ContainerID, Content: result.Created.Content})
	}
	for _, change := range result.Contents {
		records = append(records, NodeRecord{UUID: change.UUID, ContainerID: result.ContainerID, Content: change.Content})
	}
	return records
}

// ReindexAll pushes every node from the database into Meilisearch.
func (s *Service) ReindexAll(ctx context.Context) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	records, err := s.fallback.LoadRecords(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("reindex load failed")
		return
	}
	if err := s.meili.IndexNodes(records); err != nil {
		s.log.Error().Err(err).Msg("reindex nodes")
		return
	}
	s.log.Info().Int("nodes", len(records)).Msg("search index rebuilt")
}

// Close stops the Meilisearch health monitor, if any.
func (s *Service) Close() {
	if s.meili != nil {
		s.meili.Close()
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
