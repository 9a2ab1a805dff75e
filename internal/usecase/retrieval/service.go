package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/kailas-cloud/ragstream/internal/domain"
	"github.com/kailas-cloud/ragstream/internal/domain/document"
	"github.com/kailas-cloud/ragstream/internal/domain/search/filter"
)

// Service embeds a query and runs a filtered similarity search.
// Every failure is reported as domain.ErrRetrievalUnavailable; nothing is retried.
type Service struct {
	repo  Repository
	embed Embedder
}

// New creates a retrieval service.
func New(repo Repository, embed Embedder) *Service {
	return &Service{repo: repo, embed: embed}
}

var newlines = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

// NormalizeQuery trims the query and turns line breaks into spaces.
func NormalizeQuery(q string) string {
	return newlines.Replace(strings.TrimSpace(q))
}

// SearchWithScores returns at most k documents sorted by descending score.
func (s *Service) SearchWithScores(
	ctx context.Context, query string, k int, pred filter.Expression,
) (document.ResultSet, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}

	emb, err := s.embed.Embed(ctx, NormalizeQuery(query))
	if err != nil {
		return nil, fmt.Errorf("%w: vectorize query: %w", domain.ErrRetrievalUnavailable, err)
	}

	results, err := s.repo.SearchKNN(ctx, emb.Embedding, pred, k)
	if err != nil {
		return nil, fmt.Errorf("%w: search knn: %w", domain.ErrRetrievalUnavailable, err)
	}
	return results, nil
}

// Search returns the same documents as SearchWithScores without their scores,
// for context assembly.
func (s *Service) Search(
	ctx context.Context, query string, k int, pred filter.Expression,
) ([]document.Document, error) {
	results, err := s.SearchWithScores(ctx, query, k, pred)
	if err != nil {
		return nil, err
	}
	docs := make([]document.Document, len(results))
	for i, r := range results {
		docs[i] = r.WithoutScore()
	}
	return docs, nil
}
