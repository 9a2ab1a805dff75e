package search

import (
	"context"
	"testing"

	"github.com/kailas-cloud/ragstream/internal/db"
	"github.com/kailas-cloud/ragstream/internal/domain/search/filter"
)

// mockStore implements the consumer interface for tests.
type mockStore struct {
	searchKNNFn func(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
}

func (m *mockStore) SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	if m.searchKNNFn != nil {
		return m.searchKNNFn(ctx, q)
	}
	return &db.SearchResult{}, nil
}

func newTestRepo(t *testing.T, cfg Config) (*Repo, *mockStore) {
	t.Helper()
	ms := &mockStore{}
	repo := New(ms, cfg)
	return repo, ms
}

func testVector() []float32 {
	vec := make([]float32, 4)
	for i := range vec {
		vec[i] = 0.1
	}
	return vec
}

func mustExpression(t *testing.T, key string, values ...string) filter.Expression {
	t.Helper()
	c, err := filter.NewIn(key, values...)
	if err != nil {
		t.Fatalf("NewIn: %v", err)
	}
	e, err := filter.NewExpression(c)
	if err != nil {
		t.Fatalf("NewExpression: %v", err)
	}
	return e
}
