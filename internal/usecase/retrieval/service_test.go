package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/kailas-cloud/ragstream/internal/domain"
	"github.com/kailas-cloud/ragstream/internal/domain/document"
	"github.com/kailas-cloud/ragstream/internal/domain/search/filter"
)

// --- Mocks ---

type mockRepo struct {
	searchFn func(ctx context.Context, vector []float32, pred filter.Expression, k int) (document.ResultSet, error)
}

func (m *mockRepo) SearchKNN(
	ctx context.Context, vector []float32, pred filter.Expression, k int,
) (document.ResultSet, error) {
	if m.searchFn != nil {
		return m.searchFn(ctx, vector, pred, k)
	}
	return document.ResultSet{}, nil
}

type mockEmbedder struct {
	lastText string
	err      error
}

func (m *mockEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	m.lastText = text
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	return domain.EmbeddingResult{Embedding: []float32{0.1, 0.2}}, nil
}

// --- Tests ---

func TestNormalizeQuery(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  What is the minimum ceiling height?  ", "What is the minimum ceiling height?"},
		{"line one\nline two", "line one line two"},
		{"windows\r\nbreak", "windows break"},
		{"\n\nleading", "leading"},
		{"old\rmac", "old mac"},
	}
	for _, tc := range tests {
		if got := NormalizeQuery(tc.in); got != tc.want {
			t.Errorf("NormalizeQuery(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSearchWithScores_EmbedsNormalizedQuery(t *testing.T) {
	emb := &mockEmbedder{}
	pred, _ := filter.NewExpression()
	var gotK int
	repo := &mockRepo{searchFn: func(_ context.Context, v []float32, _ filter.Expression, k int) (document.ResultSet, error) {
		gotK = k
		if len(v) != 2 {
			t.Errorf("unexpected vector: %v", v)
		}
		return document.NewResultSet([]document.Document{
			document.New("a", "x", nil, 0.4),
			document.New("b", "y", nil, 0.9),
		}, k), nil
	}}

	svc := New(repo, emb)
	rs, err := svc.SearchWithScores(context.Background(), "multi\nline", 3, pred)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if emb.lastText != "multi line" {
		t.Errorf("embedded %q", emb.lastText)
	}
	if gotK != 3 {
		t.Errorf("k = %d", gotK)
	}
	if rs.TopScore() != 0.9 {
		t.Errorf("TopScore() = %v", rs.TopScore())
	}
}

func TestSearch_DropsScores(t *testing.T) {
	repo := &mockRepo{searchFn: func(_ context.Context, _ []float32, _ filter.Expression, k int) (document.ResultSet, error) {
		return document.NewResultSet([]document.Document{
			document.New("a", "first", nil, 0.95),
			document.New("b", "second", nil, 0.5),
		}, k), nil
	}}

	svc := New(repo, &mockEmbedder{})
	docs, err := svc.Search(context.Background(), "q", 10, filter.Expression{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 docs, got %d", len(docs))
	}
	if docs[0].Content() != "first" || docs[0].Score() != 0 {
		t.Errorf("unexpected first doc: %q score=%v", docs[0].Content(), docs[0].Score())
	}
}

func TestSearchWithScores_EmbedFailure(t *testing.T) {
	svc := New(&mockRepo{}, &mockEmbedder{err: domain.ErrEmbeddingProviderError})

	_, err := svc.SearchWithScores(context.Background(), "q", 3, filter.Expression{})
	if !errors.Is(err, domain.ErrRetrievalUnavailable) {
		t.Fatalf("expected ErrRetrievalUnavailable, got %v", err)
	}
	if !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Errorf("expected cause to be kept, got %v", err)
	}
}

func TestSearchWithScores_IndexFailure(t *testing.T) {
	repo := &mockRepo{searchFn: func(context.Context, []float32, filter.Expression, int) (document.ResultSet, error) {
		return nil, errors.New("connection refused")
	}}
	svc := New(repo, &mockEmbedder{})

	_, err := svc.Search(context.Background(), "q", 3, filter.Expression{})
	if !errors.Is(err, domain.ErrRetrievalUnavailable) {
		t.Fatalf("expected ErrRetrievalUnavailable, got %v", err)
	}
}

func TestSearchWithScores_InvalidK(t *testing.T) {
	svc := New(&mockRepo{}, &mockEmbedder{})
	if _, err := svc.SearchWithScores(context.Background(), "q", 0, filter.Expression{}); err == nil {
		t.Error("expected error for k=0")
	}
}
