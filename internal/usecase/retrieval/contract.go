package retrieval

import (
	"context"

	"github.com/kailas-cloud/ragstream/internal/domain"
	"github.com/kailas-cloud/ragstream/internal/domain/document"
	"github.com/kailas-cloud/ragstream/internal/domain/search/filter"
)

// Repository defines the storage contract for similarity search.
type Repository interface {
	SearchKNN(ctx context.Context, vector []float32, pred filter.Expression, k int) (document.ResultSet, error)
}

// Embedder vectorizes text into embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}
