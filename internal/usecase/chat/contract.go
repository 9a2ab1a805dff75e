package chat

import (
	"context"

	"github.com/kailas-cloud/ragstream/internal/domain/document"
	"github.com/kailas-cloud/ragstream/internal/domain/facet"
	"github.com/kailas-cloud/ragstream/internal/domain/search/filter"
)

// Retriever runs similarity searches for the pipeline.
type Retriever interface {
	SearchWithScores(ctx context.Context, query string, k int, pred filter.Expression) (document.ResultSet, error)
	Search(ctx context.Context, query string, k int, pred filter.Expression) ([]document.Document, error)
}

// Compiler turns a facet selection into a metadata predicate.
type Compiler interface {
	Compile(sel facet.Selection) filter.Expression
}

// Sink receives the pipeline output. Each call writes one frame; an error
// means the client is gone and production must stop.
type Sink interface {
	Answer(text string) error
	Citations(docs []document.Document) error
	Summary(text string) error
}
