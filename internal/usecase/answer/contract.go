package answer

import (
	"context"
	"iter"

	"github.com/kailas-cloud/ragstream/internal/domain/chat"
	"github.com/kailas-cloud/ragstream/internal/domain/decision"
	"github.com/kailas-cloud/ragstream/internal/domain/document"
	"github.com/kailas-cloud/ragstream/internal/domain/generation"
)

// Generator is the generative model capability.
type Generator interface {
	Complete(ctx context.Context, msgs []generation.Message, opts generation.Options) (string, error)
	Stream(ctx context.Context, msgs []generation.Message, opts generation.Options) iter.Seq2[chat.Chunk, error]
}

// Input is everything a strategy may use to answer.
type Input struct {
	Question string
	History  chat.History
	Context  []document.Document // descending score order; empty for Generic
}

// Strategy synthesizes an answer as an ordered sequence of chunks. A
// non-nil error ends the sequence; chunks already yielded stay valid.
// Stopping the range loop early releases the model call.
type Strategy interface {
	Kind() decision.Decision
	Answer(ctx context.Context, in Input) iter.Seq2[chat.Chunk, error]
}
