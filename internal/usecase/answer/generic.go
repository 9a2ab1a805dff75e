package answer

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/kailas-cloud/ragstream/internal/domain"
	"github.com/kailas-cloud/ragstream/internal/domain/chat"
	"github.com/kailas-cloud/ragstream/internal/domain/decision"
	"github.com/kailas-cloud/ragstream/internal/domain/generation"
)

// Generic answers from the persona and the question alone, in one chunk.
type Generic struct {
	gen     Generator
	persona string
	opts    generation.Options
}

// NewGeneric creates the generic strategy. An empty persona selects DefaultPersona.
func NewGeneric(gen Generator, persona string, opts generation.Options) *Generic {
	if persona == "" {
		persona = DefaultPersona
	}
	return &Generic{gen: gen, persona: persona, opts: opts}
}

// Kind implements Strategy.
func (g *Generic) Kind() decision.Decision { return decision.Generic }

// Answer implements Strategy. History and context are ignored.
func (g *Generic) Answer(ctx context.Context, in Input) iter.Seq2[chat.Chunk, error] {
	return func(yield func(chat.Chunk, error) bool) {
		msgs := []generation.Message{
			{Role: generation.RoleSystem, Content: g.persona},
			{Role: generation.RoleUser, Content: in.Question},
		}
		text, err := g.gen.Complete(ctx, msgs, g.opts)
		if err != nil {
			yield(chat.Chunk{}, generationErr(err))
			return
		}
		yield(chat.Chunk{Text: text}, nil)
	}
}

func generationErr(err error) error {
	if errors.Is(err, domain.ErrGenerationFailed) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrGenerationFailed, err)
}
