package answer

import (
	"context"
	"iter"

	"github.com/kailas-cloud/ragstream/internal/domain/chat"
	"github.com/kailas-cloud/ragstream/internal/domain/decision"
	"github.com/kailas-cloud/ragstream/internal/domain/generation"
	"github.com/kailas-cloud/ragstream/internal/tokenizer"
)

// Grounded streams an answer built from retrieved context, history and the question.
type Grounded struct {
	gen      Generator
	persona  string
	template Template
	window   ContextWindow
	opts     generation.Options
}

// GroundedConfig configures the grounded strategy.
type GroundedConfig struct {
	Persona  string
	Template Template
	Window   ContextWindow
	Options  generation.Options
}

// NewGrounded creates the grounded strategy.
func NewGrounded(gen Generator, cfg GroundedConfig) *Grounded {
	if cfg.Persona == "" {
		cfg.Persona = DefaultPersona
	}
	if cfg.Template.text == "" {
		cfg.Template = NewTemplate("")
	}
	if cfg.Window.counter == nil {
		cfg.Window = NewContextWindow(tokenizer.Estimator{}, DefaultContextTokenBudget)
	}
	return &Grounded{
		gen:      gen,
		persona:  cfg.Persona,
		template: cfg.Template,
		window:   cfg.Window,
		opts:     cfg.Options,
	}
}

// Kind implements Strategy.
func (g *Grounded) Kind() decision.Decision { return decision.Grounded }

// Messages renders the prompt for in.
func (g *Grounded) Messages(in Input) []generation.Message {
	ctxText, _ := g.window.Build(in.Context)
	return []generation.Message{
		{Role: generation.RoleSystem, Content: g.persona},
		{Role: generation.RoleUser, Content: g.template.Render(ctxText, in.History, in.Question)},
	}
}

// Answer implements Strategy. Chunks are passed through as the model emits them.
func (g *Grounded) Answer(ctx context.Context, in Input) iter.Seq2[chat.Chunk, error] {
	return func(yield func(chat.Chunk, error) bool) {
		for chunk, err := range g.gen.Stream(ctx, g.Messages(in), g.opts) {
			if err != nil {
				yield(chat.Chunk{}, generationErr(err))
				return
			}
			if !yield(chunk, nil) {
				return
			}
		}
	}
}
