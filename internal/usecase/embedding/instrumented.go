package embedding

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragstream/internal/domain"
	"github.com/kailas-cloud/ragstream/internal/logger"
)

// InstrumentedEmbedder wraps Embedder with request-scoped logging.
// Transport metrics (requests, duration, tokens) are recorded in transport/openai.
type InstrumentedEmbedder struct {
	inner    domain.Embedder
	provider string
	model    string
	logger   *zap.Logger
}

// NewInstrumentedEmbedder wraps an embedder with observability. The request
// logger from the context wins over the fallback logger.
func NewInstrumentedEmbedder(
	inner domain.Embedder, provider, model string, fallback *zap.Logger,
) *InstrumentedEmbedder {
	return &InstrumentedEmbedder{
		inner:    inner,
		provider: provider,
		model:    model,
		logger:   fallback,
	}
}

// Embed delegates to the inner embedder and logs the outcome.
func (p *InstrumentedEmbedder) Embed(
	ctx context.Context, text string,
) (domain.EmbeddingResult, error) {
	log := logger.FromContextOr(ctx, p.logger)
	start := time.Now()

	result, err := p.inner.Embed(ctx, text)

	duration := time.Since(start)

	if err != nil {
		log.Error("Embedding request failed",
			zap.String("provider", p.provider),
			zap.String("model", p.model),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", err)
	}

	log.Debug("Embedding request completed",
		zap.String("provider", p.provider),
		zap.String("model", p.model),
		zap.Duration("duration", duration),
		zap.Int("dimensions", len(result.Embedding)),
		zap.Int("prompt_tokens", result.PromptTokens),
		zap.Int("total_tokens", result.TotalTokens),
		zap.Bool("cached", result.TotalTokens == 0),
	)

	return result, nil
}

// HealthCheck delegates to the inner embedder when it supports it.
func (p *InstrumentedEmbedder) HealthCheck(ctx context.Context) error {
	if hc, ok := p.inner.(domain.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("embedding health: %w", err)
		}
	}
	return nil
}
