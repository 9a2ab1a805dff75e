package openai

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragstream/internal/domain"
	"github.com/kailas-cloud/ragstream/internal/metrics"
)

// Embedder turns query text into vectors through an OpenAI-compatible API.
// It must use the same model the index was built with.
type Embedder struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
	user       string
	provider   string
	logger     *zap.Logger
}

// EmbedderConfig holds the embedding provider settings.
type EmbedderConfig struct {
	ClientConfig
	Model      string
	Dimensions int
	User       string
	Provider   string
	Logger     *zap.Logger
}

// NewEmbedder creates an OpenAI-compatible embedding provider.
func NewEmbedder(cfg *EmbedderConfig) *Embedder {
	return &Embedder{
		client:     newClient(cfg.ClientConfig),
		model:      openai.EmbeddingModel(cfg.Model),
		dimensions: cfg.Dimensions,
		user:       cfg.User,
		provider:   cfg.Provider,
		logger:     cfg.Logger,
	}
}

// Embed implements domain.Embedder.
func (e *Embedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	req := openai.EmbeddingRequest{
		Input:          []string{text},
		Model:          e.model,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
		User:           e.user,
	}
	if e.dimensions > 0 {
		req.Dimensions = e.dimensions
	}

	model := string(e.model)
	start := time.Now()
	resp, err := e.client.CreateEmbeddings(ctx, req)
	duration := time.Since(start)

	if err != nil {
		e.recordError("api_error")
		return domain.EmbeddingResult{}, parseAPIError("embedding", err, domain.ErrEmbeddingProviderError)
	}

	if len(resp.Data) == 0 {
		e.recordError("empty_response")
		return domain.EmbeddingResult{}, fmt.Errorf("empty embedding response: %w", domain.ErrEmbeddingProviderError)
	}

	metrics.EmbeddingRequestsTotal.WithLabelValues(e.provider, model, "success").Inc()
	metrics.EmbeddingRequestDuration.WithLabelValues(e.provider, model).Observe(duration.Seconds())

	totalTokens := resp.Usage.TotalTokens
	promptTokens := resp.Usage.PromptTokens
	if totalTokens > 0 {
		metrics.EmbeddingTokensTotal.WithLabelValues(e.provider, model, "prompt").Add(float64(promptTokens))
		metrics.EmbeddingTokensTotal.WithLabelValues(e.provider, model, "total").Add(float64(totalTokens))
	}

	return domain.EmbeddingResult{
		Embedding:    resp.Data[0].Embedding,
		PromptTokens: promptTokens,
		TotalTokens:  totalTokens,
	}, nil
}

func (e *Embedder) recordError(errType string) {
	model := string(e.model)
	metrics.EmbeddingRequestsTotal.WithLabelValues(e.provider, model, "error").Inc()
	metrics.EmbeddingErrorsTotal.WithLabelValues(e.provider, model, errType).Inc()
}

// HealthCheck verifies API availability via ListModels (free endpoint).
func (e *Embedder) HealthCheck(ctx context.Context) error {
	if _, err := e.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}
