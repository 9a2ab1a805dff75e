package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"math"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragstream/internal/domain"
	"github.com/kailas-cloud/ragstream/internal/domain/chat"
	"github.com/kailas-cloud/ragstream/internal/domain/generation"
	"github.com/kailas-cloud/ragstream/internal/metrics"
)

// Generator calls an OpenAI-compatible chat completion API.
type Generator struct {
	client *openai.Client
	user   string
	logger *zap.Logger
}

// GeneratorConfig holds the generation provider settings.
type GeneratorConfig struct {
	ClientConfig
	User   string
	Logger *zap.Logger
}

// NewGenerator creates a chat completion client.
func NewGenerator(cfg *GeneratorConfig) *Generator {
	return &Generator{
		client: newClient(cfg.ClientConfig),
		user:   cfg.User,
		logger: cfg.Logger,
	}
}

// Complete returns the whole answer in one call.
func (g *Generator) Complete(
	ctx context.Context, msgs []generation.Message, opts generation.Options,
) (string, error) {
	req := g.request(msgs, opts, false)
	mode := string(generation.ModeComplete)

	start := time.Now()
	resp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		metrics.GenerationRequestsTotal.WithLabelValues(opts.Model, mode, "error").Inc()
		return "", parseAPIError("generation", err, domain.ErrGenerationFailed)
	}
	metrics.GenerationRequestDuration.WithLabelValues(opts.Model, mode).Observe(time.Since(start).Seconds())

	if len(resp.Choices) == 0 {
		metrics.GenerationRequestsTotal.WithLabelValues(opts.Model, mode, "error").Inc()
		return "", fmt.Errorf("empty completion response: %w", domain.ErrGenerationFailed)
	}

	metrics.GenerationRequestsTotal.WithLabelValues(opts.Model, mode, "success").Inc()
	g.recordUsage(opts.Model, resp.Usage)

	return resp.Choices[0].Message.Content, nil
}

// Stream yields content fragments in the order the model emits them. The
// upstream stream is closed when the sequence ends, fails, or the consumer
// stops ranging over it.
func (g *Generator) Stream(
	ctx context.Context, msgs []generation.Message, opts generation.Options,
) iter.Seq2[chat.Chunk, error] {
	return func(yield func(chat.Chunk, error) bool) {
		req := g.request(msgs, opts, true)
		mode := string(generation.ModeStream)

		start := time.Now()
		stream, err := g.client.CreateChatCompletionStream(ctx, req)
		if err != nil {
			metrics.GenerationRequestsTotal.WithLabelValues(opts.Model, mode, "error").Inc()
			yield(chat.Chunk{}, parseAPIError("generation", err, domain.ErrGenerationFailed))
			return
		}
		defer func() {
			if cerr := stream.Close(); cerr != nil {
				g.logger.Debug("Failed to close completion stream", zap.Error(cerr))
			}
		}()

		first := true
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				metrics.GenerationRequestsTotal.WithLabelValues(opts.Model, mode, "success").Inc()
				metrics.GenerationRequestDuration.WithLabelValues(opts.Model, mode).Observe(time.Since(start).Seconds())
				return
			}
			if err != nil {
				metrics.GenerationRequestsTotal.WithLabelValues(opts.Model, mode, "error").Inc()
				yield(chat.Chunk{}, parseAPIError("generation", err, domain.ErrGenerationFailed))
				return
			}

			if resp.Usage != nil {
				g.recordUsage(opts.Model, *resp.Usage)
			}
			if len(resp.Choices) == 0 || resp.Choices[0].Delta.Content == "" {
				continue
			}

			if first {
				metrics.GenerationTimeToFirstChunk.WithLabelValues(opts.Model).Observe(time.Since(start).Seconds())
				first = false
			}
			metrics.GenerationChunksTotal.WithLabelValues(opts.Model).Inc()

			if !yield(chat.Chunk{Text: resp.Choices[0].Delta.Content}, nil) {
				metrics.GenerationRequestsTotal.WithLabelValues(opts.Model, mode, "cancelled").Inc()
				return
			}
		}
	}
}

// HealthCheck verifies API availability via ListModels (free endpoint).
func (g *Generator) HealthCheck(ctx context.Context) error {
	if _, err := g.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

func (g *Generator) request(
	msgs []generation.Message, opts generation.Options, stream bool,
) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, len(msgs))
	for i, m := range msgs {
		messages[i] = openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content}
	}

	req := openai.ChatCompletionRequest{
		Model:            opts.Model,
		Messages:         messages,
		Temperature:      opts.Temperature,
		TopP:             opts.TopP,
		FrequencyPenalty: opts.FrequencyPenalty,
		PresencePenalty:  opts.PresencePenalty,
		MaxTokens:        opts.MaxTokens,
		User:             g.user,
		Stream:           stream,
	}
	// temperature is omitempty on the wire; zero would fall back to the provider default of 1
	if req.Temperature == 0 {
		req.Temperature = math.SmallestNonzeroFloat32
	}
	if stream {
		req.StreamOptions = &openai.StreamOptions{IncludeUsage: true}
	}
	return req
}

func (g *Generator) recordUsage(model string, u openai.Usage) {
	if u.TotalTokens == 0 {
		return
	}
	metrics.GenerationTokensTotal.WithLabelValues(model, "prompt").Add(float64(u.PromptTokens))
	metrics.GenerationTokensTotal.WithLabelValues(model, "completion").Add(float64(u.CompletionTokens))
}
