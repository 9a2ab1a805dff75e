package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragstream/internal/config"
	"github.com/kailas-cloud/ragstream/internal/db"
	dbRedis "github.com/kailas-cloud/ragstream/internal/db/redis"
	"github.com/kailas-cloud/ragstream/internal/domain"
	"github.com/kailas-cloud/ragstream/internal/domain/generation"
	"github.com/kailas-cloud/ragstream/internal/domain/search/filter"
	logpkg "github.com/kailas-cloud/ragstream/internal/logger"
	"github.com/kailas-cloud/ragstream/internal/metrics"
	"github.com/kailas-cloud/ragstream/internal/repository/embcache"
	searchrepo "github.com/kailas-cloud/ragstream/internal/repository/search"
	"github.com/kailas-cloud/ragstream/internal/tokenizer"
	chiTransport "github.com/kailas-cloud/ragstream/internal/transport/chi"
	openaiTransport "github.com/kailas-cloud/ragstream/internal/transport/openai"
	"github.com/kailas-cloud/ragstream/internal/usecase/answer"
	chatuc "github.com/kailas-cloud/ragstream/internal/usecase/chat"
	embeddinguc "github.com/kailas-cloud/ragstream/internal/usecase/embedding"
	healthuc "github.com/kailas-cloud/ragstream/internal/usecase/health"
	"github.com/kailas-cloud/ragstream/internal/usecase/retrieval"
	"github.com/kailas-cloud/ragstream/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env,
		logpkg.WithLevel(cfg.Logging.Level),
		logpkg.WithFile(logpkg.FileConfig{
			Path:       cfg.Logging.File,
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			MaxAgeDays: cfg.Logging.MaxAgeDays,
		}),
	)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting ragstream API server",
		zap.String("version", version.String()),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("db_driver", cfg.Database.Driver),
		zap.Strings("db_addrs", cfg.Database.Addrs),
		zap.String("index", cfg.Retrieval.IndexName),
		zap.Float64("threshold", *cfg.Retrieval.Threshold),
	)

	// Redis Stack and Valkey speak the same FT.* dialect; one store serves both.
	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Password: cfg.Database.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	// Wait for database to be ready
	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Register metrics explicitly (no init())
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterGenerationMetrics()
	metrics.RegisterPipelineMetrics()

	// Retrieval: OpenAI -> Cached -> Instrumented -> Instruction
	queryEmbedder := buildEmbedder(cfg.Embedding, store, logger)
	logger.Info("Embedder created",
		zap.String("provider", cfg.Embedding.Provider.Name),
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
		zap.Bool("cache", cfg.Embedding.Cache.Enabled),
	)

	searchRepo := searchrepo.New(store, searchrepo.Config{
		IndexName:      cfg.Retrieval.IndexName,
		KeyPrefix:      cfg.Retrieval.KeyPrefix,
		VectorField:    cfg.Retrieval.VectorField,
		ContentField:   cfg.Retrieval.ContentField,
		MetadataFields: cfg.Retrieval.MetadataFields,
		NumericFields:  cfg.Retrieval.NumericFields,
	})
	retrievalSvc := retrieval.New(searchRepo, queryEmbedder)

	// Generation
	generator := openaiTransport.NewGenerator(&openaiTransport.GeneratorConfig{
		ClientConfig: openaiTransport.ClientConfig{
			APIKey:  cfg.Generation.Provider.APIKey,
			BaseURL: cfg.Generation.Provider.BaseURL,
			OrgID:   cfg.Generation.Provider.OrgID,
		},
		Logger: logger,
	})

	counter, err := tokenizer.New(cfg.Generation.Encoding)
	if err != nil {
		logger.Warn("Falling back to estimated token counts",
			zap.String("encoding", cfg.Generation.Encoding),
			zap.Error(err),
		)
	}

	generic := answer.NewGeneric(generator, cfg.Generation.Persona, generationOptions(cfg.Generation.Generic))
	grounded := answer.NewGrounded(generator, answer.GroundedConfig{
		Persona:  cfg.Generation.Persona,
		Template: answer.NewTemplate(cfg.Generation.Template),
		Window:   answer.NewContextWindow(counter, cfg.Generation.ContextTokenBudget),
		Options:  generationOptions(cfg.Generation.Grounded),
	})

	// Pipeline
	vocab := cfg.Facets.Vocabulary()
	compiler := filter.NewCompiler(vocab.Names(), cfg.Facets.MatchAll)
	chatSvc, err := chatuc.New(retrievalSvc, compiler, chatuc.Config{
		Threshold:     *cfg.Retrieval.Threshold,
		GateK:         cfg.Retrieval.GateK,
		ContextK:      cfg.Retrieval.ContextK,
		FilterContext: *cfg.Retrieval.FilterContext,
	}, logger, generic, grounded)
	if err != nil {
		logger.Fatal("Failed to create pipeline", zap.Error(err))
	}

	// Health service
	healthSvc := healthuc.New(healthuc.Deps{
		DB:         store,
		Index:      store,
		IndexName:  cfg.Retrieval.IndexName,
		Embedding:  newEmbeddingHealthChecker(queryEmbedder),
		Generation: generator,
	})

	server := chiTransport.NewServer(chatSvc, healthSvc, vocab, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

func generationOptions(m config.ModelConfig) generation.Options {
	return generation.Options{
		Model:            m.Model,
		Temperature:      m.Temperature,
		TopP:             m.TopP,
		FrequencyPenalty: m.FrequencyPenalty,
		PresencePenalty:  m.PresencePenalty,
		MaxTokens:        m.MaxTokens,
	}
}

// embeddingHealthChecker wraps domain.Embedder to implement health.ProviderChecker.
type embeddingHealthChecker struct {
	embedder domain.Embedder
}

func newEmbeddingHealthChecker(embedder domain.Embedder) *embeddingHealthChecker {
	return &embeddingHealthChecker{embedder: embedder}
}

func (h *embeddingHealthChecker) HealthCheck(ctx context.Context) error {
	if hc, ok := h.embedder.(domain.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("embedding health check: %w", err)
		}
	}
	return nil
}

// buildEmbedder assembles the decorator chain: OpenAI -> Cached -> Instrumented -> Instruction
func buildEmbedder(cfg config.EmbeddingConfig, store db.Store, logger *zap.Logger) domain.Embedder {
	// Base provider (with transport metrics built-in)
	base := openaiTransport.NewEmbedder(&openaiTransport.EmbedderConfig{
		ClientConfig: openaiTransport.ClientConfig{
			APIKey:  cfg.Provider.APIKey,
			BaseURL: cfg.Provider.BaseURL,
			OrgID:   cfg.Provider.OrgID,
		},
		Model:      cfg.Model,
		Dimensions: cfg.Dimensions,
		Provider:   cfg.Provider.Name,
		Logger:     logger,
	})

	// Cached
	var embedder domain.Embedder = base
	if cfg.Cache.Enabled && store != nil {
		embedder = embcache.New(base, store, embcache.Config{
			Model:     cfg.Model,
			KeyPrefix: cfg.Cache.KeyPrefix,
			StoreTTL:  time.Duration(cfg.Cache.TTLSec) * time.Second,
			MemoryTTL: time.Duration(cfg.Cache.MemoryTTLSec) * time.Second,
		}, metrics.EmbeddingCacheTotal, logger)
	}

	// Instrumented (logs + metrics)
	embedder = embeddinguc.NewInstrumentedEmbedder(embedder, cfg.Provider.Name, cfg.Model, logger)

	// Instruction prefix (outermost: cache key includes instruction)
	if cfg.QueryInstruction != "" {
		return domain.NewInstructionEmbedder(embedder, cfg.QueryInstruction)
	}

	return embedder
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(chiTransport.ErrorResponse{
						Code:    chiTransport.CodeInternalError,
						Message: "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			// The wrapper keeps http.Flusher so answer streams still flush.
			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line, one per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
