package chat

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragstream/internal/domain"
	domchat "github.com/kailas-cloud/ragstream/internal/domain/chat"
	"github.com/kailas-cloud/ragstream/internal/domain/decision"
	"github.com/kailas-cloud/ragstream/internal/domain/search/filter"
	"github.com/kailas-cloud/ragstream/internal/logger"
	"github.com/kailas-cloud/ragstream/internal/metrics"
	"github.com/kailas-cloud/ragstream/internal/usecase/answer"
	"github.com/kailas-cloud/ragstream/internal/usecase/retrieval"
)

// Defaults for Config.
const (
	DefaultGateK    = 3
	DefaultContextK = 10
)

// Config tunes one deployment of the pipeline.
type Config struct {
	Threshold float64
	GateK     int // results fetched to decide
	ContextK  int // results fetched to answer
	// FilterContext applies the facet predicate to the context search too.
	FilterContext bool
}

// Result summarizes one invocation.
type Result struct {
	Decision decision.Decision
	TopScore float64
	Chunks   int
}

// Service runs the retrieval-augmented pipeline for one question at a time.
// It holds no per-request state and is safe for concurrent use.
type Service struct {
	retriever  Retriever
	compiler   Compiler
	strategies map[decision.Decision]answer.Strategy
	cfg        Config
	logger     *zap.Logger
}

// New creates a pipeline service. Exactly one strategy per decision is expected.
func New(
	retriever Retriever, compiler Compiler, cfg Config, logger *zap.Logger, strategies ...answer.Strategy,
) (*Service, error) {
	if cfg.GateK <= 0 {
		cfg.GateK = DefaultGateK
	}
	if cfg.ContextK <= 0 {
		cfg.ContextK = DefaultContextK
	}

	byKind := make(map[decision.Decision]answer.Strategy, len(strategies))
	for _, st := range strategies {
		if _, dup := byKind[st.Kind()]; dup {
			return nil, fmt.Errorf("duplicate %s strategy", st.Kind())
		}
		byKind[st.Kind()] = st
	}
	for _, d := range []decision.Decision{decision.Generic, decision.Grounded} {
		if byKind[d] == nil {
			return nil, fmt.Errorf("missing %s strategy", d)
		}
	}

	return &Service{
		retriever:  retriever,
		compiler:   compiler,
		strategies: byKind,
		cfg:        cfg,
		logger:     logger,
	}, nil
}

// Run answers req and writes frames to sink. Generic answers go out as
// answer frames; grounded answers send one citation batch, then summary
// frames. The returned error is informational: the caller still terminates
// the stream, and frames already written stay valid.
func (s *Service) Run(ctx context.Context, req domchat.Request, sink Sink) (Result, error) {
	var res Result
	log := logger.FromContextOr(ctx, s.logger)

	question := retrieval.NormalizeQuery(req.Question)
	if question == "" {
		return res, fmt.Errorf("%w: %w", domain.ErrBadRequest, domchat.ErrEmptyQuestion)
	}

	pred := s.compiler.Compile(req.Filter)
	if widened := pred.Widened(); len(widened) > 0 {
		metrics.PipelineFailuresTotal.WithLabelValues("filter").Inc()
		log.Warn("Facet selection too large, category left unfiltered",
			zap.Strings("categories", widened),
			zap.Int("max_values", filter.MaxValuesPerClause),
		)
	}

	gate, err := s.retriever.SearchWithScores(ctx, question, s.cfg.GateK, pred)
	if err != nil {
		metrics.PipelineFailuresTotal.WithLabelValues("retrieval").Inc()
		return res, fmt.Errorf("gate search: %w", err)
	}

	res.TopScore = gate.TopScore()
	res.Decision = decision.Decide(gate, s.cfg.Threshold)
	metrics.PipelineDecisionsTotal.WithLabelValues(res.Decision.String()).Inc()
	metrics.PipelineTopScore.Observe(res.TopScore)

	log.Info("Pipeline decision",
		zap.String("decision", res.Decision.String()),
		zap.Float64("top_score", res.TopScore),
		zap.Float64("threshold", s.cfg.Threshold),
		zap.Int("gate_results", len(gate)),
		zap.Stringer("filter", pred),
	)

	in := answer.Input{Question: question, History: req.History}
	emit := sink.Answer

	if res.Decision == decision.Grounded {
		ctxPred := pred
		if !s.cfg.FilterContext {
			ctxPred = filter.Expression{}
		}
		docs, err := s.retriever.Search(ctx, question, s.cfg.ContextK, ctxPred)
		if err != nil {
			metrics.PipelineFailuresTotal.WithLabelValues("retrieval").Inc()
			return res, fmt.Errorf("context search: %w", err)
		}
		if err := sink.Citations(docs); err != nil {
			metrics.PipelineFailuresTotal.WithLabelValues("sink").Inc()
			return res, fmt.Errorf("write citations: %w", err)
		}
		in.Context = docs
		emit = sink.Summary
	}

	for chunk, err := range s.strategies[res.Decision].Answer(ctx, in) {
		if err != nil {
			metrics.PipelineFailuresTotal.WithLabelValues("generation").Inc()
			return res, fmt.Errorf("%s answer: %w", res.Decision, err)
		}
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("client gone: %w", err)
		}
		if err := emit(chunk.Text); err != nil {
			metrics.PipelineFailuresTotal.WithLabelValues("sink").Inc()
			return res, fmt.Errorf("write chunk: %w", err)
		}
		res.Chunks++
	}

	return res, nil
}
