package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragstream/internal/domain"
	domchat "github.com/kailas-cloud/ragstream/internal/domain/chat"
	"github.com/kailas-cloud/ragstream/internal/domain/facet"
	"github.com/kailas-cloud/ragstream/internal/logger"
	"github.com/kailas-cloud/ragstream/internal/metrics"
	"github.com/kailas-cloud/ragstream/internal/transport/sse"
	chatuc "github.com/kailas-cloud/ragstream/internal/usecase/chat"
	healthuc "github.com/kailas-cloud/ragstream/internal/usecase/health"
)

// ErrorCode is the machine-readable part of an error response.
type ErrorCode string

// Error codes.
const (
	CodeBadRequest           ErrorCode = "bad_request"
	CodeUnauthorized         ErrorCode = "unauthorized"
	CodeRetrievalUnavailable ErrorCode = "retrieval_unavailable"
	CodeGenerationFailed     ErrorCode = "generation_failed"
	CodeStreamingUnsupported ErrorCode = "streaming_unsupported"
	CodeInternalError        ErrorCode = "internal_error"
)

// msgNoQuestion is the client-facing text for a blank question.
const msgNoQuestion = "No question in the request"

// ErrorResponse is the JSON error body.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// ChatRequest is the POST /api/chat body.
type ChatRequest struct {
	Question string          `json:"question"`
	History  domchat.History `json:"history"`
	// Filter stays raw so a malformed selection degrades instead of failing the body.
	Filter json.RawMessage `json:"filter"`
}

// FacetsResponse is the GET /api/facets body.
type FacetsResponse struct {
	Data map[string][]facet.Value `json:"data"`
}

// HealthResponse is the GET /health body.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Pipeline answers one question onto a sink.
type Pipeline interface {
	Run(ctx context.Context, req domchat.Request, sink chatuc.Sink) (chatuc.Result, error)
}

// HealthChecker reports component health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server serves the chat API.
type Server struct {
	pipeline      Pipeline
	health        HealthChecker
	facets        map[string][]facet.Value
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(pipeline Pipeline, health HealthChecker, vocab facet.Vocabulary, logger *zap.Logger) *Server {
	s := &Server{
		pipeline: pipeline,
		health:   health,
		facets:   vocab.Indexed(),
		logger:   logger,
	}
	s.errorHandlers = []errorHandler{
		badRequestHandler,
		sentinelHandler(domain.ErrRetrievalUnavailable, http.StatusServiceUnavailable, CodeRetrievalUnavailable),
		sentinelHandler(domain.ErrGenerationFailed, http.StatusBadGateway, CodeGenerationFailed),
	}
	return s
}

// Routes mounts the API on r.
func (s *Server) Routes(r chi.Router) {
	r.Post("/api/chat", s.Chat)
	r.Get("/api/facets", s.Facets)
	r.Get("/health", s.HealthCheck)
	r.Handle("/metrics", promhttp.Handler())
}

// Chat handles POST /api/chat. Validation failures get a JSON error; once
// the stream is open every path ends with the [DONE] terminator.
func (s *Server) Chat(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOr(r.Context(), s.logger)

	var body ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	req := domchat.Request{Question: body.Question, History: body.History}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, msgNoQuestion)
		return
	}

	sel, err := facet.ParseSelection(body.Filter)
	if err != nil {
		metrics.PipelineFailuresTotal.WithLabelValues("filter").Inc()
		log.Warn("Ignoring filter", zap.Error(errors.Join(domain.ErrFilterMalformed, err)))
		sel = facet.Selection{}
	}
	req.Filter = sel

	mux, err := sse.New(w)
	if err != nil {
		s.logger.Error("Response writer cannot stream", zap.Error(err))
		writeError(w, http.StatusInternalServerError, CodeStreamingUnsupported, err.Error())
		return
	}

	closeStream := true
	defer func() {
		rvr := recover()
		if rvr != nil {
			metrics.PipelineFailuresTotal.WithLabelValues("panic").Inc()
			log.Error("Pipeline panicked", zap.Any("panic", rvr), zap.Stack("stacktrace"))
		}
		if closeStream {
			if cerr := mux.Close(); cerr != nil {
				log.Debug("Stream terminator not delivered", zap.Error(cerr))
			}
		}
		if rvr == http.ErrAbortHandler {
			panic(rvr)
		}
	}()

	res, err := s.pipeline.Run(r.Context(), req, mux)
	if err != nil && mux.Frames() == 0 && errors.Is(err, domain.ErrBadRequest) {
		// Nothing was sent yet, so the client still gets a plain error.
		closeStream = false
		s.handleDomainError(w, err)
		return
	}

	if err != nil {
		log.Warn("Answer stream ended early",
			zap.Error(err),
			zap.String("decision", res.Decision.String()),
			zap.Int("chunks", res.Chunks),
		)
		return
	}
	log.Debug("Answer streamed",
		zap.String("decision", res.Decision.String()),
		zap.Float64("top_score", res.TopScore),
		zap.Int("chunks", res.Chunks),
	)
}

// Facets handles GET /api/facets.
func (s *Server) Facets(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, FacetsResponse{Data: s.facets})
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{
		Status: string(report.Status),
		Checks: checks,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrBadRequest,
		domain.ErrRetrievalUnavailable,
		domain.ErrGenerationFailed,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

// badRequestHandler keeps the historical message for a blank question.
func badRequestHandler(w http.ResponseWriter, err error, msg string) bool {
	if !errors.Is(err, domain.ErrBadRequest) {
		return false
	}
	if errors.Is(err, domchat.ErrEmptyQuestion) {
		msg = msgNoQuestion
	}
	writeError(w, http.StatusBadRequest, CodeBadRequest, msg)
	return true
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}
