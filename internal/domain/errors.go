package domain

import "errors"

var (
	// ErrBadRequest signals a request rejected before any streaming starts.
	ErrBadRequest = errors.New("bad request")
	// ErrRetrievalUnavailable signals that the embedding service or vector index failed.
	ErrRetrievalUnavailable = errors.New("retrieval unavailable")
	// ErrGenerationFailed signals a generative model failure, before or during streaming.
	ErrGenerationFailed = errors.New("generation failed")
	// ErrFilterMalformed signals a facet filter that could not be decoded.
	// Callers degrade to "no filter" instead of failing the request.
	ErrFilterMalformed = errors.New("filter malformed")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
)
