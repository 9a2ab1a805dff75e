package db

import (
	"context"
	"time"
)

// Store is the main database facade combining all sub-interfaces.
//
//nolint:interfacebloat // facade by design -- consumers use narrow sub-interfaces (ISP)
type Store interface {
	Pinger
	KVStore
	IndexInspector
	Searcher
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// KVStore provides simple key-value operations.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// IndexInspector reports whether a search index is present.
type IndexInspector interface {
	IndexExists(ctx context.Context, name string) (bool, error)
}

// Searcher provides vector search over FT indexes.
type Searcher interface {
	SearchKNN(ctx context.Context, q *KNNQuery) (*SearchResult, error)
}
