package health

import "context"

// DBPinger checks database availability.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// IndexInspector checks that the document index exists.
type IndexInspector interface {
	IndexExists(ctx context.Context, name string) (bool, error)
}

// ProviderChecker checks an embedding or generation provider.
type ProviderChecker interface {
	HealthCheck(ctx context.Context) error
}
