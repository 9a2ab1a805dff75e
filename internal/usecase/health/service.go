package health

import "context"

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
	// CheckMissing indicates the document index does not exist.
	CheckMissing CheckResult = "missing"
)

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Deps lists the components to check. Nil providers are skipped.
type Deps struct {
	DB         DBPinger
	Index      IndexInspector
	IndexName  string
	Embedding  ProviderChecker
	Generation ProviderChecker
}

// Service coordinates health checks.
type Service struct {
	deps Deps
}

// New creates a Service.
func New(deps Deps) *Service {
	return &Service{deps: deps}
}

// Check runs health checks against all components.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)

	checks["database"] = result(s.deps.DB.Ping(ctx))

	if s.deps.Index != nil && s.deps.IndexName != "" {
		ok, err := s.deps.Index.IndexExists(ctx, s.deps.IndexName)
		switch {
		case err != nil:
			checks["index"] = CheckError
		case !ok:
			checks["index"] = CheckMissing
		default:
			checks["index"] = CheckOK
		}
	}

	if s.deps.Embedding != nil {
		checks["embedding"] = result(s.deps.Embedding.HealthCheck(ctx))
	}
	if s.deps.Generation != nil {
		checks["generation"] = result(s.deps.Generation.HealthCheck(ctx))
	}

	status := Healthy
	for _, v := range checks {
		if v != CheckOK {
			status = Degraded
			break
		}
	}

	return Report{Status: status, Checks: checks}
}

func result(err error) CheckResult {
	if err != nil {
		return CheckError
	}
	return CheckOK
}
