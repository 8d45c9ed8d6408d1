package health

import (
	"context"
	"time"
)

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
)

// Component names in Report.Checks.
const (
	ComponentCache = "cache"
	ComponentModel = "model"
)

const checkTimeout = 5 * time.Second

// Report aggregates health check results.
type Report struct {
	Status Status                 `json:"status"`
	Checks map[string]CheckResult `json:"checks"`
}

// Service coordinates health checks. Unconfigured components are left out of the report.
type Service struct {
	cache Pinger
	model ModelChecker
}

// New creates a Service. Either dependency can be nil.
func New(cache Pinger, model ModelChecker) *Service {
	return &Service{cache: cache, model: model}
}

// Check runs the configured checks, each bounded by a short timeout.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)

	if s.cache != nil {
		checks[ComponentCache] = run(ctx, s.cache.Ping)
	}
	if s.model != nil {
		checks[ComponentModel] = run(ctx, s.model.HealthCheck)
	}

	status := Healthy
	for _, v := range checks {
		if v == CheckError {
			status = Degraded
			break
		}
	}
	return Report{Status: status, Checks: checks}
}

func run(ctx context.Context, check func(context.Context) error) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	if err := check(ctx); err != nil {
		return CheckError
	}
	return CheckOK
}
