package docextract

import (
	"context"
	"time"

	healthuc "github.com/kailas-cloud/docextract/internal/usecase/health"
)

// HealthStatus represents the aggregated system health.
type HealthStatus struct {
	Status string            // "ok", "degraded"
	Checks map[string]string // component → "ok"/"error"
}

// Health checks the model endpoint and, when configured, Redis.
func (c *Client) Health(ctx context.Context) HealthStatus {
	start := time.Now()
	report := c.healthSvc.Check(ctx)
	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}
	c.obs.observe("health", start, nil)
	return HealthStatus{
		Status: string(report.Status),
		Checks: checks,
	}
}

// healthUseCase is the internal interface for health checks.
type healthUseCase interface {
	Check(ctx context.Context) healthuc.Report
}
