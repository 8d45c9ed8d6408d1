package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/kailas-cloud/docextract/internal/config"
	"github.com/kailas-cloud/docextract/internal/domain"
	extractionuc "github.com/kailas-cloud/docextract/internal/usecase/extraction"
)

// modelProbe checks the model endpoint through the binding held by the shared handle.
// The binding is built lazily, so a probe may trigger its construction.
type modelProbe struct {
	mu       sync.Mutex
	checker  domain.HealthChecker
	settings *config.SettingsProvider
	handle   *extractionuc.Handle
}

func (p *modelProbe) set(c domain.HealthChecker) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.checker = c
}

func (p *modelProbe) current() domain.HealthChecker {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.checker
}

// HealthCheck implements health.ModelChecker.
func (p *modelProbe) HealthCheck(ctx context.Context) error {
	if p.current() == nil {
		settings, err := p.settings.Get()
		if err != nil {
			return fmt.Errorf("model health check: %w", err)
		}
		if _, err := p.handle.Get(*settings); err != nil {
			return fmt.Errorf("model health check: %w", err)
		}
	}

	checker := p.current()
	if checker == nil {
		return fmt.Errorf("model health check: binding unavailable")
	}
	if err := checker.HealthCheck(ctx); err != nil {
		return fmt.Errorf("model health check: %w", err)
	}
	return nil
}
