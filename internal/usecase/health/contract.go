package health

import "context"

// Pinger checks key-value store availability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ModelChecker checks model endpoint availability.
type ModelChecker interface {
	HealthCheck(ctx context.Context) error
}
