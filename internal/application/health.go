package application

import (
	"context"
	"time"

	"github.com/jobrunner/hospigeo/internal/ports/input"
)

// pingTimeout bounds a single dependency probe.
const pingTimeout = 2 * time.Second

// Pinger is a dependency that can be probed.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthService provides health check functionality.
type HealthService struct {
	deps map[string]Pinger
}

// NewHealthService creates a new health service probing the named
// dependencies.
func NewHealthService(deps map[string]Pinger) *HealthService {
	return &HealthService{deps: deps}
}

// IsHealthy returns true if the service is healthy.
func (s *HealthService) IsHealthy(_ context.Context) bool {
	return true // Process is up
}

// IsReady returns true when every dependency answers.
func (s *HealthService) IsReady(ctx context.Context) bool {
	for _, status := range s.probe(ctx) {
		if status != "ok" {
			return false
		}
	}
	return true
}

// GetHealthDetails returns detailed health information.
func (s *HealthService) GetHealthDetails(ctx context.Context) input.HealthDetails {
	components := s.probe(ctx)

	ready := true
	for _, status := range components {
		if status != "ok" {
			ready = false
		}
	}

	return input.HealthDetails{
		Healthy:    s.IsHealthy(ctx),
		Ready:      ready,
		Components: components,
	}
}

func (s *HealthService) probe(ctx context.Context) map[string]string {
	components := make(map[string]string, len(s.deps))
	for name, dep := range s.deps {
		pctx, cancel := context.WithTimeout(ctx, pingTimeout)
		err := dep.Ping(pctx)
		cancel()

		if err != nil {
			components[name] = "error: " + err.Error()
		} else {
			components[name] = "ok"
		}
	}
	return components
}
