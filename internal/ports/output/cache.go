package output

import (
	"context"
	"time"

	"github.com/jobrunner/hospigeo/internal/domain"
)

// BoundaryCache defines the secondary port for caching containment lookups.
type BoundaryCache interface {
	// Get returns a cached match and whether it was present.
	Get(ctx context.Context, level domain.BoundaryLevel, at domain.Coordinate) (*domain.BoundaryMatch, bool, error)

	// Set stores a match.
	Set(ctx context.Context, level domain.BoundaryLevel, at domain.Coordinate, match domain.BoundaryMatch, ttl time.Duration) error

	// InvalidateLevel drops every cached match of a level.
	InvalidateLevel(ctx context.Context, level domain.BoundaryLevel) error
}

// NoOpCache is a BoundaryCache that never stores anything.
type NoOpCache struct{}

// Get implements BoundaryCache.
func (NoOpCache) Get(_ context.Context, _ domain.BoundaryLevel, _ domain.Coordinate) (*domain.BoundaryMatch, bool, error) {
	return nil, false, nil
}

// Set implements BoundaryCache.
func (NoOpCache) Set(_ context.Context, _ domain.BoundaryLevel, _ domain.Coordinate, _ domain.BoundaryMatch, _ time.Duration) error {
	return nil
}

// InvalidateLevel implements BoundaryCache.
func (NoOpCache) InvalidateLevel(_ context.Context, _ domain.BoundaryLevel) error {
	return nil
}
