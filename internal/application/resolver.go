package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jobrunner/hospigeo/internal/domain"
	"github.com/jobrunner/hospigeo/internal/ports/output"
)

// Resolver defaults.
const (
	DefaultCacheTTL      = 24 * time.Hour
	DefaultViewportLimit = 500
)

// ResolverService answers point-in-polygon lookups against the boundary
// collections.
type ResolverService struct {
	store         output.BoundaryStore
	cache         output.BoundaryCache
	metrics       output.MetricsCollector
	prefix        string
	ttl           time.Duration
	viewportLimit int
	logger        *slog.Logger
}

// NewResolverService creates a new resolver.
func NewResolverService(
	store output.BoundaryStore,
	cache output.BoundaryCache,
	metrics output.MetricsCollector,
	prefix string,
	ttl time.Duration,
	logger *slog.Logger,
) *ResolverService {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &ResolverService{
		store:         store,
		cache:         cache,
		metrics:       metrics,
		prefix:        prefix,
		ttl:           ttl,
		viewportLimit: DefaultViewportLimit,
		logger:        logger,
	}
}

// Resolve validates raw request values and returns the boundary of the
// given type containing the coordinate. A coordinate outside every boundary
// yields domain.ErrBoundaryNotFound.
func (s *ResolverService) Resolve(ctx context.Context, boundaryType, lat, lng string) (*domain.BoundaryMatch, error) {
	at, err := domain.ParseCoordinate(lat, lng)
	if err != nil {
		return nil, err
	}
	level, err := domain.ParseBoundaryLevel(boundaryType)
	if err != nil {
		return nil, err
	}
	return s.Locate(ctx, level, at)
}

// Locate returns the boundary of level containing at.
func (s *ResolverService) Locate(ctx context.Context, level domain.BoundaryLevel, at domain.Coordinate) (*domain.BoundaryMatch, error) {
	if err := at.Validate(); err != nil {
		return nil, err
	}
	at = at.Rounded()
	start := time.Now()
	defer func() {
		s.metrics.ObserveLookupDuration(string(level), time.Since(start))
	}()

	cached, ok, err := s.cache.Get(ctx, level, at)
	switch {
	case err != nil:
		s.logger.Warn("boundary cache read failed", "level", level, "error", err)
	case ok:
		s.metrics.IncLookup(string(level), "cache_hit")
		return cached, nil
	}

	collection := level.Collection(s.prefix)
	feature, err := s.store.FindContaining(ctx, collection, at)
	if err != nil {
		if errors.Is(err, domain.ErrBoundaryNotFound) {
			s.metrics.IncLookup(string(level), "not_found")
			s.logger.Debug("no containing boundary", "level", level, "coordinate", at)
			return nil, err
		}
		s.metrics.IncLookup(string(level), "error")
		return nil, fmt.Errorf("looking up %s at %s: %w", level, at, err)
	}

	match := domain.NewBoundaryMatch(level, collection, feature)
	s.metrics.IncLookup(string(level), "found")

	if err := s.cache.Set(ctx, level, at, match, s.ttl); err != nil {
		s.logger.Warn("boundary cache write failed", "level", level, "error", err)
	}
	return &match, nil
}

// Viewport returns the boundaries of the level drawn at zoom that intersect
// box.
func (s *ResolverService) Viewport(ctx context.Context, zoom int, box domain.BoundingBox) (*domain.Viewport, error) {
	level, err := domain.LevelForZoom(zoom)
	if err != nil {
		return nil, err
	}
	if err := box.Validate(); err != nil {
		return nil, err
	}

	collection := level.Collection(s.prefix)
	features, err := s.store.FindIntersecting(ctx, collection, box, s.viewportLimit)
	if err != nil {
		return nil, fmt.Errorf("querying %s viewport: %w", level, err)
	}

	vp := &domain.Viewport{
		Zoom:       zoom,
		Level:      level,
		Boundaries: make([]domain.BoundaryMatch, 0, len(features)),
	}
	for i := range features {
		vp.Boundaries = append(vp.Boundaries, domain.NewBoundaryMatch(level, collection, &features[i]))
	}
	return vp, nil
}
