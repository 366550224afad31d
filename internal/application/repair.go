package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/paulmach/orb"

	"github.com/jobrunner/hospigeo/internal/domain"
	"github.com/jobrunner/hospigeo/internal/geometry"
	"github.com/jobrunner/hospigeo/internal/ports/output"
)

// Repair batching defaults.
const (
	DefaultRepairBatchSize = 1000
	DefaultRepairFlushSize = 500
)

// RepairService sanitizes stored boundary geometry in place.
type RepairService struct {
	store       output.BoundaryStore
	cache       output.BoundaryCache
	metrics     output.MetricsCollector
	collections BoundaryCollections
	batchSize   int
	flushSize   int
	logger      *slog.Logger

	// Repairs run one at a time.
	mu sync.Mutex
}

// NewRepairService creates a new repair service.
func NewRepairService(
	store output.BoundaryStore,
	cache output.BoundaryCache,
	metrics output.MetricsCollector,
	collections BoundaryCollections,
	batchSize, flushSize int,
	logger *slog.Logger,
) *RepairService {
	if batchSize <= 0 {
		batchSize = DefaultRepairBatchSize
	}
	if flushSize <= 0 {
		flushSize = DefaultRepairFlushSize
	}
	return &RepairService{
		store:       store,
		cache:       cache,
		metrics:     metrics,
		collections: collections,
		batchSize:   batchSize,
		flushSize:   flushSize,
		logger:      logger,
	}
}

// Repair sanitizes every document of collection and writes corrected
// geometry back. Records that fail to decode or sanitize are logged and
// skipped; only cursor and write failures abort the pass.
func (s *RepairService) Repair(ctx context.Context, collection string) (*domain.RepairResult, error) {
	level, err := s.collections.Resolve(collection)
	if err != nil {
		return nil, err
	}

	if !s.mu.TryLock() {
		return nil, fmt.Errorf("repair of %s: %w", collection, domain.ErrRepairRunning)
	}
	defer s.mu.Unlock()

	return s.repair(ctx, collection, level)
}

// RepairAll repairs every level collection in turn. A failing collection
// does not stop the others; their errors are joined.
func (s *RepairService) RepairAll(ctx context.Context) ([]domain.RepairResult, error) {
	if !s.mu.TryLock() {
		return nil, fmt.Errorf("repair of all levels: %w", domain.ErrRepairRunning)
	}
	defer s.mu.Unlock()

	var (
		results []domain.RepairResult
		errs    []error
	)
	for _, level := range domain.AllBoundaryLevels {
		res, err := s.repair(ctx, level.Collection(s.collections.Prefix), level)
		if res != nil {
			results = append(results, *res)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return results, errors.Join(errs...)
}

func (s *RepairService) repair(ctx context.Context, collection string, level domain.BoundaryLevel) (*domain.RepairResult, error) {
	s.logger.Info("boundary repair started", "collection", collection)

	result := &domain.RepairResult{Collection: collection}
	pending := make([]domain.GeometryUpdate, 0, s.flushSize)

	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		matched, err := s.store.UpdateGeometries(ctx, collection, pending)
		if err != nil {
			return fmt.Errorf("writing %d geometries to %s: %w", len(pending), collection, err)
		}
		if missed := len(pending) - matched; missed > 0 {
			result.Cleaned -= missed
			result.Skipped += missed
			s.logger.Warn("repaired geometries matched no document",
				"collection", collection,
				"staged", len(pending),
				"matched", matched,
			)
		}
		s.metrics.AddGeometriesRepaired(collection, matched)
		s.logger.Debug("repaired geometries flushed", "collection", collection, "count", matched)
		pending = make([]domain.GeometryUpdate, 0, s.flushSize)
		return nil
	}

	for f, err := range s.store.Stream(ctx, collection, s.batchSize) {
		if err != nil {
			var recErr *domain.RecordError
			if !errors.As(err, &recErr) {
				return result, fmt.Errorf("streaming %s: %w", collection, err)
			}
			result.Total++
			result.Skipped++
			s.logger.Warn("skipping undecodable boundary", "collection", collection, "id", recErr.ID, "error", recErr.Err)
			continue
		}

		result.Total++
		g, err := sanitizeRecord(f)
		if err != nil {
			result.Skipped++
			s.logger.Warn("skipping unrepairable boundary", "collection", collection, "id", f.ID, "error", err)
			continue
		}

		pending = append(pending, domain.GeometryUpdate{ID: f.ID, Key: f.Key, Geometry: g})
		result.Cleaned++
		if len(pending) == s.flushSize {
			if err := flush(); err != nil {
				return result, err
			}
		}
	}

	if err := flush(); err != nil {
		return result, err
	}

	if level != "" {
		if err := s.cache.InvalidateLevel(ctx, level); err != nil {
			s.logger.Warn("failed to invalidate boundary cache", "level", level, "error", err)
		}
	}

	s.logger.Info("boundary repair completed",
		"collection", collection,
		"total", result.Total,
		"cleaned", result.Cleaned,
		"skipped", result.Skipped,
	)
	return result, nil
}

// sanitizeRecord isolates a single record so a panic in the sanitizer only
// skips that record.
func sanitizeRecord(f domain.BoundaryFeature) (g orb.Geometry, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sanitizer panic: %v", r)
		}
	}()
	return geometry.Sanitize(f.Geometry)
}
