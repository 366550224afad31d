package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/jobrunner/hospigeo/internal/domain"
	"github.com/jobrunner/hospigeo/internal/ports/output"
)

// maxConcurrentIndexBuilds bounds parallel index builds in EnsureAll.
const maxConcurrentIndexBuilds = 4

// SpatialIndexService ensures geometry indexes on boundary collections.
type SpatialIndexService struct {
	store       output.BoundaryStore
	collections BoundaryCollections
	logger      *slog.Logger
}

// NewSpatialIndexService creates a new spatial index service.
func NewSpatialIndexService(store output.BoundaryStore, collections BoundaryCollections, logger *slog.Logger) *SpatialIndexService {
	return &SpatialIndexService{store: store, collections: collections, logger: logger}
}

// EnsureSpatialIndex creates a geometry index on collection unless one
// exists. Advisory data-quality failures yield success with a warning; any
// other failure is returned.
func (s *SpatialIndexService) EnsureSpatialIndex(ctx context.Context, collection string) (domain.SpatialIndexResult, error) {
	if _, err := s.collections.Resolve(collection); err != nil {
		return domain.SpatialIndexResult{Collection: collection, Error: err.Error()}, err
	}
	return s.ensure(ctx, collection)
}

// EnsureAll runs EnsureSpatialIndex on every known collection concurrently
// and reports each outcome.
func (s *SpatialIndexService) EnsureAll(ctx context.Context) []domain.SpatialIndexResult {
	collections := s.collections.All()
	results := make([]domain.SpatialIndexResult, len(collections))

	var g errgroup.Group
	g.SetLimit(maxConcurrentIndexBuilds)
	for i, c := range collections {
		g.Go(func() error {
			results[i], _ = s.ensure(ctx, c)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (s *SpatialIndexService) ensure(ctx context.Context, collection string) (domain.SpatialIndexResult, error) {
	result := domain.SpatialIndexResult{Collection: collection}

	fail := func(err error) (domain.SpatialIndexResult, error) {
		result.Error = err.Error()
		s.logger.Error("spatial index failed", "collection", collection, "error", err)
		return result, err
	}

	exists, err := s.store.CollectionExists(ctx, collection)
	if err != nil {
		return fail(fmt.Errorf("checking collection %s: %w", collection, err))
	}
	if !exists {
		return fail(fmt.Errorf("collection %s: %w", collection, domain.ErrNotFound))
	}

	has, err := s.store.HasSpatialIndex(ctx, collection)
	if err != nil {
		return fail(fmt.Errorf("listing indexes of %s: %w", collection, err))
	}
	if has {
		result.Success = true
		result.AlreadyExisted = true
		return result, nil
	}

	if err := s.store.CreateSpatialIndex(ctx, collection); err != nil {
		var advisory *domain.AdvisoryIndexError
		if errors.As(err, &advisory) {
			s.logger.Warn("spatial index created with warnings", "collection", collection, "warning", advisory.Err)
			result.Success = true
			result.Warning = advisory.Err.Error()
			return result, nil
		}
		return fail(fmt.Errorf("creating spatial index on %s: %w", collection, err))
	}

	s.logger.Info("spatial index created", "collection", collection)
	result.Success = true
	return result, nil
}

// Status reports, per known collection, whether it exists and whether it
// has a geometry index.
func (s *SpatialIndexService) Status(ctx context.Context) []domain.CollectionIndexStatus {
	collections := s.collections.All()
	statuses := make([]domain.CollectionIndexStatus, 0, len(collections))

	for _, c := range collections {
		st := domain.CollectionIndexStatus{Collection: c}
		st.Level, _ = s.collections.Resolve(c)

		exists, err := s.store.CollectionExists(ctx, c)
		if err != nil {
			st.Error = err.Error()
			statuses = append(statuses, st)
			continue
		}
		st.Exists = exists

		if exists {
			st.HasSpatialIndex, err = s.store.HasSpatialIndex(ctx, c)
			if err != nil {
				st.Error = err.Error()
			}
		}
		statuses = append(statuses, st)
	}

	return statuses
}
