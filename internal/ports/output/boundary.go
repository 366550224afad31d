package output

import (
	"context"
	"iter"

	"github.com/jobrunner/hospigeo/internal/domain"
)

// BoundaryStore defines the secondary port for boundary collections in the
// document store.
type BoundaryStore interface {
	// Stream iterates a collection with a server-side cursor of the given
	// batch size. Per-document decode failures are yielded as
	// *domain.RecordError and iteration continues; any other error ends it.
	Stream(ctx context.Context, collection string, batchSize int) iter.Seq2[domain.BoundaryFeature, error]

	// UpdateGeometries writes geometry.type and geometry.coordinates for each
	// update in one batched write and returns the number of matched documents.
	UpdateGeometries(ctx context.Context, collection string, updates []domain.GeometryUpdate) (int, error)

	// UpsertBoundaries replaces boundaries by code, inserting missing ones.
	UpsertBoundaries(ctx context.Context, collection string, features []domain.BoundaryFeature) (int, error)

	// CollectionExists reports whether the collection exists.
	CollectionExists(ctx context.Context, collection string) (bool, error)

	// HasSpatialIndex reports whether a geometry-typed index exists.
	HasSpatialIndex(ctx context.Context, collection string) (bool, error)

	// CreateSpatialIndex creates the geometry index. Failures caused by the
	// data rather than the collection are returned as
	// *domain.AdvisoryIndexError.
	CreateSpatialIndex(ctx context.Context, collection string) error

	// FindContaining returns the first feature whose geometry contains the
	// coordinate, without its geometry. Returns domain.ErrBoundaryNotFound
	// if none does.
	FindContaining(ctx context.Context, collection string, at domain.Coordinate) (*domain.BoundaryFeature, error)

	// FindIntersecting returns features intersecting the box, without
	// geometry.
	FindIntersecting(ctx context.Context, collection string, box domain.BoundingBox, limit int) ([]domain.BoundaryFeature, error)

	// Ping checks connectivity.
	Ping(ctx context.Context) error
}
