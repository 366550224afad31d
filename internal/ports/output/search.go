package output

import (
	"context"

	"github.com/jobrunner/hospigeo/internal/domain"
)

// SearchEngine defines the secondary port for the search index backend.
type SearchEngine interface {
	// CreateIndex creates a physical index. Returns an error wrapping
	// domain.ErrIndexAlreadyExists if the name is taken.
	CreateIndex(ctx context.Context, name string, schema domain.IndexSchema) error

	// IndexExists reports whether a physical index exists.
	IndexExists(ctx context.Context, name string) (bool, error)

	// DeleteIndex removes a physical index.
	DeleteIndex(ctx context.Context, name string) error

	// ResolveAlias returns the physical indices an alias points at, or none.
	ResolveAlias(ctx context.Context, alias string) ([]string, error)

	// PutAlias adds alias to index without touching other aliases.
	PutAlias(ctx context.Context, index, alias string) error

	// SwapAlias atomically points alias at to, removing it from every index
	// in from within the same request.
	SwapAlias(ctx context.Context, alias string, from []string, to string) error

	// Bulk indexes documents and returns the per-item failures.
	Bulk(ctx context.Context, index string, docs []domain.SearchDocument) ([]domain.BulkItemFailure, error)

	// Refresh makes loaded documents searchable.
	Refresh(ctx context.Context, index string) error

	// ListIndices returns stats for every physical index.
	ListIndices(ctx context.Context) ([]domain.IndexStats, error)

	// Ping checks connectivity.
	Ping(ctx context.Context) error
}
