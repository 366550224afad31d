// Package input defines the primary/driving ports of the application.
package input

import (
	"context"

	"github.com/jobrunner/hospigeo/internal/domain"
)

// ReindexService defines the primary port for blue-green search reindexing.
type ReindexService interface {
	// Reindex rebuilds the index of one entity type and swaps its alias.
	Reindex(ctx context.Context, t domain.EntityType) (*domain.ReindexSummary, error)

	// Status returns a snapshot of the current reindex job.
	Status() domain.ReindexJob

	// ListIndices returns stats for every physical index.
	ListIndices(ctx context.Context) ([]domain.IndexStats, error)

	// History returns the latest recorded reindex runs.
	History(ctx context.Context, limit int) ([]domain.ReindexRun, error)
}

// SpatialIndexService defines the primary port for boundary spatial indexes.
type SpatialIndexService interface {
	// EnsureAll ensures a spatial index on every boundary collection.
	EnsureAll(ctx context.Context) []domain.SpatialIndexResult

	// EnsureSpatialIndex ensures a spatial index on one collection.
	EnsureSpatialIndex(ctx context.Context, collection string) (domain.SpatialIndexResult, error)

	// Status reports existence and index state per boundary collection.
	Status(ctx context.Context) []domain.CollectionIndexStatus
}

// BoundaryResolver defines the primary port for containment lookups.
type BoundaryResolver interface {
	// Resolve parses raw request values and returns the containing boundary.
	Resolve(ctx context.Context, boundaryType, lat, lng string) (*domain.BoundaryMatch, error)

	// Viewport returns the boundaries of the zoom's level intersecting box.
	Viewport(ctx context.Context, zoom int, box domain.BoundingBox) (*domain.Viewport, error)
}

// RepairService defines the primary port for boundary geometry repair.
type RepairService interface {
	// Repair sanitizes every geometry of one boundary collection.
	Repair(ctx context.Context, collection string) (*domain.RepairResult, error)

	// RepairAll repairs every boundary level collection in turn.
	RepairAll(ctx context.Context) ([]domain.RepairResult, error)
}

// HealthChecker defines the primary port for health checks.
type HealthChecker interface {
	// IsHealthy returns true if the service is healthy.
	IsHealthy(ctx context.Context) bool

	// IsReady returns true if the service is ready to accept requests.
	IsReady(ctx context.Context) bool

	// GetHealthDetails returns detailed health information.
	GetHealthDetails(ctx context.Context) HealthDetails
}

// HealthDetails contains detailed health information.
type HealthDetails struct {
	Healthy    bool              // Overall health status
	Ready      bool              // Ready to accept requests
	Components map[string]string // Component statuses
}
