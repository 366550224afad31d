package output

import (
	"context"
	"iter"

	"github.com/jobrunner/hospigeo/internal/domain"
)

// EntitySource defines the secondary port the reindex fetchers read from.
// Every method returns a lazy, finite sequence that restarts from scratch
// each time it is ranged over.
type EntitySource interface {
	Hospitals(ctx context.Context) iter.Seq2[domain.Facility, error]
	Pharmacies(ctx context.Context) iter.Seq2[domain.Facility, error]
	MapFeatures(ctx context.Context) iter.Seq2[domain.MapFeature, error]
	SigunguPoints(ctx context.Context) iter.Seq2[domain.SigunguPoint, error]
	Boundaries(ctx context.Context) iter.Seq2[domain.BoundaryFeature, error]
}
