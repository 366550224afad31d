package application

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/jobrunner/hospigeo/internal/domain"
	"github.com/jobrunner/hospigeo/internal/ports/output"
)

// datasetExt is the file extension of boundary datasets.
const datasetExt = ".geojson"

// maxDatasetSize bounds how much of one dataset file is read.
const maxDatasetSize = 512 << 20

// ImportStats summarizes one dataset import pass.
type ImportStats struct {
	Imported int
	Skipped  int
	Features int
}

// DatasetImporter loads boundary datasets named {level}.geojson from dataset
// storage into the level collections. Geometry is sanitized before it is
// written; the level's spatial index is ensured afterwards.
type DatasetImporter struct {
	storage     output.DatasetStorage
	store       output.BoundaryStore
	cache       output.BoundaryCache
	indexes     *SpatialIndexService
	collections BoundaryCollections
	logger      *slog.Logger

	mu   sync.Mutex
	seen map[string]string // key -> version of the last import
}

// NewDatasetImporter creates a new dataset importer.
func NewDatasetImporter(
	storage output.DatasetStorage,
	store output.BoundaryStore,
	cache output.BoundaryCache,
	indexes *SpatialIndexService,
	collections BoundaryCollections,
	logger *slog.Logger,
) *DatasetImporter {
	return &DatasetImporter{
		storage:     storage,
		store:       store,
		cache:       cache,
		indexes:     indexes,
		collections: collections,
		logger:      logger,
		seen:        make(map[string]string),
	}
}

// Sync imports every dataset that is new or changed since the last pass.
// A failing dataset is logged and does not stop the others.
func (i *DatasetImporter) Sync(ctx context.Context) (ImportStats, error) {
	objects, err := i.storage.List(ctx)
	if err != nil {
		return ImportStats{}, fmt.Errorf("listing datasets: %w", err)
	}

	var stats ImportStats
	for _, obj := range objects {
		if _, ok := LevelForDataset(obj.Key); !ok {
			continue
		}

		version := objectVersion(obj)
		if i.lastVersion(obj.Key) == version {
			stats.Skipped++
			continue
		}

		n, err := i.Import(ctx, obj.Key)
		if err != nil {
			i.logger.Error("dataset import failed", "key", obj.Key, "error", err)
			continue
		}
		i.markSeen(obj.Key, version)
		stats.Imported++
		stats.Features += n
	}

	return stats, nil
}

// Import loads one dataset into its level collection and returns the number
// of upserted boundaries.
func (i *DatasetImporter) Import(ctx context.Context, key string) (int, error) {
	level, ok := LevelForDataset(key)
	if !ok {
		return 0, &domain.ValidationError{
			Field:      "key",
			Value:      key,
			Constraint: "{ctprvn|sig|emd|li}.geojson",
			Message:    "dataset name does not match a boundary level",
			Err:        domain.ErrUnknownCollection,
		}
	}

	i.logger.Info("importing boundary dataset", "key", key, "level", level)

	features, err := i.read(ctx, key, level)
	if err != nil {
		return 0, err
	}

	collection := level.Collection(i.collections.Prefix)
	n, err := i.store.UpsertBoundaries(ctx, collection, features)
	if err != nil {
		return 0, fmt.Errorf("upserting %s: %w", collection, err)
	}

	if err := i.cache.InvalidateLevel(ctx, level); err != nil {
		i.logger.Warn("failed to invalidate boundary cache", "level", level, "error", err)
	}
	if _, err := i.indexes.EnsureSpatialIndex(ctx, collection); err != nil {
		i.logger.Warn("spatial index after import failed", "collection", collection, "error", err)
	}

	i.logger.Info("boundary dataset imported", "key", key, "collection", collection, "boundaries", n)
	return n, nil
}

func (i *DatasetImporter) read(ctx context.Context, key string, level domain.BoundaryLevel) ([]domain.BoundaryFeature, error) {
	rc, err := i.storage.Open(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", key, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, maxDatasetSize))
	if err != nil {
		return nil, &domain.StorageError{Operation: "read", Key: key, Err: err}
	}

	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", key, err)
	}

	keys := level.Keys()
	features := make([]domain.BoundaryFeature, 0, len(fc.Features))
	for n, f := range fc.Features {
		switch f.Geometry.(type) {
		case orb.Polygon, orb.MultiPolygon:
		default:
			i.logger.Warn("skipping non-polygonal feature", "key", key, "index", n)
			continue
		}

		code := domain.PropertyString(f.Properties, keys.Code)
		if code == "" {
			i.logger.Warn("skipping feature without code", "key", key, "index", n, "property", keys.Code)
			continue
		}

		feature := domain.BoundaryFeature{
			ID:         code,
			Code:       code,
			Name:       domain.PropertyString(f.Properties, keys.Name),
			Geometry:   f.Geometry,
			Properties: map[string]any(f.Properties),
		}
		g, err := sanitizeRecord(feature)
		if err != nil {
			i.logger.Warn("skipping unrepairable feature", "key", key, "code", code, "error", err)
			continue
		}
		feature.Geometry = g
		features = append(features, feature)
	}

	return features, nil
}

// LevelForDataset maps a dataset key such as "boundaries/sig.geojson" to its
// level.
func LevelForDataset(key string) (domain.BoundaryLevel, bool) {
	base := path.Base(strings.ReplaceAll(key, "\\", "/"))
	name, ok := strings.CutSuffix(strings.ToLower(base), datasetExt)
	if !ok {
		return "", false
	}
	level, err := domain.ParseBoundaryLevel(name)
	if err != nil {
		return "", false
	}
	return level, true
}

func objectVersion(obj output.StorageObject) string {
	if obj.ETag != "" {
		return obj.ETag
	}
	return fmt.Sprintf("%d-%d", obj.Size, obj.LastModified)
}

func (i *DatasetImporter) lastVersion(key string) string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.seen[key]
}

func (i *DatasetImporter) markSeen(key, version string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.seen[key] = version
}

// Forget drops the remembered version of key so the next Sync imports it.
func (i *DatasetImporter) Forget(key string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.seen, key)
}
