package mongodb

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/jobrunner/hospigeo/internal/domain"
)

// spatialIndexName is the name of the geometry index this service creates.
const spatialIndexName = "geometry_2dsphere"

// BoundaryStore implements output.BoundaryStore.
type BoundaryStore struct {
	db     *mongo.Database
	logger *slog.Logger
}

// withoutGeometry drops geometry from lookup results.
var withoutGeometry = bson.D{{Key: "geometry", Value: 0}}

// Stream implements output.BoundaryStore.
func (s *BoundaryStore) Stream(ctx context.Context, collection string, batchSize int) iter.Seq2[domain.BoundaryFeature, error] {
	opts := options.Find().SetBatchSize(int32(batchSize))
	return stream(ctx, s.db.Collection(collection), bson.D{}, opts, func(raw bson.Raw) (domain.BoundaryFeature, error) {
		return decodeBoundary(raw, true)
	})
}

// UpdateGeometries implements output.BoundaryStore.
func (s *BoundaryStore) UpdateGeometries(ctx context.Context, collection string, updates []domain.GeometryUpdate) (int, error) {
	if len(updates) == 0 {
		return 0, nil
	}

	models := make([]mongo.WriteModel, 0, len(updates))
	for _, u := range updates {
		models = append(models, geometryUpdateModel(u))
	}

	res, err := s.db.Collection(collection).BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return 0, &domain.StorageError{Operation: "bulk update", Key: collection, Err: err}
	}
	return int(res.MatchedCount), nil
}

func geometryUpdateModel(u domain.GeometryUpdate) *mongo.UpdateOneModel {
	return mongo.NewUpdateOneModel().
		SetFilter(bson.D{{Key: "_id", Value: updateKey(u)}}).
		SetUpdate(bson.D{{Key: "$set", Value: bson.D{
			{Key: "geometry.type", Value: u.Geometry.GeoJSONType()},
			{Key: "geometry.coordinates", Value: coordinates(u.Geometry)},
		}}})
}

// UpsertBoundaries implements output.BoundaryStore.
func (s *BoundaryStore) UpsertBoundaries(ctx context.Context, collection string, features []domain.BoundaryFeature) (int, error) {
	if len(features) == 0 {
		return 0, nil
	}

	models := make([]mongo.WriteModel, 0, len(features))
	for _, f := range features {
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.D{{Key: "code", Value: f.Code}}).
			SetUpdate(bson.D{{Key: "$set", Value: bson.D{
				{Key: "code", Value: f.Code},
				{Key: "name", Value: f.Name},
				{Key: "properties", Value: f.Properties},
				{Key: "geometry", Value: geometryValue(f.Geometry)},
			}}}).
			SetUpsert(true))
	}

	res, err := s.db.Collection(collection).BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return 0, &domain.StorageError{Operation: "bulk upsert", Key: collection, Err: err}
	}
	return int(res.MatchedCount + res.UpsertedCount), nil
}

// CollectionExists implements output.BoundaryStore.
func (s *BoundaryStore) CollectionExists(ctx context.Context, collection string) (bool, error) {
	names, err := s.db.ListCollectionNames(ctx, bson.D{{Key: "name", Value: collection}})
	if err != nil {
		return false, &domain.StorageError{Operation: "list collections", Key: collection, Err: err}
	}
	return len(names) > 0, nil
}

// HasSpatialIndex implements output.BoundaryStore.
func (s *BoundaryStore) HasSpatialIndex(ctx context.Context, collection string) (bool, error) {
	cur, err := s.db.Collection(collection).Indexes().List(ctx)
	if err != nil {
		return false, &domain.StorageError{Operation: "list indexes", Key: collection, Err: err}
	}
	defer cur.Close(ctx)

	for cur.Next(ctx) {
		var spec struct {
			Key bson.D `bson:"key"`
		}
		if err := cur.Decode(&spec); err != nil {
			return false, fmt.Errorf("decoding index spec of %s: %w", collection, err)
		}
		for _, e := range spec.Key {
			if e.Value == "2dsphere" {
				return true, nil
			}
		}
	}
	if err := cur.Err(); err != nil {
		return false, &domain.StorageError{Operation: "list indexes", Key: collection, Err: err}
	}
	return false, nil
}

// CreateSpatialIndex implements output.BoundaryStore.
func (s *BoundaryStore) CreateSpatialIndex(ctx context.Context, collection string) error {
	model := mongo.IndexModel{
		Keys:    bson.D{{Key: "geometry", Value: "2dsphere"}},
		Options: options.Index().SetName(spatialIndexName),
	}
	_, err := s.db.Collection(collection).Indexes().CreateOne(ctx, model)
	return classifyIndexError(collection, err)
}

// FindContaining implements output.BoundaryStore.
func (s *BoundaryStore) FindContaining(ctx context.Context, collection string, at domain.Coordinate) (*domain.BoundaryFeature, error) {
	filter := bson.D{{Key: "geometry", Value: bson.D{{Key: "$geoIntersects", Value: bson.D{
		{Key: "$geometry", Value: bson.D{
			{Key: "type", Value: "Point"},
			{Key: "coordinates", Value: bson.A{at.Lng, at.Lat}},
		}},
	}}}}}

	raw, err := s.db.Collection(collection).
		FindOne(ctx, filter, options.FindOne().SetProjection(withoutGeometry)).
		Raw()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%s at %s: %w", collection, at, domain.ErrBoundaryNotFound)
	}
	if err != nil {
		return nil, &domain.StorageError{Operation: "geoIntersects", Key: collection, Err: err}
	}

	f, err := decodeBoundary(raw, false)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// FindIntersecting implements output.BoundaryStore.
func (s *BoundaryStore) FindIntersecting(ctx context.Context, collection string, box domain.BoundingBox, limit int) ([]domain.BoundaryFeature, error) {
	sw, ne := box.SouthWest, box.NorthEast
	ring := bson.A{
		bson.A{sw.Lng, sw.Lat},
		bson.A{ne.Lng, sw.Lat},
		bson.A{ne.Lng, ne.Lat},
		bson.A{sw.Lng, ne.Lat},
		bson.A{sw.Lng, sw.Lat},
	}
	filter := bson.D{{Key: "geometry", Value: bson.D{{Key: "$geoIntersects", Value: bson.D{
		{Key: "$geometry", Value: bson.D{
			{Key: "type", Value: "Polygon"},
			{Key: "coordinates", Value: bson.A{ring}},
		}},
	}}}}}

	opts := options.Find().SetProjection(withoutGeometry).SetLimit(int64(limit))
	var features []domain.BoundaryFeature
	for f, err := range stream(ctx, s.db.Collection(collection), filter, opts, func(raw bson.Raw) (domain.BoundaryFeature, error) {
		return decodeBoundary(raw, false)
	}) {
		if err != nil {
			var recErr *domain.RecordError
			if errors.As(err, &recErr) {
				s.logger.Warn("skipping undecodable boundary", "collection", collection, "id", recErr.ID, "error", recErr.Err)
				continue
			}
			return nil, err
		}
		features = append(features, f)
	}
	return features, nil
}

// Ping implements output.BoundaryStore.
func (s *BoundaryStore) Ping(ctx context.Context) error {
	return s.db.Client().Ping(ctx, nil)
}

// stream iterates a cursor lazily. Documents that fail to decode are yielded
// as *domain.RecordError; cursor failures end the sequence.
func stream[T any](
	ctx context.Context,
	coll *mongo.Collection,
	filter any,
	opts options.Lister[options.FindOptions],
	decode func(bson.Raw) (T, error),
) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T

		cur, err := coll.Find(ctx, filter, opts)
		if err != nil {
			yield(zero, &domain.StorageError{Operation: "find", Key: coll.Name(), Err: err})
			return
		}
		defer cur.Close(context.WithoutCancel(ctx))

		for cur.Next(ctx) {
			v, err := decode(cur.Current)
			if err != nil {
				if !yield(zero, &domain.RecordError{ID: rawID(cur.Current), Err: err}) {
					return
				}
				continue
			}
			if !yield(v, nil) {
				return
			}
		}
		if err := cur.Err(); err != nil {
			yield(zero, &domain.StorageError{Operation: "cursor", Key: coll.Name(), Err: err})
		}
	}
}
