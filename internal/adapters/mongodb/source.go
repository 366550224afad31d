package mongodb

import (
	"context"
	"iter"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/jobrunner/hospigeo/internal/domain"
)

// EntitySource implements output.EntitySource.
type EntitySource struct {
	db          *mongo.Database
	collections Collections
	batchSize   int
}

func (s *EntitySource) find() *options.FindOptionsBuilder {
	return options.Find().SetBatchSize(int32(s.batchSize))
}

// Hospitals implements output.EntitySource.
func (s *EntitySource) Hospitals(ctx context.Context) iter.Seq2[domain.Facility, error] {
	return stream(ctx, s.db.Collection(s.collections.Hospitals), bson.D{}, s.find(), func(raw bson.Raw) (domain.Facility, error) {
		return decodeFacility(raw, true)
	})
}

// Pharmacies implements output.EntitySource.
func (s *EntitySource) Pharmacies(ctx context.Context) iter.Seq2[domain.Facility, error] {
	return stream(ctx, s.db.Collection(s.collections.Pharmacies), bson.D{}, s.find(), func(raw bson.Raw) (domain.Facility, error) {
		return decodeFacility(raw, false)
	})
}

// MapFeatures implements output.EntitySource.
func (s *EntitySource) MapFeatures(ctx context.Context) iter.Seq2[domain.MapFeature, error] {
	return stream(ctx, s.db.Collection(s.collections.MapFeatures), bson.D{}, s.find(), decodeMapFeature)
}

// SigunguPoints implements output.EntitySource.
func (s *EntitySource) SigunguPoints(ctx context.Context) iter.Seq2[domain.SigunguPoint, error] {
	return stream(ctx, s.db.Collection(s.collections.SigunguCoords), bson.D{}, s.find(), decodeSigunguPoint)
}

// Boundaries implements output.EntitySource.
func (s *EntitySource) Boundaries(ctx context.Context) iter.Seq2[domain.BoundaryFeature, error] {
	return stream(ctx, s.db.Collection(s.collections.Boundaries), bson.D{}, s.find(), func(raw bson.Raw) (domain.BoundaryFeature, error) {
		return decodeBoundary(raw, true)
	})
}
