// Package application contains the application services.
package application

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"

	"github.com/jobrunner/hospigeo/internal/domain"
	"github.com/jobrunner/hospigeo/internal/geometry"
	"github.com/jobrunner/hospigeo/internal/ports/output"
)

// IndexConfig binds an entity type to its schema, fetcher and alias.
type IndexConfig struct {
	EntityType domain.EntityType
	Alias      string
	Schema     domain.IndexSchema
	// Fetch returns a fresh, finite document sequence on every call.
	Fetch func(ctx context.Context) iter.Seq2[domain.SearchDocument, error]
}

var (
	hospitalSchema = domain.IndexSchema{Fields: []domain.FieldSpec{
		{Name: "ykiho", Kind: domain.FieldKeyword},
		{Name: "yadmNm", Kind: domain.FieldText, KeywordSubfield: true},
		{Name: "location", Kind: domain.FieldGeoPoint},
		{Name: "clCdNm", Kind: domain.FieldKeyword},
		{Name: "addr", Kind: domain.FieldText},
		{Name: "telno", Kind: domain.FieldKeyword},
	}}

	pharmacySchema = domain.IndexSchema{Fields: []domain.FieldSpec{
		{Name: "ykiho", Kind: domain.FieldKeyword},
		{Name: "yadmNm", Kind: domain.FieldText},
		{Name: "location", Kind: domain.FieldGeoPoint},
		{Name: "addr", Kind: domain.FieldText},
		{Name: "telno", Kind: domain.FieldKeyword},
	}}

	mapSchema = domain.IndexSchema{Fields: []domain.FieldSpec{
		{Name: "type", Kind: domain.FieldKeyword},
		{Name: "properties", Kind: domain.FieldObject},
		{Name: "geometry", Kind: domain.FieldGeoShape},
	}}

	sigunguSchema = domain.IndexSchema{Fields: []domain.FieldSpec{
		{Name: "code", Kind: domain.FieldKeyword},
		{Name: "name", Kind: domain.FieldText},
		{Name: "location", Kind: domain.FieldGeoPoint},
	}}

	boundarySchema = domain.IndexSchema{Fields: []domain.FieldSpec{
		{Name: "code", Kind: domain.FieldKeyword},
		{Name: "name", Kind: domain.FieldText},
		{Name: "geometry", Kind: domain.FieldGeoShape},
	}}
)

// IndexRegistry maps every entity type to its IndexConfig. It holds no
// mutable state.
type IndexRegistry struct {
	source output.EntitySource
	logger *slog.Logger
}

// NewIndexRegistry creates a registry reading from source.
func NewIndexRegistry(source output.EntitySource, logger *slog.Logger) *IndexRegistry {
	return &IndexRegistry{source: source, logger: logger}
}

// Lookup returns the configuration of t.
func (r *IndexRegistry) Lookup(t domain.EntityType) (IndexConfig, error) {
	cfg := IndexConfig{EntityType: t, Alias: t.Alias()}

	switch t {
	case domain.EntityHospitals:
		cfg.Schema = hospitalSchema
		cfg.Fetch = project(r, r.source.Hospitals, domain.HospitalDocument)
	case domain.EntityPharmacies:
		cfg.Schema = pharmacySchema
		cfg.Fetch = project(r, r.source.Pharmacies, domain.PharmacyDocument)
	case domain.EntityMap:
		cfg.Schema = mapSchema
		cfg.Fetch = project(r, r.source.MapFeatures, domain.MapDocument)
	case domain.EntitySigunguCoords:
		cfg.Schema = sigunguSchema
		cfg.Fetch = project(r, r.source.SigunguPoints, domain.SigunguDocument)
	case domain.EntityBoundaries:
		cfg.Schema = boundarySchema
		cfg.Fetch = project(r, r.sanitizedBoundaries, domain.BoundaryDocument)
	default:
		return IndexConfig{}, fmt.Errorf("index type %q: %w", t, domain.ErrUnknownIndexType)
	}

	return cfg, nil
}

// All returns the configuration of every entity type in a stable order.
func (r *IndexRegistry) All() []IndexConfig {
	configs := make([]IndexConfig, 0, len(domain.AllEntityTypes))
	for _, t := range domain.AllEntityTypes {
		cfg, err := r.Lookup(t)
		if err != nil {
			panic(fmt.Sprintf("entity type %s has no index config", t))
		}
		configs = append(configs, cfg)
	}
	return configs
}

// sanitizedBoundaries repairs boundary geometry on the way into the index.
// Unrepairable records are reported as record errors.
func (r *IndexRegistry) sanitizedBoundaries(ctx context.Context) iter.Seq2[domain.BoundaryFeature, error] {
	return func(yield func(domain.BoundaryFeature, error) bool) {
		for f, err := range r.source.Boundaries(ctx) {
			if err == nil {
				f.Geometry, err = geometry.Sanitize(f.Geometry)
				if err != nil {
					err = &domain.RecordError{ID: f.ID, Err: err}
				}
			}
			if !yield(f, err) {
				return
			}
		}
	}
}

// project maps a record sequence onto search documents. Record errors are
// logged and skipped; any other error is passed through.
func project[T any](
	r *IndexRegistry,
	fetch func(context.Context) iter.Seq2[T, error],
	toDocument func(T) domain.SearchDocument,
) func(context.Context) iter.Seq2[domain.SearchDocument, error] {
	return func(ctx context.Context) iter.Seq2[domain.SearchDocument, error] {
		return func(yield func(domain.SearchDocument, error) bool) {
			for rec, err := range fetch(ctx) {
				if err != nil {
					var recErr *domain.RecordError
					if errors.As(err, &recErr) {
						r.logger.Warn("skipping source record", "id", recErr.ID, "error", recErr.Err)
						continue
					}
					yield(domain.SearchDocument{}, err)
					return
				}
				if !yield(toDocument(rec), nil) {
					return
				}
			}
		}
	}
}
