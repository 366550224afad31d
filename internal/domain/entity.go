package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/paulmach/orb"
)

// EntityType is an indexable entity kind. The set is closed.
type EntityType string

// Indexable entity types. The value doubles as the stable alias name.
const (
	EntityHospitals     EntityType = "hospitals"
	EntityPharmacies    EntityType = "pharmacies"
	EntityMap           EntityType = "map"
	EntitySigunguCoords EntityType = "sggu_coords"
	EntityBoundaries    EntityType = "boundaries"
)

// AllEntityTypes lists every entity type in a stable order.
var AllEntityTypes = []EntityType{
	EntityHospitals,
	EntityPharmacies,
	EntityMap,
	EntitySigunguCoords,
	EntityBoundaries,
}

// ParseEntityType parses an entity type path segment.
func ParseEntityType(s string) (EntityType, error) {
	for _, t := range AllEntityTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", &ValidationError{
		Field:      "entityType",
		Value:      s,
		Constraint: "hospitals|pharmacies|map|sggu_coords|boundaries",
		Message:    fmt.Sprintf("unknown index type %q", s),
		Err:        ErrUnknownIndexType,
	}
}

// Alias returns the stable, externally queried index name.
func (t EntityType) Alias() string {
	return string(t)
}

// PhysicalIndexName returns the dated physical index name for t.
func PhysicalIndexName(t EntityType, at time.Time) string {
	return fmt.Sprintf("%s_%s", t, at.Format(time.DateOnly))
}

// BackupAliasName returns the dated backup alias name for t.
func BackupAliasName(t EntityType, at time.Time) string {
	return fmt.Sprintf("%s_backup_%s", t, at.Format(time.DateOnly))
}

// IsPhysicalIndexOf reports whether name looks like a physical index of t.
func IsPhysicalIndexOf(t EntityType, name string) bool {
	rest, ok := strings.CutPrefix(name, string(t)+"_")
	if !ok || strings.HasPrefix(rest, "backup_") {
		return false
	}
	if len(rest) < len(time.DateOnly) {
		return false
	}
	_, err := time.Parse(time.DateOnly, rest[:len(time.DateOnly)])
	return err == nil
}

// FieldKind is a search field type.
type FieldKind string

// Field kinds.
const (
	FieldKeyword  FieldKind = "keyword"
	FieldText     FieldKind = "text"
	FieldGeoPoint FieldKind = "geo_point"
	FieldGeoShape FieldKind = "geo_shape"
	FieldObject   FieldKind = "object"
)

// FieldSpec describes one mapped field.
type FieldSpec struct {
	Name string
	Kind FieldKind
	// KeywordSubfield adds an exact-match "keyword" subfield to a text field.
	KeywordSubfield bool
}

// IndexSchema is an engine-neutral index mapping.
type IndexSchema struct {
	Fields []FieldSpec
}

// SearchDocument is a denormalized projection written to a search index.
type SearchDocument struct {
	ID   string
	Body map[string]any
}

// Facility is a hospital or pharmacy source record.
type Facility struct {
	ID       string
	Ykiho    string // external institution code
	Name     string
	Category string // clCdNm, hospitals only
	Address  string
	Phone    string
	Location Coordinate
}

// MapFeature is a pre-rendered map feature record.
type MapFeature struct {
	ID         string
	Type       string
	Properties map[string]any
	Geometry   map[string]any
}

// SigunguPoint is the representative coordinate of a district.
type SigunguPoint struct {
	ID       string
	Code     string
	Name     string
	Location Coordinate
}

// HospitalDocument projects a hospital record.
func HospitalDocument(f Facility) SearchDocument {
	doc := PharmacyDocument(f)
	doc.Body["clCdNm"] = f.Category
	return doc
}

// PharmacyDocument projects a pharmacy record.
func PharmacyDocument(f Facility) SearchDocument {
	return SearchDocument{
		ID: f.ID,
		Body: map[string]any{
			"id":       f.ID,
			"ykiho":    f.Ykiho,
			"yadmNm":   f.Name,
			"location": geoPoint(f.Location),
			"addr":     f.Address,
			"telno":    f.Phone,
		},
	}
}

// MapDocument projects a map feature record.
func MapDocument(m MapFeature) SearchDocument {
	return SearchDocument{
		ID: m.ID,
		Body: map[string]any{
			"id":         m.ID,
			"type":       m.Type,
			"properties": m.Properties,
			"geometry":   m.Geometry,
		},
	}
}

// SigunguDocument projects a district coordinate record.
func SigunguDocument(p SigunguPoint) SearchDocument {
	return SearchDocument{
		ID: p.ID,
		Body: map[string]any{
			"id":       p.ID,
			"code":     p.Code,
			"name":     p.Name,
			"location": geoPoint(p.Location),
		},
	}
}

// BoundaryDocument projects a boundary record. The geometry is expected to
// be sanitized already.
func BoundaryDocument(b BoundaryFeature) SearchDocument {
	return SearchDocument{
		ID: b.ID,
		Body: map[string]any{
			"id":       b.ID,
			"code":     b.Code,
			"name":     b.Name,
			"geometry": GeoJSON(b.Geometry),
		},
	}
}

// GeoJSON renders a polygonal geometry as a GeoJSON geometry object.
func GeoJSON(g orb.Geometry) map[string]any {
	if g == nil {
		return nil
	}
	return map[string]any{
		"type":        g.GeoJSONType(),
		"coordinates": g,
	}
}

func geoPoint(c Coordinate) map[string]any {
	return map[string]any{"lat": c.Lat, "lon": c.Lng}
}
