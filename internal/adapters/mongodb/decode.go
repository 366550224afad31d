package mongodb

import (
	"fmt"
	"strconv"

	"github.com/paulmach/orb"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/jobrunner/hospigeo/internal/domain"
)

// boundaryDocument is the stored shape of a boundary.
type boundaryDocument struct {
	ID         any               `bson:"_id"`
	Code       any               `bson:"code"`
	Name       any               `bson:"name"`
	Geometry   *geometryDocument `bson:"geometry"`
	Properties bson.M            `bson:"properties"`
}

// geometryDocument is a GeoJSON geometry with coordinates left undecoded
// until the type is known.
type geometryDocument struct {
	Type        string        `bson:"type"`
	Coordinates bson.RawValue `bson:"coordinates"`
}

func decodeBoundary(raw bson.Raw, withGeometry bool) (domain.BoundaryFeature, error) {
	var doc boundaryDocument
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return domain.BoundaryFeature{}, fmt.Errorf("decoding boundary: %w", err)
	}

	f := domain.BoundaryFeature{
		ID:         idString(doc.ID),
		Key:        doc.ID,
		Code:       scalarString(doc.Code),
		Name:       scalarString(doc.Name),
		Properties: plainMap(doc.Properties),
	}

	if !withGeometry {
		return f, nil
	}
	if doc.Geometry == nil {
		return f, domain.ErrEmptyGeometry
	}
	g, err := doc.Geometry.orb()
	if err != nil {
		return f, err
	}
	f.Geometry = g
	return f, nil
}

func (g *geometryDocument) orb() (orb.Geometry, error) {
	switch g.Type {
	case "Polygon":
		var c [][][]float64
		if err := g.Coordinates.Unmarshal(&c); err != nil {
			return nil, fmt.Errorf("decoding polygon coordinates: %w", err)
		}
		return toPolygon(c)
	case "MultiPolygon":
		var c [][][][]float64
		if err := g.Coordinates.Unmarshal(&c); err != nil {
			return nil, fmt.Errorf("decoding multipolygon coordinates: %w", err)
		}
		mp := make(orb.MultiPolygon, 0, len(c))
		for _, pc := range c {
			p, err := toPolygon(pc)
			if err != nil {
				return nil, err
			}
			mp = append(mp, p)
		}
		return mp, nil
	case "":
		return nil, domain.ErrEmptyGeometry
	default:
		return nil, fmt.Errorf("%s: %w", g.Type, domain.ErrUnsupportedGeometry)
	}
}

func toPolygon(c [][][]float64) (orb.Polygon, error) {
	p := make(orb.Polygon, 0, len(c))
	for _, rc := range c {
		r := make(orb.Ring, 0, len(rc))
		for _, pos := range rc {
			if len(pos) < 2 {
				return nil, fmt.Errorf("position with %d values: %w", len(pos), domain.ErrInvalidCoordinate)
			}
			r = append(r, orb.Point{pos[0], pos[1]})
		}
		p = append(p, r)
	}
	return p, nil
}

// coordinates renders polygonal geometry as nested float slices for storage.
func coordinates(g orb.Geometry) any {
	switch g := g.(type) {
	case orb.Polygon:
		return polygonCoordinates(g)
	case orb.MultiPolygon:
		out := make([][][][]float64, 0, len(g))
		for _, p := range g {
			out = append(out, polygonCoordinates(p))
		}
		return out
	default:
		return nil
	}
}

func polygonCoordinates(p orb.Polygon) [][][]float64 {
	out := make([][][]float64, 0, len(p))
	for _, r := range p {
		ring := make([][]float64, 0, len(r))
		for _, pt := range r {
			ring = append(ring, []float64{pt[0], pt[1]})
		}
		out = append(out, ring)
	}
	return out
}

func geometryValue(g orb.Geometry) bson.D {
	return bson.D{
		{Key: "type", Value: g.GeoJSONType()},
		{Key: "coordinates", Value: coordinates(g)},
	}
}

// idString renders an _id as the string used in domain records.
func idString(v any) string {
	switch id := v.(type) {
	case bson.ObjectID:
		return id.Hex()
	case nil:
		return ""
	default:
		return scalarString(id)
	}
}

// updateKey returns the _id filter value of an update. Updates built from
// streamed features carry the decoded key; the printable ID is only used
// when no key is set.
func updateKey(u domain.GeometryUpdate) any {
	if u.Key != nil {
		return u.Key
	}
	return u.ID
}

func scalarString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return fmt.Sprint(s)
	}
}

// str returns the first non-empty string among keys.
func str(m bson.M, keys ...string) string {
	for _, k := range keys {
		if s := scalarString(m[k]); s != "" {
			return s
		}
	}
	return ""
}

// num returns the first numeric value among keys.
func num(m bson.M, keys ...string) (float64, bool) {
	for _, k := range keys {
		switch v := m[k].(type) {
		case float64:
			return v, true
		case int32:
			return float64(v), true
		case int64:
			return float64(v), true
		case string:
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				return f, true
			}
		}
	}
	return 0, false
}

// plain converts decoded BSON containers into JSON-friendly maps and slices.
func plain(v any) any {
	switch t := v.(type) {
	case bson.D:
		m := make(map[string]any, len(t))
		for _, e := range t {
			m[e.Key] = plain(e.Value)
		}
		return m
	case bson.M:
		return plainMap(t)
	case bson.A:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = plain(e)
		}
		return out
	case bson.ObjectID:
		return t.Hex()
	default:
		return v
	}
}

func plainMap(m bson.M) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = plain(v)
	}
	return out
}

func decodeFacility(raw bson.Raw, withCategory bool) (domain.Facility, error) {
	var m bson.M
	if err := bson.Unmarshal(raw, &m); err != nil {
		return domain.Facility{}, fmt.Errorf("decoding facility: %w", err)
	}

	f := domain.Facility{
		ID:      idString(m["_id"]),
		Ykiho:   str(m, "ykiho"),
		Name:    str(m, "yadmNm", "name"),
		Address: str(m, "addr", "address"),
		Phone:   str(m, "telno"),
	}
	if withCategory {
		f.Category = str(m, "clCdNm")
	}

	lat, okLat := num(m, "YPos", "Ypos")
	lng, okLng := num(m, "XPos", "Xpos")
	if !okLat || !okLng {
		return f, fmt.Errorf("no location: %w", domain.ErrMissingCoordinates)
	}
	f.Location = domain.Coordinate{Lat: lat, Lng: lng}
	if err := f.Location.Validate(); err != nil {
		return f, err
	}
	return f, nil
}

func decodeMapFeature(raw bson.Raw) (domain.MapFeature, error) {
	var m bson.M
	if err := bson.Unmarshal(raw, &m); err != nil {
		return domain.MapFeature{}, fmt.Errorf("decoding map feature: %w", err)
	}

	f := domain.MapFeature{
		ID:   idString(m["_id"]),
		Type: str(m, "type"),
	}
	if props, ok := plain(m["properties"]).(map[string]any); ok {
		f.Properties = props
	}
	if geom, ok := plain(m["geometry"]).(map[string]any); ok {
		f.Geometry = geom
	}
	return f, nil
}

func decodeSigunguPoint(raw bson.Raw) (domain.SigunguPoint, error) {
	var m bson.M
	if err := bson.Unmarshal(raw, &m); err != nil {
		return domain.SigunguPoint{}, fmt.Errorf("decoding sigungu point: %w", err)
	}

	p := domain.SigunguPoint{
		ID:   idString(m["_id"]),
		Code: str(m, "code", "sgguCd"),
		Name: str(m, "name", "sgguNm"),
	}

	lat, okLat := num(m, "YPos", "lat")
	lng, okLng := num(m, "XPos", "lng")
	if !okLat || !okLng {
		return p, fmt.Errorf("no location: %w", domain.ErrMissingCoordinates)
	}
	p.Location = domain.Coordinate{Lat: lat, Lng: lng}
	return p, nil
}

// rawID extracts a printable _id from an undecodable document.
func rawID(raw bson.Raw) string {
	v, err := raw.LookupErr("_id")
	if err != nil {
		return ""
	}
	if oid, ok := v.ObjectIDOK(); ok {
		return oid.Hex()
	}
	return v.String()
}
