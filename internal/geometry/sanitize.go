// Package geometry repairs administrative boundary polygons so that a
// spherical spatial index accepts them.
package geometry

import (
	"fmt"

	"github.com/paulmach/orb"

	"github.com/jobrunner/hospigeo/internal/domain"
)

// maxRepairPasses bounds how often self-intersections are split again after
// rounding the split points moved an edge.
const maxRepairPasses = 8

// Sanitize returns a structurally valid copy of a Polygon or MultiPolygon:
// coordinates rounded to domain.CoordinatePrecision, no consecutive duplicate
// vertices, closed rings, and no self-intersections. Degenerate holes are
// dropped and polygons whose outer ring degenerates are excluded.
//
// Inputs without kinks keep their type. Kinked inputs are split into simple
// polygons and returned as a MultiPolygon. The input is never modified.
func Sanitize(g orb.Geometry) (orb.Geometry, error) {
	var polys []orb.Polygon
	switch g := g.(type) {
	case orb.Polygon:
		if len(g) == 0 {
			return nil, domain.ErrEmptyGeometry
		}
		polys = []orb.Polygon{g}
	case orb.MultiPolygon:
		if len(g) == 0 {
			return nil, domain.ErrEmptyGeometry
		}
		polys = g
	case nil:
		return nil, domain.ErrEmptyGeometry
	default:
		return nil, fmt.Errorf("%s: %w", g.GeoJSONType(), domain.ErrUnsupportedGeometry)
	}

	polys = cleanPolygons(polys)
	if len(polys) == 0 {
		return nil, fmt.Errorf("every ring is degenerate: %w", domain.ErrUnrepairable)
	}

	kinked := false
	for pass := 0; hasKinks(polys); pass++ {
		if pass == maxRepairPasses {
			return nil, fmt.Errorf("self-intersections remain after %d passes: %w", pass, domain.ErrUnrepairable)
		}
		kinked = true

		var next []orb.Polygon
		for _, p := range polys {
			next = append(next, unkink(p)...)
		}
		polys = cleanPolygons(next)
		if len(polys) == 0 {
			return nil, fmt.Errorf("nothing left after splitting: %w", domain.ErrUnrepairable)
		}
	}

	if _, ok := g.(orb.Polygon); ok && !kinked {
		return polys[0], nil
	}
	return orb.MultiPolygon(polys), nil
}

// cleanPolygons cleans every ring, dropping degenerate holes and polygons
// whose outer ring degenerates.
func cleanPolygons(polys []orb.Polygon) []orb.Polygon {
	out := make([]orb.Polygon, 0, len(polys))
	for _, p := range polys {
		if len(p) == 0 {
			continue
		}
		outer, ok := cleanRing(p[0])
		if !ok {
			continue
		}
		cleaned := orb.Polygon{outer}
		for _, hole := range p[1:] {
			if h, ok := cleanRing(hole); ok {
				cleaned = append(cleaned, h)
			}
		}
		out = append(out, cleaned)
	}
	return out
}

// cleanRing rounds, removes consecutive duplicates and closes a ring. It
// reports false when fewer than three distinct vertices remain.
func cleanRing(r orb.Ring) (orb.Ring, bool) {
	out := make(orb.Ring, 0, len(r)+1)
	for _, pt := range r {
		pt = roundPoint(pt)
		if len(out) > 0 && out[len(out)-1] == pt {
			continue
		}
		out = append(out, pt)
	}
	if len(out) > 1 && out[0] == out[len(out)-1] {
		out = out[:len(out)-1]
	}

	distinct := make(map[orb.Point]struct{}, len(out))
	for _, pt := range out {
		distinct[pt] = struct{}{}
	}
	if len(distinct) < 3 {
		return nil, false
	}

	return append(out, out[0]), true
}

func roundPoint(p orb.Point) orb.Point {
	return orb.Point{domain.Round(p[0]), domain.Round(p[1])}
}
