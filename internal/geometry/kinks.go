package geometry

import (
	"cmp"
	"slices"

	"github.com/paulmach/orb"
)

// crossing is an intersection between two non-adjacent ring edges.
// (ringA, edgeA) always sorts before (ringB, edgeB).
type crossing struct {
	ringA, edgeA int
	ringB, edgeB int
	at           orb.Point
}

type edge struct {
	ring, idx int
	a, b      orb.Point
	bound     orb.Bound
}

// Kinks returns every self-intersection of the polygon rings in g, including
// points where a hole touches or crosses another ring of its polygon.
// Non-polygonal geometries have no kinks.
func Kinks(g orb.Geometry) []orb.Point {
	var out []orb.Point
	for _, p := range polygonsOf(g) {
		for _, c := range crossings(p) {
			out = append(out, c.at)
		}
	}
	return out
}

func hasKinks(polys []orb.Polygon) bool {
	for _, p := range polys {
		if len(crossings(p)) > 0 {
			return true
		}
	}
	return false
}

func polygonsOf(g orb.Geometry) []orb.Polygon {
	switch g := g.(type) {
	case orb.Polygon:
		return []orb.Polygon{g}
	case orb.MultiPolygon:
		return g
	default:
		return nil
	}
}

// crossings finds intersecting edge pairs across the given closed rings.
// Edges are swept by their minimum X so only pairs with overlapping
// bounding boxes are tested.
func crossings(rings []orb.Ring) []crossing {
	var edges []edge
	for ri, r := range rings {
		for k := 0; k+1 < len(r); k++ {
			edges = append(edges, edge{
				ring:  ri,
				idx:   k,
				a:     r[k],
				b:     r[k+1],
				bound: orb.Bound{Min: r[k], Max: r[k]}.Extend(r[k+1]),
			})
		}
	}

	slices.SortStableFunc(edges, func(x, y edge) int {
		return cmp.Compare(x.bound.Min[0], y.bound.Min[0])
	})

	var out []crossing
	for x := range edges {
		e := edges[x]
		for y := x + 1; y < len(edges); y++ {
			f := edges[y]
			if f.bound.Min[0] > e.bound.Max[0] {
				break
			}
			if f.bound.Min[1] > e.bound.Max[1] || f.bound.Max[1] < e.bound.Min[1] {
				continue
			}
			if e.ring == f.ring && adjacent(e.idx, f.idx, len(rings[e.ring])-1) {
				continue
			}
			p, ok := intersect(e.a, e.b, f.a, f.b)
			if !ok {
				continue
			}
			c := crossing{ringA: e.ring, edgeA: e.idx, ringB: f.ring, edgeB: f.idx, at: p}
			if c.ringB < c.ringA || (c.ringB == c.ringA && c.edgeB < c.edgeA) {
				c.ringA, c.ringB = c.ringB, c.ringA
				c.edgeA, c.edgeB = c.edgeB, c.edgeA
			}
			out = append(out, c)
		}
	}

	slices.SortFunc(out, func(x, y crossing) int {
		return cmp.Or(
			cmp.Compare(x.ringA, y.ringA),
			cmp.Compare(x.edgeA, y.edgeA),
			cmp.Compare(x.ringB, y.ringB),
			cmp.Compare(x.edgeB, y.edgeB),
		)
	})
	return out
}

// adjacent reports whether edges i and j of a ring with n edges share a
// vertex by construction.
func adjacent(i, j, n int) bool {
	d := i - j
	if d < 0 {
		d = -d
	}
	return d == 1 || d == n-1
}

func orient(a, b, c orb.Point) float64 {
	return (b[0]-a[0])*(c[1]-a[1]) - (b[1]-a[1])*(c[0]-a[0])
}

// onSegment reports whether p, known to be collinear with a-b, lies on it.
func onSegment(a, b, p orb.Point) bool {
	return min(a[0], b[0]) <= p[0] && p[0] <= max(a[0], b[0]) &&
		min(a[1], b[1]) <= p[1] && p[1] <= max(a[1], b[1])
}

// intersect returns a point shared by segments a-b and c-d. Proper
// crossings yield the crossing point; touching and collinear overlaps yield
// an endpoint lying on the other segment.
func intersect(a, b, c, d orb.Point) (orb.Point, bool) {
	d1 := orient(c, d, a)
	d2 := orient(c, d, b)
	d3 := orient(a, b, c)
	d4 := orient(a, b, d)

	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		t := d1 / (d1 - d2)
		return orb.Point{a[0] + t*(b[0]-a[0]), a[1] + t*(b[1]-a[1])}, true
	}

	switch {
	case d1 == 0 && onSegment(c, d, a):
		return a, true
	case d2 == 0 && onSegment(c, d, b):
		return b, true
	case d3 == 0 && onSegment(a, b, c):
		return c, true
	case d4 == 0 && onSegment(a, b, d):
		return d, true
	}
	return orb.Point{}, false
}
