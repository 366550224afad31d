package geometry

import (
	"slices"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// unkink splits a polygon into simple polygons. Every self-intersecting ring
// is cut into simple rings; pieces of the outer ring become outer rings and
// hole pieces are attached to the outer that contains them. Holes that lie
// outside every outer, or that would touch a ring already in place, are
// dropped.
func unkink(p orb.Polygon) []orb.Polygon {
	if len(p) == 0 {
		return nil
	}

	var polys []orb.Polygon
	for _, outer := range splitRing(p[0]) {
		polys = append(polys, orb.Polygon{outer})
	}

	for _, hole := range p[1:] {
		for _, piece := range splitRing(hole) {
			attachHole(polys, piece)
		}
	}
	return polys
}

// splitRing cuts a closed ring at its first self-intersection P into
// [P, v(i+1) .. v(j), P] and [v0 .. v(i), P, v(j+1) .. v0] and recurses.
// Each piece has fewer edges than its parent, so recursion terminates.
func splitRing(r orb.Ring) []orb.Ring {
	r, ok := cleanRing(r)
	if !ok {
		return nil
	}

	cs := crossings([]orb.Ring{r})
	if len(cs) == 0 {
		return []orb.Ring{r}
	}

	i, j := cs[0].edgeA, cs[0].edgeB
	at := roundPoint(cs[0].at)

	a := make(orb.Ring, 0, j-i+2)
	a = append(a, at)
	a = append(a, r[i+1:j+1]...)
	a = append(a, at)

	b := make(orb.Ring, 0, len(r)-(j-i)+1)
	b = append(b, r[:i+1]...)
	b = append(b, at)
	b = append(b, r[j+1:]...)

	return append(splitRing(a), splitRing(b)...)
}

// attachHole adds hole to the first polygon whose outer ring contains it,
// provided the result has no crossings.
func attachHole(polys []orb.Polygon, hole orb.Ring) {
	for k := range polys {
		if !ringWithin(hole, polys[k][0]) {
			continue
		}
		candidate := append(slices.Clone(polys[k]), hole)
		if len(crossings(candidate)) == 0 {
			polys[k] = candidate
		}
		return
	}
}

func ringWithin(inner, outer orb.Ring) bool {
	for _, pt := range inner {
		if !planar.RingContains(outer, pt) {
			return false
		}
	}
	return true
}
