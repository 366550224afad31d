package geometry

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobrunner/hospigeo/internal/domain"
)

func square(x0, y0, size float64) orb.Ring {
	return orb.Ring{{x0, y0}, {x0 + size, y0}, {x0 + size, y0 + size}, {x0, y0 + size}, {x0, y0}}
}

var bowtie = orb.Ring{{0, 0}, {2, 2}, {2, 0}, {0, 2}, {0, 0}}

// figureEight touches itself at (1,1) without crossing.
var figureEight = orb.Ring{{0, 0}, {2, 0}, {1, 1}, {2, 2}, {0, 2}, {1, 1}, {0, 0}}

func TestSanitize_Rejects(t *testing.T) {
	tests := []struct {
		name string
		in   orb.Geometry
		want error
	}{
		{"nil", nil, domain.ErrEmptyGeometry},
		{"point", orb.Point{127, 37}, domain.ErrUnsupportedGeometry},
		{"line", orb.LineString{{0, 0}, {1, 1}}, domain.ErrUnsupportedGeometry},
		{"empty polygon", orb.Polygon{}, domain.ErrEmptyGeometry},
		{"empty multipolygon", orb.MultiPolygon{}, domain.ErrEmptyGeometry},
		{"degenerate outer", orb.Polygon{{{0, 0}, {1, 1}, {0, 0}}}, domain.ErrUnrepairable},
		{"all duplicates", orb.Polygon{{{5, 5}, {5, 5}, {5, 5}, {5, 5}}}, domain.ErrUnrepairable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Sanitize(tt.in)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v, want %v", err, tt.want)
		})
	}
}

func TestSanitize_RoundsDedupsAndCloses(t *testing.T) {
	in := orb.Polygon{{
		{126.97800001, 37.56650004},
		{126.97800002, 37.56650001}, // duplicate after rounding
		{126.99, 37.5665},
		{126.99, 37.58},
		{126.99, 37.58},
		{126.978, 37.58},
	}}

	out, err := Sanitize(in)
	require.NoError(t, err)

	poly, ok := out.(orb.Polygon)
	require.True(t, ok, "unkinked polygon keeps its type, got %T", out)
	assert.Equal(t, orb.Ring{
		{126.978, 37.5665},
		{126.99, 37.5665},
		{126.99, 37.58},
		{126.978, 37.58},
		{126.978, 37.5665},
	}, poly[0])
	assert.Equal(t, 6, len(in[0]), "input must not be modified")
}

func TestSanitize_DropsDegenerateRings(t *testing.T) {
	hole := orb.Ring{{1, 1}, {2, 2}, {1, 1}}
	in := orb.MultiPolygon{
		{square(0, 0, 10), hole},
		{{{20, 20}, {20, 20}, {21, 21}}},
		{square(30, 30, 5)},
	}

	out, err := Sanitize(in)
	require.NoError(t, err)

	mp, ok := out.(orb.MultiPolygon)
	require.True(t, ok)
	require.Len(t, mp, 2)
	assert.Len(t, mp[0], 1, "degenerate hole dropped")
	assert.Equal(t, square(30, 30, 5), mp[1][0])
}

func TestSanitize_SplitsBowtie(t *testing.T) {
	out, err := Sanitize(orb.Polygon{bowtie})
	require.NoError(t, err)

	mp, ok := out.(orb.MultiPolygon)
	require.True(t, ok, "kinked input becomes a MultiPolygon, got %T", out)
	assert.Equal(t, orb.MultiPolygon{
		{{{1, 1}, {2, 2}, {2, 0}, {1, 1}}},
		{{{0, 0}, {1, 1}, {0, 2}, {0, 0}}},
	}, mp)
	assert.Empty(t, Kinks(mp))
}

func TestSanitize_SplitsTouchingRing(t *testing.T) {
	out, err := Sanitize(orb.Polygon{figureEight})
	require.NoError(t, err)

	mp, ok := out.(orb.MultiPolygon)
	require.True(t, ok)
	assert.Equal(t, orb.MultiPolygon{
		{{{1, 1}, {2, 2}, {0, 2}, {1, 1}}},
		{{{0, 0}, {2, 0}, {1, 1}, {0, 0}}},
	}, mp)
}

func TestSanitize_Holes(t *testing.T) {
	t.Run("kinked hole keeps one simple piece", func(t *testing.T) {
		hole := orb.Ring{{2, 2}, {6, 6}, {6, 2}, {2, 6}, {2, 2}}
		out, err := Sanitize(orb.Polygon{square(0, 0, 10), hole})
		require.NoError(t, err)

		mp := out.(orb.MultiPolygon)
		require.Len(t, mp, 1)
		assert.Len(t, mp[0], 2, "second bowtie half touches the first and is dropped")
		assert.Empty(t, Kinks(mp))
	})

	t.Run("hole crossing the outer ring is dropped", func(t *testing.T) {
		hole := square(8, 8, 4)
		out, err := Sanitize(orb.Polygon{square(0, 0, 10), hole})
		require.NoError(t, err)

		mp := out.(orb.MultiPolygon)
		require.Len(t, mp, 1)
		assert.Len(t, mp[0], 1)
	})

	t.Run("valid hole survives", func(t *testing.T) {
		out, err := Sanitize(orb.Polygon{square(0, 0, 10), square(2, 2, 2)})
		require.NoError(t, err)

		poly := out.(orb.Polygon)
		assert.Len(t, poly, 2)
	})
}

func TestSanitize_Properties(t *testing.T) {
	inputs := map[string]orb.Geometry{
		"square":       orb.Polygon{square(126.9, 37.5, 0.1)},
		"open ring":    orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 1}}},
		"bowtie":       orb.Polygon{bowtie},
		"figure eight": orb.Polygon{figureEight},
		"double kink": orb.Polygon{{
			{0, 0}, {4, 4}, {4, 0}, {2, 3}, {0, 4}, {3, 1}, {0, 0},
		}},
		"noisy multipolygon": orb.MultiPolygon{
			{square(0, 0, 1.00000001)},
			{bowtie},
		},
		"holed kink": orb.Polygon{
			{{0, 0}, {10, 10}, {10, 0}, {0, 10}, {0, 0}},
			{{6, 4}, {8, 4}, {8, 6}, {6, 4}},
		},
	}

	for name, in := range inputs {
		t.Run(name, func(t *testing.T) {
			out, err := Sanitize(in)
			require.NoError(t, err)

			for _, p := range polygonsOf(out) {
				for _, r := range p {
					require.GreaterOrEqual(t, len(r), 4)
					assert.Equal(t, r[0], r[len(r)-1], "ring closed")
					for k := 1; k < len(r); k++ {
						assert.NotEqual(t, r[k-1], r[k], "no consecutive duplicates")
					}
				}
			}
			assert.Empty(t, Kinks(out), "no kinks remain")

			again, err := Sanitize(out)
			require.NoError(t, err)
			assert.Equal(t, encode(t, out), encode(t, again), "sanitizing is idempotent")
		})
	}
}

func TestKinks(t *testing.T) {
	assert.Empty(t, Kinks(orb.Polygon{square(0, 0, 1)}))
	assert.Equal(t, []orb.Point{{1, 1}}, Kinks(orb.Polygon{bowtie}))
	assert.Empty(t, Kinks(orb.Point{1, 1}))

	hole := square(8, 8, 4)
	assert.NotEmpty(t, Kinks(orb.Polygon{square(0, 0, 10), hole}), "hole crossing outer")
}

func encode(t *testing.T, g orb.Geometry) string {
	t.Helper()
	b, err := json.Marshal(domain.GeoJSON(g))
	require.NoError(t, err)
	return string(b)
}
