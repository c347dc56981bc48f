package geometry

import (
	"math"
	"testing"

	"github.com/ctessum/geom"
	"github.com/stretchr/testify/require"

	"github.com/talgya/psexplorer/internal/diagram"
)

func rect(x0, y0, x1, y1 float64) geom.Polygon {
	return geom.Polygon{{
		{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1}, {X: x0, Y: y0},
	}}
}

func field(poly geom.Polygon, phases ...string) *diagram.Field {
	return &diagram.Field{Key: diagram.NewFieldKey(phases...), Polygon: poly}
}

func TestIndex_LocateAdjacentFields(t *testing.T) {
	a := field(rect(0, 0, 1, 1), "bi", "g", "q")
	b := field(rect(1, 0, 2, 1), "bi", "ky", "q")
	ix, err := NewIndex([]*diagram.Field{a, b})
	require.NoError(t, err)
	require.Len(t, ix.Fields(), 2)

	key, ok := ix.Locate(0.5, 0.5)
	require.True(t, ok)
	require.Equal(t, a.Key, key)

	key, ok = ix.Locate(1.5, 0.25)
	require.True(t, ok)
	require.Equal(t, b.Key, key)

	// The shared edge belongs to neither field.
	_, ok = ix.Locate(1, 0.5)
	require.False(t, ok)

	// Outer edges and the outside too.
	_, ok = ix.Locate(0, 0.5)
	require.False(t, ok)
	_, ok = ix.Locate(3, 3)
	require.False(t, ok)
}

func TestIndex_MasksAreDisjoint(t *testing.T) {
	a := field(rect(0, 0, 1, 1), "bi", "g", "q")
	b := field(rect(1, 0, 2, 1), "bi", "ky", "q")
	ix, err := NewIndex([]*diagram.Field{a, b})
	require.NoError(t, err)

	l, err := diagram.NewLattice([2]float64{0, 2}, [2]float64{0, 1}, 5, 5)
	require.NoError(t, err)
	masks := ix.BuildMasks(l)
	require.Len(t, masks, 2)

	// Interior columns are t = 0.5 and t = 1.5; rows p = 0.25, 0.5, 0.75.
	require.Equal(t, []int{6, 11, 16}, masks[a.Key].Indices())
	require.Equal(t, []int{8, 13, 18}, masks[b.Key].Indices())

	for r := 0; r < l.Rows(); r++ {
		for c := 0; c < l.Cols(); c++ {
			require.False(t, masks[a.Key].At(r, c) && masks[b.Key].At(r, c))
		}
	}
}

func TestIndex_BadShapesExcluded(t *testing.T) {
	good := field(rect(0, 0, 1, 1), "g", "q")
	line := field(geom.Polygon{{{X: 1, Y: 1}, {X: 2, Y: 2}, {X: 3, Y: 3}, {X: 1, Y: 1}}}, "bi", "q")
	bowtie := field(geom.Polygon{{{X: 0, Y: 2}, {X: 2, Y: 4}, {X: 2, Y: 2}, {X: 0, Y: 3}, {X: 0, Y: 2}}}, "ky", "q")
	empty := field(geom.Polygon{}, "chl", "q")
	nan := field(geom.Polygon{{{X: math.NaN(), Y: 0}, {X: 5, Y: 0}, {X: 5, Y: 1}, {X: math.NaN(), Y: 0}}}, "mu", "q")

	ix, err := NewIndex([]*diagram.Field{good, line, bowtie, empty, nan})
	require.NoError(t, err)

	require.Equal(t, []*diagram.Field{good}, ix.Fields())
	require.Len(t, ix.All(), 5)
	require.Len(t, ix.BadShapes(), 4)
	for _, se := range ix.BadShapes() {
		require.ErrorIs(t, se, ErrBadShape)
	}
	require.True(t, line.Bad)
	require.Equal(t, "self-intersecting boundary", bowtie.BadReason)
	require.Equal(t, "no rings", empty.BadReason)
	require.Equal(t, "non-finite vertex", nan.BadReason)
	require.False(t, good.Bad)

	f, ok := ix.Field(bowtie.Key)
	require.True(t, ok)
	require.True(t, f.Bad)

	l, err := diagram.NewLattice([2]float64{0, 4}, [2]float64{0, 4}, 9, 9)
	require.NoError(t, err)
	masks := ix.BuildMasks(l)
	require.Len(t, masks, 1)
	require.Equal(t, 1, masks[good.Key].Count())
}

func TestIndex_Overlap(t *testing.T) {
	a := field(rect(0, 0, 2, 2), "g", "q")
	b := field(rect(1, 0, 3, 2), "bi", "q")
	_, err := NewIndex([]*diagram.Field{a, b})
	require.ErrorIs(t, err, ErrOverlappingFields)
}

func TestIndex_NoFields(t *testing.T) {
	_, err := NewIndex(nil)
	require.ErrorIs(t, err, ErrNoFields)
}

func TestIndex_TreeHoldsValidFields(t *testing.T) {
	a := field(rect(0, 0, 1, 1), "g", "q")
	bad := field(geom.Polygon{{{X: 1, Y: 1}, {X: 2, Y: 2}, {X: 3, Y: 3}, {X: 1, Y: 1}}}, "bi", "q")
	b := field(rect(1, 0, 2, 1), "ky", "q")
	ix, err := NewIndex([]*diagram.Field{a, bad, b})
	require.NoError(t, err)
	require.Equal(t, 2, ix.tree.Size())

	hits := ix.tree.SearchIntersect(&geom.Bounds{Min: geom.Point{X: 1.2, Y: 0.2}, Max: geom.Point{X: 1.8, Y: 0.8}})
	require.Len(t, hits, 1)
	e, ok := hits[0].(*entry)
	require.True(t, ok)
	require.Equal(t, b, e.field)
	require.Equal(t, 2, e.order)
	require.Equal(t, b.Polygon.Bounds(), e.Bounds())
}
