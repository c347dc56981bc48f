package project

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/talgya/psexplorer/internal/diagram"
	"github.com/talgya/psexplorer/internal/synthetic"
)

func TestSnapshot_RoundTrip(t *testing.T) {
	src := synthetic.NewBoundary(synthetic.New(synthetic.DefaultConfig()), false)

	doc, err := Snapshot(src)
	require.NoError(t, err)
	require.Len(t, doc.Fields, 4)
	require.Len(t, doc.Curves, 4)
	require.Len(t, doc.TriplePoints, 1)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, doc))

	path := filepath.Join(t.TempDir(), "boundary.yaml")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	got, err := Load(path)
	require.NoError(t, err)

	tr, pr := got.Window()
	wtr, wpr := src.Window()
	require.Equal(t, wtr, tr)
	require.Equal(t, wpr, pr)

	want, _, err := src.Geometry()
	require.NoError(t, err)
	shapes, invalid, err := got.Geometry()
	require.NoError(t, err)
	require.Empty(t, invalid)
	require.Len(t, shapes, len(want))
	for i := range want {
		require.Equal(t, want[i].Key, shapes[i].Key)
		require.Equal(t, want[i].Edges, shapes[i].Edges)
		require.Equal(t, want[i].Polygon, shapes[i].Polygon)
	}

	tp, ok := got.TriplePoint(1)
	require.True(t, ok)
	wtp, _ := src.TriplePoint(1)
	require.Equal(t, wtp.Guess, tp.Guess)
	require.Equal(t, wtp.Results[0].Data, tp.Results[0].Data)

	for id := 1; id <= 4; id++ {
		cv, ok := got.Curve(id)
		require.True(t, ok)
		wcv, _ := src.Curve(id)
		require.Equal(t, wcv.T, cv.T)
		require.Equal(t, wcv.BeginIx, cv.BeginIx)
		require.Equal(t, wcv.EndIx, cv.EndIx)
		require.Len(t, cv.Results, len(wcv.Results))
	}
}

func TestSnapshot_ManualBoundary(t *testing.T) {
	src := synthetic.NewBoundary(synthetic.New(synthetic.DefaultConfig()), true)
	doc, err := Snapshot(src)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, doc))
	got, err := Parse(buf.Bytes())
	require.NoError(t, err)

	tp, ok := got.TriplePoint(1)
	require.True(t, ok)
	require.True(t, tp.Manual)
	require.Empty(t, tp.Results)

	cv, ok := got.Curve(2)
	require.True(t, ok)
	require.True(t, cv.Manual)
	require.Equal(t, diagram.NoPoint, cv.End)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"short window", "window: {t: [1], p: [0, 1]}\n"},
		{"reserved id", "window: {t: [0, 1], p: [0, 1]}\ntriple_points: [{id: 0, t: 0, p: 0}]\n"},
		{"duplicate point", "window: {t: [0, 1], p: [0, 1]}\ntriple_points: [{id: 1, t: 0, p: 0}, {id: 1, t: 1, p: 1}]\n"},
		{"duplicate curve", "window: {t: [0, 1], p: [0, 1]}\ncurves: [{id: 3, begin: 0, end: 0, begin_ix: 0, end_ix: 0}, {id: 3, begin: 0, end: 0, begin_ix: 0, end_ix: 0}]\n"},
		{"ragged curve", "window: {t: [0, 1], p: [0, 1]}\ncurves: [{id: 3, begin: 0, end: 0, begin_ix: 0, end_ix: 0, t: [1, 2], p: [1]}]\n"},
		{"not yaml", "window: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.in))
			require.Error(t, err)
		})
	}

	_, err := Parse([]byte("  \n"))
	require.ErrorIs(t, err, ErrEmpty)
}

func TestGeometry(t *testing.T) {
	b, err := Parse([]byte(`
window: {t: [0, 1], p: [0, 1]}
fields:
  - phases: [q, g, g]
    polygon: [[0, 0], [1, 0], [1, 1], [0, 0]]
    edges: [3, 1, 3]
    variance: 4
invalid:
  - [ky, bi]
`))
	require.NoError(t, err)

	shapes, invalid, err := b.Geometry()
	require.NoError(t, err)
	require.Len(t, shapes, 1)
	require.Equal(t, diagram.FieldKey("g q"), shapes[0].Key)
	require.Equal(t, []int{1, 3}, shapes[0].Edges)
	require.Equal(t, 4, shapes[0].Variance)
	require.Len(t, shapes[0].Polygon[0], 4)
	require.Equal(t, []diagram.FieldKey{"bi ky"}, invalid)

	bad, err := Parse([]byte("window: {t: [0, 1], p: [0, 1]}\nfields: [{phases: [q], polygon: [[0, 0, 0]]}]\n"))
	require.NoError(t, err)
	_, _, err = bad.Geometry()
	require.Error(t, err)

	empty, err := Parse([]byte("window: {t: [0, 1], p: [0, 1]}\n"))
	require.NoError(t, err)
	_, _, err = empty.Geometry()
	require.ErrorIs(t, err, ErrEmpty)
}
