package aggregate

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/talgya/psexplorer/internal/diagram"
	"github.com/talgya/psexplorer/internal/engine"
	"github.com/talgya/psexplorer/internal/expr"
	"github.com/talgya/psexplorer/internal/project"
	"github.com/talgya/psexplorer/internal/solver"
)

const boundaryYAML = `
window: {t: [0.5, 1.5], p: [0.5, 0.5]}
fields:
  - phases: [H2O, g, q]
    polygon: [[0, 0], [1, 0], [1, 1], [0, 1], [0, 0]]
    edges: [1]
  - phases: [bi, q]
    polygon: [[1, 0], [2, 0], [2, 1], [1, 1], [1, 0]]
    edges: [2]
triple_points:
  - id: 1
    t: 1
    p: 0
    results:
      - data: {q: {x: 1}, g: {x(g): 0.5}}
  - id: 2
    t: 1
    p: 1
    manual: true
    results:
      - data: {q: {x: 100}}
curves:
  - id: 1
    begin: 1
    end: 0
    begin_ix: 1
    end_ix: 1
    t: [1, 1, 1]
    p: [0, 0.5, 1]
    results:
      - data: {q: {x: 99}}
      - data: {q: {x: 2}, g: {x(g): 0.25}}
      - data: {q: {x: 99}}
  - id: 2
    begin: 2
    end: 0
    begin_ix: 0
    end_ix: 5
    t: [1.5]
    p: [0]
    results:
      - data: {q: {x: 5}}
`

var (
	keyA = diagram.NewFieldKey("H2O", "g", "q")
	keyB = diagram.NewFieldKey("bi", "q")
)

func newCollector(t *testing.T) *Collector {
	t.Helper()
	b, err := project.Parse([]byte(boundaryYAML))
	require.NoError(t, err)
	sess, err := engine.NewSession(b, nil, engine.Options{})
	require.NoError(t, err)

	l, err := diagram.NewLattice([2]float64{0.5, 1.5}, [2]float64{0.5, 0.5}, 2, 1)
	require.NoError(t, err)
	g := diagram.NewGrid(l)
	a := g.At(0, 0)
	a.Key = keyA
	a.MarkSolved(&solver.Result{Data: map[string]map[string]float64{
		"H2O": {"mode": 0.2},
		"g":   {"mode": 0.1, "x(g)": 0.3},
		"q":   {"x": 3},
	}}, 0.01)
	bc := g.At(0, 1)
	bc.Key = keyB
	bc.MarkSolved(&solver.Result{Data: map[string]map[string]float64{
		"bi": {"mode": 0.4},
		"q":  {"x": 4},
	}}, 0.01)
	sess.Restore(g)

	return NewCollector(sess, expr.New())
}

func TestCollect_SourceOrder(t *testing.T) {
	c := newCollector(t)

	s, err := c.Collect(keyA, "q", "x", diagram.SourceAll)
	require.NoError(t, err)
	require.Equal(t, diagram.Series{
		{T: 1, P: 0, Value: 1},
		{T: 1, P: 0.5, Value: 2},
		{T: 0.5, P: 0.5, Value: 3},
	}, s)

	// Manual triple point skipped; curve indices clamped to the samples present.
	s, err = c.Collect(keyB, "q", "x", diagram.SourceAll)
	require.NoError(t, err)
	require.Equal(t, []float64{5, 4}, s.Values())

	s, err = c.Collect(keyA, "q", "x", diagram.SourceGrid)
	require.NoError(t, err)
	require.Equal(t, []float64{3}, s.Values())

	s, err = c.Collect(keyA, "q", "x", diagram.SourceTriple|diagram.SourceCurve)
	require.NoError(t, err)
	require.Equal(t, []float64{1, 2}, s.Values())
}

func TestCollect_Expression(t *testing.T) {
	c := newCollector(t)

	s, err := c.Collect(keyA, "g", "x(g) * 100", diagram.SourceAll)
	require.NoError(t, err)
	require.Len(t, s, 3)
	require.InDeltaSlice(t, []float64{50, 25, 30}, s.Values(), 1e-9)

	s, err = c.Collect(keyA, "g", "x_g * 100", diagram.SourceAll)
	require.NoError(t, err)
	require.InDeltaSlice(t, []float64{50, 25, 30}, s.Values(), 1e-9)

	_, err = c.Collect(keyA, "g", "x(g) +", diagram.SourceAll)
	require.ErrorIs(t, err, expr.ErrParse)
}

func TestCollect_Errors(t *testing.T) {
	c := newCollector(t)

	_, err := c.Collect(diagram.NewFieldKey("ky", "q"), "q", "x", diagram.SourceAll)
	require.ErrorIs(t, err, ErrUnknownField)

	_, err = c.Collect(keyA, "q", "x", 0)
	require.ErrorIs(t, err, diagram.ErrNoSources)
}

func TestMerge(t *testing.T) {
	c := newCollector(t)

	m, err := c.Merge("q", "x", diagram.SourceAll)
	require.NoError(t, err)
	require.Equal(t, []diagram.FieldKey{keyA, keyB}, m.Order)
	require.Equal(t, 5, m.Len())
	require.Equal(t, 1.0, m.Min)
	require.Equal(t, 5.0, m.Max)

	// Only fields containing the phase take part.
	m, err = c.Merge("bi", "mode", diagram.SourceAll)
	require.NoError(t, err)
	require.Equal(t, []diagram.FieldKey{keyB}, m.Order)
	require.Equal(t, 0.4, m.Min)

	m, err = c.Merge("ky", "x", diagram.SourceAll)
	require.NoError(t, err)
	require.Empty(t, m.Order)
	require.Equal(t, 0, m.Len())
	require.True(t, math.IsNaN(m.Min))
	require.True(t, math.IsNaN(m.Max))
}

func TestDataKeys(t *testing.T) {
	c := newCollector(t)

	require.Equal(t, map[string][]string{
		"g": {"mode", "x(g)"},
		"q": {"x"},
	}, c.DataKeys(keyA))

	require.Equal(t, map[string][]string{
		"bi": {"mode"},
		"g":  {"mode", "x(g)"},
		"q":  {"x"},
	}, c.AllDataKeys())

	require.Empty(t, c.DataKeys(diagram.NewFieldKey("ky")))
}
