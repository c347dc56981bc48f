package synthetic

import (
	"github.com/ctessum/geom"

	"github.com/talgya/psexplorer/internal/diagram"
	"github.com/talgya/psexplorer/internal/solver"
)

// Assemblages of the four quadrant fields, south-west first, counter-clockwise.
var quadrantPhases = [4][]string{
	{"H2O", "chl", "g", "q"},
	{"H2O", "bi", "g", "q"},
	{"H2O", "bi", "ky", "q"},
	{"H2O", "chl", "ky", "q"},
}

// curveSamples is the number of solved points along each boundary curve.
const curveSamples = 11

// fieldMargin is how far, as a fraction of the window, fields extend past it.
const fieldMargin = 0.01

// Boundary splits the window into four rectangular fields meeting at one
// triple point in the middle. Curve 1 runs down from it, then 2 right,
// 3 up and 4 left; their far ends are open.
type Boundary struct {
	tRange, pRange [2]float64
	point          *diagram.TriplePoint
	curves         map[int]*diagram.BoundaryCurve
	shapes         []diagram.FieldShape
}

// NewBoundary builds the data set over the solver's window. A manual
// triple point carries no results or guess.
func NewBoundary(s *Solver, manual bool) *Boundary {
	tr, pr := s.cfg.TRange, s.cfg.PRange
	tc, pc := (tr[0]+tr[1])/2, (pr[0]+pr[1])/2
	b := &Boundary{
		tRange: tr,
		pRange: pr,
		curves: make(map[int]*diagram.BoundaryCurve),
	}

	tp := &diagram.TriplePoint{ID: 1, T: tc, P: pc, Manual: manual}
	if !manual {
		all := diagram.NewFieldKey(append(append([]string{}, quadrantPhases[0]...), quadrantPhases[2]...)...)
		res := s.Result(all.Phases(), tc, pc)
		tp.Results = []*solver.Result{res}
		tp.Guess = res.Guess
	}
	b.point = tp

	ends := [4][2]float64{{tc, pr[0]}, {tr[1], pc}, {tc, pr[1]}, {tr[0], pc}}
	for i, end := range ends {
		id := i + 1
		// Curve i+1 separates quadrant i from quadrant i+1.
		left := diagram.NewFieldKey(quadrantPhases[i]...)
		right := diagram.NewFieldKey(quadrantPhases[(i+1)%4]...)
		phases := diagram.NewFieldKey(append(left.Phases(), right.Phases()...)...).Phases()

		cv := &diagram.BoundaryCurve{
			ID:      id,
			Begin:   tp.ID,
			End:     diagram.NoPoint,
			Manual:  manual,
			BeginIx: 1,
			EndIx:   curveSamples - 2,
		}
		for k := 0; k < curveSamples; k++ {
			f := float64(k) / float64(curveSamples-1)
			t := tc + f*(end[0]-tc)
			p := pc + f*(end[1]-pc)
			cv.T = append(cv.T, t)
			cv.P = append(cv.P, p)
			if !manual {
				cv.Results = append(cv.Results, s.Result(phases, t, p))
			}
		}
		b.curves[id] = cv
	}

	// Outer edges sit just outside the window so the window edge is interior.
	mt, mp := fieldMargin*(tr[1]-tr[0]), fieldMargin*(pr[1]-pr[0])
	t0, t1, p0, p1 := tr[0]-mt, tr[1]+mt, pr[0]-mp, pr[1]+mp
	corners := [4][4]geom.Point{
		{{X: t0, Y: p0}, {X: tc, Y: p0}, {X: tc, Y: pc}, {X: t0, Y: pc}},
		{{X: tc, Y: p0}, {X: t1, Y: p0}, {X: t1, Y: pc}, {X: tc, Y: pc}},
		{{X: tc, Y: pc}, {X: t1, Y: pc}, {X: t1, Y: p1}, {X: tc, Y: p1}},
		{{X: t0, Y: pc}, {X: tc, Y: pc}, {X: tc, Y: p1}, {X: t0, Y: p1}},
	}
	edges := [4][]int{{1, 4}, {1, 2}, {2, 3}, {3, 4}}
	for i, ring := range corners {
		key := diagram.NewFieldKey(quadrantPhases[i]...)
		b.shapes = append(b.shapes, diagram.FieldShape{
			Key:     key,
			Polygon: geom.Polygon{append(ring[:], ring[0])},
			Edges:   edges[i],
		})
	}
	return b
}

// Geometry returns the four quadrant fields.
func (b *Boundary) Geometry() ([]diagram.FieldShape, []diagram.FieldKey, error) {
	return b.shapes, nil, nil
}

// TriplePoint returns the central point for id 1.
func (b *Boundary) TriplePoint(id int) (*diagram.TriplePoint, bool) {
	if id != b.point.ID {
		return nil, false
	}
	return b.point, true
}

// Curve returns one of the four boundary curves.
func (b *Boundary) Curve(id int) (*diagram.BoundaryCurve, bool) {
	cv, ok := b.curves[id]
	return cv, ok
}

// Window returns the diagram range.
func (b *Boundary) Window() (tRange, pRange [2]float64) {
	return b.tRange, b.pRange
}
