package isopleth

import (
	"math"

	"github.com/ctessum/geom"

	"github.com/talgya/psexplorer/internal/diagram"
)

// Axis selects the derivative taken in gradient mode.
type Axis uint8

const (
	AxisNone Axis = iota
	AxisT         // ∂z/∂T
	AxisP         // -∂z/∂p
)

// ParseAxis maps "t", "p" or "" to an Axis.
func ParseAxis(s string) (Axis, bool) {
	switch s {
	case "":
		return AxisNone, true
	case "t", "T":
		return AxisT, true
	case "p", "P":
		return AxisP, true
	}
	return AxisNone, false
}

// Surface is a scalar field sampled on a regular grid. Z[r][c] is the value
// at (T[c], P[r]).
type Surface struct {
	T, P []float64
	Z    [][]float64
}

// arange returns lo, lo+step, ... strictly below hi.
func arange(lo, hi, step float64) []float64 {
	if step <= 0 || hi <= lo {
		return []float64{lo}
	}
	n := int(math.Ceil((hi - lo) / step))
	out := make([]float64, n)
	for i := range out {
		out[i] = lo + float64(i)*step
	}
	return out
}

// SubLattice spans the bounding box grown by one lattice step on every side,
// sampled at the lattice step divided by refine.
func SubLattice(b *geom.Bounds, l *diagram.Lattice, refine int) (ts, ps []float64) {
	if refine < 1 {
		refine = 1
	}
	tstep, pstep := l.TStep(), l.PStep()
	ts = arange(b.Min.X-tstep, b.Max.X+tstep, tstep/float64(refine))
	ps = arange(b.Min.Y-pstep, b.Max.Y+pstep, pstep/float64(refine))
	return ts, ps
}

// Evaluate samples the spline on ts × ps.
func Evaluate(s *Spline, ts, ps []float64) *Surface {
	z := make([][]float64, len(ps))
	for r, p := range ps {
		z[r] = make([]float64, len(ts))
		for c, t := range ts {
			z[r][c] = s.Eval(t, p)
		}
	}
	return &Surface{T: ts, P: ps, Z: z}
}

// Gradient returns ∂z/∂T for AxisT and -∂z/∂p for AxisP, using central
// differences inside and one-sided differences at the edges.
func (s *Surface) Gradient(axis Axis) *Surface {
	rows, cols := len(s.P), len(s.T)
	z := make([][]float64, rows)
	for r := range z {
		z[r] = make([]float64, cols)
		for c := range z[r] {
			switch axis {
			case AxisT:
				z[r][c] = derivative(cols, c, s.T, func(i int) float64 { return s.Z[r][i] })
			case AxisP:
				z[r][c] = -derivative(rows, r, s.P, func(i int) float64 { return s.Z[i][c] })
			default:
				z[r][c] = s.Z[r][c]
			}
		}
	}
	return &Surface{T: s.T, P: s.P, Z: z}
}

func derivative(n, i int, x []float64, f func(int) float64) float64 {
	switch {
	case n < 2:
		return 0
	case i == 0:
		return (f(1) - f(0)) / (x[1] - x[0])
	case i == n-1:
		return (f(n-1) - f(n-2)) / (x[n-1] - x[n-2])
	}
	return (f(i+1) - f(i-1)) / (x[i+1] - x[i-1])
}

// MinMax returns the range of the finite values; NaN, NaN when there are none.
func (s *Surface) MinMax() (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, row := range s.Z {
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}
	if lo > hi {
		return math.NaN(), math.NaN()
	}
	return lo, hi
}
