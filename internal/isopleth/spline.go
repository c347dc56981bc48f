// Package isopleth interpolates aggregated observations over each field with
// a thin-plate spline and extracts contour lines clipped to the field.
package isopleth

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/talgya/psexplorer/internal/diagram"
)

// ErrSingular is returned when a spline cannot be fitted: too few points,
// collinear points or a singular linear system.
var ErrSingular = errors.New("isopleth: interpolation system is singular")

// Spline is a smoothing thin-plate spline z(T, p) with an affine term.
// The p axis is multiplied by a scale factor before distances are taken.
type Spline struct {
	scale  float64
	cx, cy float64 // Centroid of the fitted points in scaled coordinates
	xs, ys []float64
	w      []float64
	a      [3]float64
}

// tps is the thin-plate radial basis r² ln r, zero at r = 0.
func tps(r2 float64) float64 {
	if r2 == 0 {
		return 0
	}
	return 0.5 * r2 * math.Log(r2)
}

// Fit solves for the spline through the samples. smooth is added to the
// diagonal of the kernel matrix; zero interpolates exactly. Samples sharing
// a location are averaged.
func Fit(samples diagram.Series, smooth, scale float64) (*Spline, error) {
	if scale <= 0 || math.IsNaN(scale) || math.IsInf(scale, 0) {
		scale = 1
	}
	pts := dedupe(samples)
	n := len(pts)
	if n < 3 {
		return nil, fmt.Errorf("%d distinct points: %w", n, ErrSingular)
	}

	s := &Spline{scale: scale, xs: make([]float64, n), ys: make([]float64, n)}
	for _, p := range pts {
		s.cx += p.T
		s.cy += scale * p.P
	}
	s.cx /= float64(n)
	s.cy /= float64(n)
	for i, p := range pts {
		s.xs[i] = p.T - s.cx
		s.ys[i] = scale*p.P - s.cy
	}
	if collinear(s.xs, s.ys) {
		return nil, fmt.Errorf("collinear points: %w", ErrSingular)
	}

	dim := n + 3
	A := mat.NewDense(dim, dim, nil)
	b := mat.NewVecDense(dim, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			dx, dy := s.xs[i]-s.xs[j], s.ys[i]-s.ys[j]
			k := tps(dx*dx + dy*dy)
			A.Set(i, j, k)
			A.Set(j, i, k)
		}
		A.Set(i, i, A.At(i, i)+smooth)
		for c, v := range [3]float64{1, s.xs[i], s.ys[i]} {
			A.Set(i, n+c, v)
			A.Set(n+c, i, v)
		}
		b.SetVec(i, pts[i].Value)
	}

	var x mat.VecDense
	if err := x.SolveVec(A, b); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) || math.IsInf(float64(cond), 0) || math.IsNaN(float64(cond)) {
			return nil, fmt.Errorf("%v: %w", err, ErrSingular)
		}
	}
	s.w = make([]float64, n)
	for i := 0; i < dim; i++ {
		v := x.AtVec(i)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("non-finite coefficient: %w", ErrSingular)
		}
		if i < n {
			s.w[i] = v
		} else {
			s.a[i-n] = v
		}
	}
	return s, nil
}

// Eval returns the spline value at (t, p).
func (s *Spline) Eval(t, p float64) float64 {
	x, y := t-s.cx, s.scale*p-s.cy
	z := s.a[0] + s.a[1]*x + s.a[2]*y
	for i := range s.w {
		dx, dy := x-s.xs[i], y-s.ys[i]
		z += s.w[i] * tps(dx*dx+dy*dy)
	}
	return z
}

// dedupe averages samples at identical (T, p) and keeps first-seen order.
func dedupe(samples diagram.Series) diagram.Series {
	type acc struct {
		idx int
		sum float64
		n   int
	}
	seen := make(map[[2]float64]*acc, len(samples))
	out := make(diagram.Series, 0, len(samples))
	for _, smp := range samples {
		if math.IsNaN(smp.Value) || math.IsInf(smp.Value, 0) {
			continue
		}
		k := [2]float64{smp.T, smp.P}
		if a, ok := seen[k]; ok {
			a.sum += smp.Value
			a.n++
			out[a.idx].Value = a.sum / float64(a.n)
			continue
		}
		seen[k] = &acc{idx: len(out), sum: smp.Value, n: 1}
		out = append(out, smp)
	}
	return out
}

// collinear reports whether all points lie on one line, relative to the
// spread of the points.
func collinear(xs, ys []float64) bool {
	// Farthest pair from the first point spans the candidate line.
	far, best := 0, 0.0
	for i := range xs {
		d := (xs[i]-xs[0])*(xs[i]-xs[0]) + (ys[i]-ys[0])*(ys[i]-ys[0])
		if d > best {
			far, best = i, d
		}
	}
	if best == 0 {
		return true
	}
	tol := 1e-10 * best
	for i := range xs {
		cross := (xs[far]-xs[0])*(ys[i]-ys[0]) - (ys[far]-ys[0])*(xs[i]-xs[0])
		if math.Abs(cross) > tol {
			return false
		}
	}
	return true
}
