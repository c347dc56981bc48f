package isopleth

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/ctessum/geom"
)

// Segment is one straight piece of a contour line.
type Segment [2]geom.Point

// Contour holds the segments of one level.
type Contour struct {
	Level    float64   `json:"level"`
	Segments []Segment `json:"segments"`
}

// MaxLevels bounds the number of contour levels of one request.
const MaxLevels = 1000

// ErrTooManyLevels is returned when a level request exceeds MaxLevels.
var ErrTooManyLevels = errors.New("isopleth: too many contour levels")

// Levels returns the contour values for a data range [lo, hi].
// Explicit levels win. Otherwise a positive step yields the multiples of
// step within (lo-step, hi+step). Otherwise n (default 10) evenly spaced
// values from lo to hi are used.
func Levels(explicit []float64, step float64, n int, lo, hi float64) ([]float64, error) {
	if len(explicit) > 0 {
		if len(explicit) > MaxLevels {
			return nil, fmt.Errorf("%d explicit levels: %w", len(explicit), ErrTooManyLevels)
		}
		out := append([]float64(nil), explicit...)
		sort.Float64s(out)
		return out, nil
	}
	if n > MaxLevels {
		return nil, fmt.Errorf("%d levels: %w", n, ErrTooManyLevels)
	}
	if math.IsNaN(lo) || math.IsNaN(hi) || math.IsInf(lo, 0) || math.IsInf(hi, 0) {
		return nil, nil
	}
	if step > 0 {
		kmin := math.Floor((lo - step) / step)
		span := (hi+step)/step - kmin
		if !(span <= MaxLevels) {
			return nil, fmt.Errorf("step %g over [%g, %g]: %w", step, lo, hi, ErrTooManyLevels)
		}
		var out []float64
		for i := 0; i <= int(span); i++ {
			v := (kmin + float64(i)) * step
			if v >= hi+step {
				break
			}
			if v > lo-step {
				out = append(out, v)
			}
		}
		return out, nil
	}
	if n <= 0 {
		n = 10
	}
	if lo == hi {
		return []float64{lo}, nil
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = lo + (hi-lo)*float64(i)/float64(max(n-1, 1))
	}
	return out, nil
}

// Trace runs marching squares over the surface for every level. Grid
// squares with a non-finite corner are skipped.
func Trace(s *Surface, levels []float64) []Contour {
	out := make([]Contour, 0, len(levels))
	for _, lv := range levels {
		c := Contour{Level: lv}
		for r := 0; r+1 < len(s.P); r++ {
			for col := 0; col+1 < len(s.T); col++ {
				c.Segments = append(c.Segments, square(s, r, col, lv)...)
			}
		}
		out = append(out, c)
	}
	return out
}

// square contours one grid square. Corners are numbered counter-clockwise
// from (T[c], P[r]).
func square(s *Surface, r, c int, lv float64) []Segment {
	x0, x1 := s.T[c], s.T[c+1]
	y0, y1 := s.P[r], s.P[r+1]
	z := [4]float64{s.Z[r][c], s.Z[r][c+1], s.Z[r+1][c+1], s.Z[r+1][c]}
	pts := [4]geom.Point{{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1}}

	idx := 0
	for i, v := range z {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil
		}
		if v >= lv {
			idx |= 1 << i
		}
	}
	if idx == 0 || idx == 15 {
		return nil
	}

	// cross returns the level crossing on edge i (corner i to corner i+1).
	cross := func(i int) geom.Point {
		j := (i + 1) % 4
		a, b := z[i], z[j]
		f := 0.5
		if a != b {
			f = (lv - a) / (b - a)
		}
		return geom.Point{
			X: pts[i].X + f*(pts[j].X-pts[i].X),
			Y: pts[i].Y + f*(pts[j].Y-pts[i].Y),
		}
	}

	var edges [][2]int
	switch idx {
	case 1, 14:
		edges = [][2]int{{3, 0}}
	case 2, 13:
		edges = [][2]int{{0, 1}}
	case 3, 12:
		edges = [][2]int{{3, 1}}
	case 4, 11:
		edges = [][2]int{{1, 2}}
	case 6, 9:
		edges = [][2]int{{0, 2}}
	case 7, 8:
		edges = [][2]int{{2, 3}}
	case 5, 10:
		// Saddle: the centre value decides which corners connect.
		centre := (z[0] + z[1] + z[2] + z[3]) / 4
		if (centre >= lv) == (idx == 5) {
			edges = [][2]int{{3, 2}, {0, 1}}
		} else {
			edges = [][2]int{{3, 0}, {1, 2}}
		}
	}

	segs := make([]Segment, 0, len(edges))
	for _, e := range edges {
		segs = append(segs, Segment{cross(e[0]), cross(e[1])})
	}
	return segs
}

// Clip keeps the parts of the segments lying inside the polygon. Segments
// crossing the boundary are cut at it, even when both ends are outside.
func Clip(segs []Segment, poly geom.Polygon) []Segment {
	var out []Segment
	for _, sg := range segs {
		ml, ok := geom.LineString{sg[0], sg[1]}.Clip(poly).(geom.MultiLineString)
		if !ok {
			continue
		}
		for _, ls := range ml {
			for i := 0; i+1 < len(ls); i++ {
				if ls[i] != ls[i+1] {
					out = append(out, Segment{ls[i], ls[i+1]})
				}
			}
		}
	}
	return out
}
