package diagram

import (
	"errors"
	"fmt"
)

// ErrEmptyLattice is returned when a lattice would contain no points.
var ErrEmptyLattice = errors.New("diagram: lattice must have at least one point along each axis")

// Lattice is the regular grid of (T, p) sample points spanned by TSpace × PSpace.
// Rows run along p and columns along T, so point (r, c) is (TSpace[c], PSpace[r]).
type Lattice struct {
	TSpace []float64 `json:"tspace"`
	PSpace []float64 `json:"pspace"`
}

// Linspace returns n evenly spaced values from lo to hi inclusive.
func Linspace(lo, hi float64, n int) []float64 {
	if n <= 0 {
		return nil
	}
	out := make([]float64, n)
	if n == 1 {
		out[0] = lo
		return out
	}
	step := (hi - lo) / float64(n-1)
	for i := range out {
		out[i] = lo + float64(i)*step
	}
	out[n-1] = hi
	return out
}

// NewLattice spans the window [tRange] × [pRange] with numT × numP points.
func NewLattice(tRange, pRange [2]float64, numT, numP int) (*Lattice, error) {
	if numT <= 0 || numP <= 0 {
		return nil, fmt.Errorf("%dx%d: %w", numT, numP, ErrEmptyLattice)
	}
	return &Lattice{
		TSpace: Linspace(tRange[0], tRange[1], numT),
		PSpace: Linspace(pRange[0], pRange[1], numP),
	}, nil
}

// Rows returns the number of pressure samples.
func (l *Lattice) Rows() int { return len(l.PSpace) }

// Cols returns the number of temperature samples.
func (l *Lattice) Cols() int { return len(l.TSpace) }

// Size returns the total number of lattice points.
func (l *Lattice) Size() int { return l.Rows() * l.Cols() }

// Point returns the (T, p) coordinates of lattice point (r, c).
func (l *Lattice) Point(r, c int) (t, p float64) {
	return l.TSpace[c], l.PSpace[r]
}

// Index maps (r, c) to its row-major position.
func (l *Lattice) Index(r, c int) int {
	return r*l.Cols() + c
}

// Coord converts a row-major index back to (r, c).
func (l *Lattice) Coord(i int) (r, c int) {
	return i / l.Cols(), i % l.Cols()
}

// InBounds reports whether (r, c) lies on the lattice.
func (l *Lattice) InBounds(r, c int) bool {
	return r >= 0 && r < l.Rows() && c >= 0 && c < l.Cols()
}

// TStep is the temperature spacing. A single-column lattice has step 1.
func (l *Lattice) TStep() float64 {
	if len(l.TSpace) < 2 {
		return 1
	}
	return l.TSpace[1] - l.TSpace[0]
}

// PStep is the pressure spacing. A single-row lattice has step 1.
func (l *Lattice) PStep() float64 {
	if len(l.PSpace) < 2 {
		return 1
	}
	return l.PSpace[1] - l.PSpace[0]
}

// neighbourOffsets is the fixed scan order: row -1..+1, then column -1..+1.
var neighbourOffsets = [8][2]int{
	{-1, -1}, {-1, 0}, {-1, 1},
	{0, -1}, {0, 1},
	{1, -1}, {1, 0}, {1, 1},
}

// Neighbours returns the up-to-8 in-bounds neighbours of (r, c) in the
// fixed scan order. The centre is never included.
func (l *Lattice) Neighbours(r, c int) [][2]int {
	out := make([][2]int, 0, 8)
	for _, d := range neighbourOffsets {
		nr, nc := r+d[0], c+d[1]
		if l.InBounds(nr, nc) {
			out = append(out, [2]int{nr, nc})
		}
	}
	return out
}
