package diagram

import (
	"math"

	"github.com/talgya/psexplorer/internal/solver"
)

// Status is the solve state of one lattice point.
type Status uint8

const (
	StatusUnvisited Status = iota // Allocated, not yet attempted
	StatusFailed                  // No single admissible result
	StatusSolved                  // Result and timing recorded
)

// String returns the lower-case status name.
func (s Status) String() string {
	switch s {
	case StatusUnvisited:
		return "unvisited"
	case StatusFailed:
		return "failed"
	case StatusSolved:
		return "solved"
	}
	return "unknown"
}

// Cell is one lattice point of the grid.
type Cell struct {
	Status Status   `json:"status"`
	Key    FieldKey `json:"key,omitempty"` // Owning field, empty when excluded

	// Excluded marks a cell that lies in no valid field. It is failed
	// permanently and never retried.
	Excluded bool `json:"excluded,omitempty"`

	Result  *solver.Result `json:"result,omitempty"`
	Elapsed float64        `json:"elapsed"` // Seconds; NaN unless solved
}

// MarkSolved records a successful solve.
func (c *Cell) MarkSolved(res *solver.Result, elapsed float64) {
	c.Status = StatusSolved
	c.Result = res
	c.Elapsed = elapsed
}

// MarkFailed clears any result and marks the cell failed.
func (c *Cell) MarkFailed() {
	c.Status = StatusFailed
	c.Result = nil
	c.Elapsed = math.NaN()
}

// Consistent reports whether the cell satisfies the status invariant:
// solved cells have a result and a finite non-negative elapsed time,
// all other cells have neither.
func (c *Cell) Consistent() bool {
	timed := !math.IsNaN(c.Elapsed) && !math.IsInf(c.Elapsed, 0) && c.Elapsed >= 0
	if c.Status == StatusSolved {
		return c.Result != nil && timed
	}
	return c.Result == nil && math.IsNaN(c.Elapsed)
}

// Grid is the dense, fixed-size set of cells over a lattice, stored row-major.
type Grid struct {
	Lattice *Lattice
	Cells   []Cell
}

// NewGrid allocates an unvisited grid over the lattice.
func NewGrid(l *Lattice) *Grid {
	cells := make([]Cell, l.Size())
	for i := range cells {
		cells[i].Elapsed = math.NaN()
	}
	return &Grid{Lattice: l, Cells: cells}
}

// At returns the cell at (r, c).
func (g *Grid) At(r, c int) *Cell {
	return &g.Cells[g.Lattice.Index(r, c)]
}

// Count returns the number of cells with the given status.
func (g *Grid) Count(s Status) int {
	n := 0
	for i := range g.Cells {
		if g.Cells[i].Status == s {
			n++
		}
	}
	return n
}

// Failed returns the row-major indices of failed cells.
func (g *Grid) Failed() []int {
	var out []int
	for i := range g.Cells {
		if g.Cells[i].Status == StatusFailed {
			out = append(out, i)
		}
	}
	return out
}

// MeanElapsed returns the average solve time over solved cells, or NaN.
func (g *Grid) MeanElapsed() float64 {
	sum, n := 0.0, 0
	for i := range g.Cells {
		if g.Cells[i].Status == StatusSolved {
			sum += g.Cells[i].Elapsed
			n++
		}
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}
