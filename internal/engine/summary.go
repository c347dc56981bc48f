package engine

import (
	"math"
	"time"

	"github.com/talgya/psexplorer/internal/diagram"
)

// Summary counts the outcome of a sweep.
type Summary struct {
	Total    int `json:"total"`
	Solved   int `json:"solved"`
	Failed   int `json:"failed"`
	Excluded int `json:"excluded"` // Failed because no field owns the point

	Repaired  int `json:"repaired,omitempty"`
	Exhausted int `json:"exhausted,omitempty"`

	Attempts    int `json:"attempts"`
	Ambiguous   int `json:"ambiguous"`   // Zero or several results
	Unreachable int `json:"unreachable"` // Process or log failures

	Duration time.Duration `json:"duration"`
}

// Status recomputes the cell counts from the current grid.
func (s *Session) Status() Summary {
	if !s.Gridded() {
		return Summary{}
	}
	sum := Summary{Total: len(s.Grid.Cells)}
	for i := range s.Grid.Cells {
		cell := &s.Grid.Cells[i]
		switch cell.Status {
		case diagram.StatusSolved:
			sum.Solved++
		case diagram.StatusFailed:
			sum.Failed++
			if cell.Excluded {
				sum.Excluded++
			}
		}
	}
	return sum
}

// MeanElapsed is the average solve time in seconds, NaN before gridding.
func (s *Session) MeanElapsed() float64 {
	if !s.Gridded() {
		return math.NaN()
	}
	return s.Grid.MeanElapsed()
}
