package engine

import (
	"github.com/talgya/psexplorer/internal/diagram"
)

// Candidate is an initial guess taken from a triple point.
type Candidate struct {
	Point int
	Guess []string
}

// TriplePointCandidates returns the guesses of the triple points at either
// end of the field's boundary curves, in ascending id order. Manual triple
// points and points with no stored guess are skipped.
func (s *Session) TriplePointCandidates(key diagram.FieldKey) []Candidate {
	f, ok := s.Index.Field(key)
	if !ok {
		return nil
	}
	var out []Candidate
	for _, id := range diagram.TriplePointIDs(s.Boundary, f.Edges) {
		tp, ok := s.Boundary.TriplePoint(id)
		if !ok || tp.Manual {
			continue
		}
		guess := tp.Guess
		if len(guess) == 0 && len(tp.Results) > 0 && tp.Results[0] != nil {
			guess = tp.Results[0].Guess
		}
		if len(guess) == 0 {
			continue
		}
		out = append(out, Candidate{Point: id, Guess: guess})
	}
	return out
}

// NeighbourCandidates returns the solved neighbours of (r, c) in scan order.
func (s *Session) NeighbourCandidates(r, c int) [][2]int {
	if !s.Gridded() {
		return nil
	}
	var out [][2]int
	for _, nb := range s.Lattice.Neighbours(r, c) {
		if s.Grid.At(nb[0], nb[1]).Status == diagram.StatusSolved {
			out = append(out, nb)
		}
	}
	return out
}
