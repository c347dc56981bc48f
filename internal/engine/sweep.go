package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/talgya/psexplorer/internal/diagram"
	"github.com/talgya/psexplorer/internal/solver"
)

// ComputeGrid allocates a numT × numP lattice over the diagram window and
// attempts every point in row-major order. Points outside every field are
// excluded. A point is tried without a guess, then with the guess of each
// triple point bordering its field, stopping at the first single result.
// Solver failures are counted in the summary and never abort the sweep.
func (s *Session) ComputeGrid(ctx context.Context, numT, numP int) (Summary, error) {
	tRange, pRange := s.Boundary.Window()
	lat, err := diagram.NewLattice(tRange, pRange, numT, numP)
	if err != nil {
		return Summary{}, err
	}

	began := time.Now()
	slog.Info("grid sweep started", "num_t", numT, "num_p", numP)

	s.Lattice = lat
	s.Grid = diagram.NewGrid(lat)
	s.Masks = s.Index.BuildMasks(lat)

	var sum Summary
	for r := 0; r < lat.Rows(); r++ {
		for c := 0; c < lat.Cols(); c++ {
			if err := ctx.Err(); err != nil {
				return s.finish(sum, began), err
			}
			s.solvePoint(ctx, r, c, &sum)
		}
	}

	sum = s.finish(sum, began)
	slog.Info("grid sweep done",
		"solved", sum.Solved,
		"failed", sum.Failed,
		"excluded", sum.Excluded,
		"attempts", sum.Attempts,
		"duration", sum.Duration)
	return sum, nil
}

func (s *Session) solvePoint(ctx context.Context, r, c int, sum *Summary) {
	t, p := s.Lattice.Point(r, c)
	cell := s.Grid.At(r, c)

	key, ok := s.Index.Locate(t, p)
	if !ok {
		cell.MarkFailed()
		cell.Excluded = true
		return
	}
	cell.Key = key
	req := solver.Request{Phases: key.Phases(), T: t, P: p}

	if s.attempt(ctx, cell, req, nil, sum) {
		return
	}
	for _, cand := range s.TriplePointCandidates(key) {
		if s.attempt(ctx, cell, req, cand.Guess, sum) {
			return
		}
	}
	cell.MarkFailed()
}

// RepairGrid retries every failed, non-excluded cell using its solved
// neighbours: for each in scan order, once without a guess and once with
// that neighbour's guess. Cells no neighbour can rescue stay failed and are
// counted as exhausted.
func (s *Session) RepairGrid(ctx context.Context) (Summary, error) {
	if !s.Gridded() {
		return Summary{}, ErrNotGridded
	}

	began := time.Now()
	failed := s.Grid.Failed()
	slog.Info("repair sweep started", "failed", len(failed))

	var sum Summary
	for _, i := range failed {
		if err := ctx.Err(); err != nil {
			return s.finish(sum, began), err
		}
		r, c := s.Lattice.Coord(i)
		cell := s.Grid.At(r, c)
		if cell.Excluded {
			continue
		}

		t, p := s.Lattice.Point(r, c)
		key, ok := s.Index.Locate(t, p)
		if !ok {
			cell.Excluded, cell.Key = true, ""
			continue
		}
		cell.Key = key

		if s.repairPoint(ctx, r, c, solver.Request{Phases: key.Phases(), T: t, P: p}, &sum) {
			sum.Repaired++
			continue
		}
		sum.Exhausted++
		slog.Warn("no solution from neighbours", "t", t, "p", p, "field", key.String())
	}

	sum = s.finish(sum, began)
	slog.Info("repair sweep done",
		"repaired", sum.Repaired,
		"exhausted", sum.Exhausted,
		"failed", sum.Failed,
		"duration", sum.Duration)
	return sum, nil
}

func (s *Session) repairPoint(ctx context.Context, r, c int, req solver.Request, sum *Summary) bool {
	cell := s.Grid.At(r, c)
	for _, nb := range s.NeighbourCandidates(r, c) {
		if s.attempt(ctx, cell, req, nil, sum) {
			return true
		}
		guess := s.Grid.At(nb[0], nb[1]).Result.Guess
		if len(guess) == 0 {
			continue
		}
		if s.attempt(ctx, cell, req, guess, sum) {
			return true
		}
	}
	return false
}

func (s *Session) finish(sum Summary, began time.Time) Summary {
	st := s.Status()
	sum.Total, sum.Solved, sum.Failed, sum.Excluded = st.Total, st.Solved, st.Failed, st.Excluded
	sum.Duration = time.Since(began)
	s.LastSweep = sum
	return sum
}
