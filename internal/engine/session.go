// Package engine drives the solver over the sample lattice: the primary
// grid sweep, neighbour-guided repair and variance refresh.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/talgya/psexplorer/internal/diagram"
	"github.com/talgya/psexplorer/internal/geometry"
	"github.com/talgya/psexplorer/internal/solver"
)

var (
	// ErrNotGridded is returned by operations that need a computed grid.
	ErrNotGridded = errors.New("engine: grid has not been computed")
	// ErrEmptyLattice is returned for a lattice with zero points along an axis.
	ErrEmptyLattice = diagram.ErrEmptyLattice
)

// BoundarySource is the boundary data a session is built from.
type BoundarySource = diagram.Boundary

// Options tunes a session.
type Options struct {
	// Now is the clock used to time solver calls. Defaults to time.Now.
	Now func() time.Time
}

// Session holds the complete explorer state for one diagram. It is built
// once per boundary data set and owns the lattice, the grid and the masks.
type Session struct {
	Boundary BoundarySource
	Channel  *solver.Channel
	Index    *geometry.Index

	Lattice *diagram.Lattice
	Grid    *diagram.Grid
	Masks   map[diagram.FieldKey]*diagram.Mask

	LastSweep Summary // Counters of the most recent grid or repair sweep

	now func() time.Time
}

// NewSession reads the boundary geometry and builds the geometry index.
func NewSession(b BoundarySource, ch *solver.Channel, opts Options) (*Session, error) {
	shapes, invalid, err := b.Geometry()
	if err != nil {
		return nil, fmt.Errorf("read geometry: %w", err)
	}
	for _, key := range invalid {
		slog.Warn("field could not be closed", "field", key.String())
	}

	fields := make([]*diagram.Field, 0, len(shapes))
	for _, sh := range shapes {
		fields = append(fields, &diagram.Field{
			Key:      sh.Key,
			Polygon:  sh.Polygon,
			Edges:    sh.Edges,
			Variance: sh.Variance,
		})
	}
	ix, err := geometry.NewIndex(fields)
	if err != nil {
		return nil, err
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}
	s := &Session{
		Boundary: b,
		Channel:  ch,
		Index:    ix,
		now:      now,
	}
	slog.Info("session ready", "fields", len(ix.Fields()), "bad_shapes", len(ix.BadShapes()))
	return s, nil
}

// Fields returns the valid fields in creation order.
func (s *Session) Fields() []*diagram.Field {
	return s.Index.Fields()
}

// Gridded reports whether a grid has been computed or restored.
func (s *Session) Gridded() bool {
	return s.Grid != nil
}

// Restore installs a previously computed grid and rebuilds the masks for it.
func (s *Session) Restore(g *diagram.Grid) {
	s.Lattice = g.Lattice
	s.Grid = g
	s.Masks = s.Index.BuildMasks(g.Lattice)
}

// Mask returns the mask of a field, or nil before gridding.
func (s *Session) Mask(key diagram.FieldKey) *diagram.Mask {
	return s.Masks[key]
}

// attempt runs one solver call for cell, injecting guess first when it is
// non-empty. Only a single-result outcome marks the cell solved; failures
// are counted and never returned.
func (s *Session) attempt(ctx context.Context, cell *diagram.Cell, req solver.Request, guess []string, sum *Summary) bool {
	if len(guess) > 0 {
		s.Channel.SetNextGuess(guess)
	}
	sum.Attempts++

	start := s.now()
	out, err := s.Channel.Invoke(ctx, req)
	elapsed := s.now().Sub(start).Seconds()
	if err != nil {
		sum.Unreachable++
		slog.Debug("solver unreachable", "t", req.T, "p", req.P, "error", err)
		return false
	}
	res, err := out.Single()
	if err != nil {
		sum.Ambiguous++
		slog.Debug("solver ambiguous", "t", req.T, "p", req.P, "results", len(out.Results))
		return false
	}
	if elapsed < 0 {
		elapsed = 0
	}
	cell.MarkSolved(res, elapsed)
	return true
}

// RefreshVariance asks the solver for the variance of every valid field
// whose variance is still unknown. It returns the number of fields updated.
func (s *Session) RefreshVariance(ctx context.Context) (int, error) {
	updated := 0
	for _, f := range s.Index.Fields() {
		if f.Variance > 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return updated, err
		}
		out, err := s.Channel.Invoke(ctx, solver.Request{Phases: f.Key.Phases(), VarianceOnly: true})
		if err != nil {
			slog.Warn("variance unavailable", "field", f.Key.String(), "error", err)
			continue
		}
		f.Variance = out.Variance
		updated++
	}
	return updated, nil
}
