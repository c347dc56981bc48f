// Package aggregate gathers scalar observations of one phase property over
// a field from triple points, boundary curves and solved grid cells.
package aggregate

import (
	"errors"
	"fmt"
	"sort"

	"github.com/talgya/psexplorer/internal/diagram"
	"github.com/talgya/psexplorer/internal/engine"
	"github.com/talgya/psexplorer/internal/solver"
)

// ErrUnknownField is returned for a key that names no field of the session.
var ErrUnknownField = errors.New("aggregate: unknown field")

// excludedDataPhase has no composition variables worth exposing.
const excludedDataPhase = "H2O"

// Evaluator computes a scalar from the variables of one phase.
type Evaluator interface {
	Eval(expression string, data map[string]float64) (float64, error)
}

// Collector reads observations from a session.
type Collector struct {
	Session   *engine.Session
	Evaluator Evaluator
}

// NewCollector returns a collector over the session.
func NewCollector(s *engine.Session, ev Evaluator) *Collector {
	return &Collector{Session: s, Evaluator: ev}
}

// Collect returns the observations of expr evaluated on phase for the field,
// in source order: triple points, then boundary curves, then grid cells.
// Observations whose result lacks the phase are skipped.
func (c *Collector) Collect(key diagram.FieldKey, phase, expr string, sources diagram.Sources) (diagram.Series, error) {
	if err := sources.Validate(); err != nil {
		return nil, err
	}
	f, ok := c.Session.Index.Field(key)
	if !ok {
		return nil, fmt.Errorf("%q: %w", key, ErrUnknownField)
	}

	var out diagram.Series
	if sources.Has(diagram.SourceTriple) {
		s, err := c.collectTriplePoints(f, phase, expr)
		if err != nil {
			return nil, err
		}
		out = append(out, s...)
	}
	if sources.Has(diagram.SourceCurve) {
		s, err := c.collectCurves(f, phase, expr)
		if err != nil {
			return nil, err
		}
		out = append(out, s...)
	}
	if sources.Has(diagram.SourceGrid) {
		s, err := c.collectGrid(f, phase, expr)
		if err != nil {
			return nil, err
		}
		out = append(out, s...)
	}
	return out, nil
}

func (c *Collector) sample(t, p float64, res *solver.Result, phase, expr string) (diagram.Sample, bool, error) {
	data, ok := res.Phase(phase)
	if !ok {
		return diagram.Sample{}, false, nil
	}
	v, err := c.Evaluator.Eval(expr, data)
	if err != nil {
		return diagram.Sample{}, false, err
	}
	return diagram.Sample{T: t, P: p, Value: v}, true, nil
}

func (c *Collector) collectTriplePoints(f *diagram.Field, phase, expr string) (diagram.Series, error) {
	b := c.Session.Boundary
	var out diagram.Series
	for _, id := range diagram.TriplePointIDs(b, f.Edges) {
		tp, ok := b.TriplePoint(id)
		if !ok || tp.Manual || len(tp.Results) == 0 {
			continue
		}
		smp, ok, err := c.sample(tp.T, tp.P, tp.Results[0], phase, expr)
		if err != nil {
			return nil, fmt.Errorf("triple point %d: %w", id, err)
		}
		if ok {
			out = append(out, smp)
		}
	}
	return out, nil
}

func (c *Collector) collectCurves(f *diagram.Field, phase, expr string) (diagram.Series, error) {
	b := c.Session.Boundary
	var out diagram.Series
	for _, e := range f.Edges {
		cv, ok := b.Curve(e)
		if !ok || cv.Manual {
			continue
		}
		last := min(cv.EndIx, len(cv.Results)-1, len(cv.T)-1, len(cv.P)-1)
		for i := max(cv.BeginIx, 0); i <= last; i++ {
			if cv.Results[i] == nil {
				continue
			}
			smp, ok, err := c.sample(cv.T[i], cv.P[i], cv.Results[i], phase, expr)
			if err != nil {
				return nil, fmt.Errorf("curve %d sample %d: %w", e, i, err)
			}
			if ok {
				out = append(out, smp)
			}
		}
	}
	return out, nil
}

func (c *Collector) collectGrid(f *diagram.Field, phase, expr string) (diagram.Series, error) {
	s := c.Session
	if !s.Gridded() {
		return nil, nil
	}
	mask := s.Mask(f.Key)
	if mask == nil {
		return nil, nil
	}
	var out diagram.Series
	for _, i := range mask.Indices() {
		cell := &s.Grid.Cells[i]
		if cell.Status != diagram.StatusSolved {
			continue
		}
		r, col := s.Lattice.Coord(i)
		t, p := s.Lattice.Point(r, col)
		smp, ok, err := c.sample(t, p, cell.Result, phase, expr)
		if err != nil {
			return nil, fmt.Errorf("grid point (%g, %g): %w", t, p, err)
		}
		if ok {
			out = append(out, smp)
		}
	}
	return out, nil
}

// DataKeys returns, per phase of the field except H2O, the sorted variable
// names of the first solved grid cell under the field mask.
func (c *Collector) DataKeys(key diagram.FieldKey) map[string][]string {
	out := make(map[string][]string)
	c.addDataKeys(key, out)
	return out
}

// AllDataKeys merges DataKeys over every field in creation order.
func (c *Collector) AllDataKeys() map[string][]string {
	out := make(map[string][]string)
	for _, f := range c.Session.Fields() {
		c.addDataKeys(f.Key, out)
	}
	return out
}

func (c *Collector) addDataKeys(key diagram.FieldKey, out map[string][]string) {
	s := c.Session
	mask := s.Mask(key)
	if mask == nil {
		return
	}
	for _, i := range mask.Indices() {
		cell := &s.Grid.Cells[i]
		if cell.Status != diagram.StatusSolved {
			continue
		}
		for _, ph := range key.Without(excludedDataPhase).Phases() {
			data, ok := cell.Result.Phase(ph)
			if !ok {
				continue
			}
			names := make([]string, 0, len(data))
			for n := range data {
				names = append(names, n)
			}
			sort.Strings(names)
			out[ph] = names
		}
		return
	}
}
