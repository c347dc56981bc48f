package isopleth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/talgya/psexplorer/internal/aggregate"
	"github.com/talgya/psexplorer/internal/diagram"
	"github.com/talgya/psexplorer/internal/engine"
)

// ErrNoData is returned when no field yields any observation.
var ErrNoData = errors.New("isopleth: no observations to interpolate")

// Options controls level selection and interpolation.
type Options struct {
	Levels   []float64        // Explicit contour values
	N        int              // Number of levels when neither Levels nor Step is set
	Step     float64          // Level spacing
	Gradient Axis             // Contour a derivative instead of the value
	Refine   int              // Sub-lattice refinement factor, default 1
	Smooth   float64          // Spline smoothing
	Only     diagram.FieldKey // Restrict to one field
	Sources  diagram.Sources  // Default SourceAll
}

// FieldIsopleths are the contours of one field.
type FieldIsopleths struct {
	Key      diagram.FieldKey `json:"key"`
	Levels   []float64        `json:"levels"`
	Contours []Contour        `json:"contours"`
	Points   int              `json:"points"` // Observations fitted
}

// Result holds the isopleths of one (phase, expression) over the diagram.
type Result struct {
	Phase  string            `json:"phase"`
	Expr   string            `json:"expr"`
	Min    float64           `json:"min"`
	Max    float64           `json:"max"`
	Levels []float64         `json:"levels,omitempty"` // Shared levels, empty in gradient mode
	Fields []*FieldIsopleths `json:"fields"`

	// Fields whose interpolation failed, with the reason.
	Skipped map[diagram.FieldKey]string `json:"skipped,omitempty"`
}

func (o Options) sources() diagram.Sources {
	if o.Sources == 0 {
		return diagram.SourceAll
	}
	return o.Sources
}

func collect(c *aggregate.Collector, phase, expr string, opts Options) (*aggregate.Merged, error) {
	if opts.Only == "" {
		return c.Merge(phase, expr, opts.sources())
	}
	s, err := c.Collect(opts.Only, phase, expr, opts.sources())
	if err != nil {
		return nil, err
	}
	m := &aggregate.Merged{
		Phase:  phase,
		Expr:   expr,
		Series: map[diagram.FieldKey]diagram.Series{},
		Min:    math.NaN(),
		Max:    math.NaN(),
	}
	if len(s) > 0 {
		m.Order = []diagram.FieldKey{opts.Only}
		m.Series[opts.Only] = s
		m.Min, m.Max = s.MinMax()
	}
	return m, nil
}

// Isopleths fits and contours every field containing phase. A field whose
// spline cannot be fitted is logged and recorded in Result.Skipped.
func Isopleths(ctx context.Context, c *aggregate.Collector, phase, expr string, opts Options) (*Result, error) {
	s := c.Session
	if !s.Gridded() {
		return nil, engine.ErrNotGridded
	}
	m, err := collect(c, phase, expr, opts)
	if err != nil {
		return nil, err
	}
	if len(m.Order) == 0 {
		return nil, fmt.Errorf("%s(%s): %w", phase, expr, ErrNoData)
	}

	res := &Result{
		Phase:   phase,
		Expr:    expr,
		Min:     m.Min,
		Max:     m.Max,
		Skipped: make(map[diagram.FieldKey]string),
	}
	if opts.Gradient == AxisNone {
		if res.Levels, err = Levels(opts.Levels, opts.Step, opts.N, m.Min, m.Max); err != nil {
			return nil, err
		}
	} else if opts.N > MaxLevels {
		return nil, fmt.Errorf("%d gradient levels: %w", opts.N, ErrTooManyLevels)
	}

	scale := s.Lattice.TStep() / s.Lattice.PStep()
	for _, key := range m.Order {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		f, _ := s.Index.Field(key)
		sp, err := Fit(m.Series[key], opts.Smooth, scale)
		if err != nil {
			slog.Warn("isopleth fit failed", "field", key.String(), "error", err)
			res.Skipped[key] = err.Error()
			continue
		}

		ts, ps := SubLattice(f.Bounds(), s.Lattice, opts.Refine)
		surf := Evaluate(sp, ts, ps)
		levels := res.Levels
		if opts.Gradient != AxisNone {
			surf = surf.Gradient(opts.Gradient)
			lo, hi := surf.MinMax()
			if levels, err = Levels(nil, 0, opts.N, lo, hi); err != nil {
				return nil, err
			}
		}

		fi := &FieldIsopleths{Key: key, Levels: levels, Points: len(m.Series[key])}
		for _, ct := range Trace(surf, levels) {
			ct.Segments = Clip(ct.Segments, f.Polygon)
			fi.Contours = append(fi.Contours, ct)
		}
		res.Fields = append(res.Fields, fi)
	}
	slog.Info("isopleths done", "phase", phase, "expr", expr, "fields", len(res.Fields), "skipped", len(res.Skipped))
	return res, nil
}

// Gridded evaluates each field's spline back onto the main lattice at the
// points owned by the field. The result is row-major with NaN at points no
// fitted field owns.
func Gridded(c *aggregate.Collector, phase, expr string, sources diagram.Sources, smooth float64) ([]float64, error) {
	s := c.Session
	if !s.Gridded() {
		return nil, engine.ErrNotGridded
	}
	m, err := c.Merge(phase, expr, sources)
	if err != nil {
		return nil, err
	}

	out := make([]float64, s.Lattice.Size())
	for i := range out {
		out[i] = math.NaN()
	}
	scale := s.Lattice.TStep() / s.Lattice.PStep()
	for _, key := range m.Order {
		sp, err := Fit(m.Series[key], smooth, scale)
		if err != nil {
			slog.Warn("gridded fit failed", "field", key.String(), "error", err)
			continue
		}
		mask := s.Mask(key)
		if mask == nil {
			continue
		}
		for _, i := range mask.Indices() {
			r, col := s.Lattice.Coord(i)
			out[i] = sp.Eval(s.Lattice.Point(r, col))
		}
	}
	return out, nil
}
