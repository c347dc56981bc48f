package aggregate

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/talgya/psexplorer/internal/diagram"
)

// Merged holds the series of every field containing a phase.
type Merged struct {
	Phase string `json:"phase"`
	Expr  string `json:"expr"`

	Order  []diagram.FieldKey                  `json:"order"` // Field creation order
	Series map[diagram.FieldKey]diagram.Series `json:"series"`

	// Global value range over all series; NaN when Order is empty.
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Merge collects expr on phase for every valid field whose key contains
// phase. Fields yielding no observations are left out.
func (c *Collector) Merge(phase, expr string, sources diagram.Sources) (*Merged, error) {
	if err := sources.Validate(); err != nil {
		return nil, err
	}
	m := &Merged{
		Phase:  phase,
		Expr:   expr,
		Series: make(map[diagram.FieldKey]diagram.Series),
		Min:    math.NaN(),
		Max:    math.NaN(),
	}
	for _, f := range c.Session.Fields() {
		if !f.Key.Contains(phase) {
			continue
		}
		s, err := c.Collect(f.Key, phase, expr, sources)
		if err != nil {
			return nil, err
		}
		m.add(f.Key, s)
	}
	return m, nil
}

func (m *Merged) add(key diagram.FieldKey, s diagram.Series) {
	if len(s) == 0 {
		return
	}
	m.Order = append(m.Order, key)
	m.Series[key] = s

	vals := s.Values()
	lo, hi := floats.Min(vals), floats.Max(vals)
	if len(m.Order) == 1 {
		m.Min, m.Max = lo, hi
		return
	}
	m.Min = math.Min(m.Min, lo)
	m.Max = math.Max(m.Max, hi)
}

// Len returns the total number of observations.
func (m *Merged) Len() int {
	n := 0
	for _, s := range m.Series {
		n += len(s)
	}
	return n
}
