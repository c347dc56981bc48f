package diagram

import (
	"github.com/ctessum/geom"
)

// Field is one stability field: a polygon in T–p space (X = T, Y = p)
// together with the boundary curves enclosing it.
type Field struct {
	Key      FieldKey     `json:"key"`
	Polygon  geom.Polygon `json:"polygon"`
	Edges    []int        `json:"edges"`    // Boundary-curve ids, ascending
	Variance int          `json:"variance"` // Degrees of freedom; <= 0 when unknown

	// Set when the polygon is degenerate. Bad fields own no lattice points.
	Bad       bool   `json:"bad,omitempty"`
	BadReason string `json:"bad_reason,omitempty"`
}

// Bounds returns the bounding box of the field polygon.
func (f *Field) Bounds() *geom.Bounds {
	return f.Polygon.Bounds()
}

// Phases is the set of all phases appearing in any of the fields.
func Phases(fields []*Field) []string {
	var all []string
	for _, f := range fields {
		all = append(all, f.Key.Phases()...)
	}
	return NewFieldKey(all...).Phases()
}
