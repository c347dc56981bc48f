package diagram

import (
	"sort"

	"github.com/ctessum/geom"

	"github.com/talgya/psexplorer/internal/solver"
)

// NoPoint is the triple-point id used for the open end of a boundary curve.
const NoPoint = 0

// FieldShape is one field as assembled from boundary curves upstream.
type FieldShape struct {
	Key      FieldKey
	Polygon  geom.Polygon
	Edges    []int
	Variance int
}

// TriplePoint is an invariant point where boundary curves meet.
type TriplePoint struct {
	ID      int
	T, P    float64
	Manual  bool     // Placed by hand; carries no solver state
	Guess   []string // Stored solver initial-guess block
	Results []*solver.Result
}

// BoundaryCurve is a solved univariant line between two fields.
type BoundaryCurve struct {
	ID         int
	Begin, End int  // Triple-point ids, NoPoint for an open end
	Manual     bool // Connected by hand; no solved samples
	BeginIx    int  // First solved sample (inclusive)
	EndIx      int  // Last solved sample (inclusive)
	T, P       []float64
	Results    []*solver.Result
}

// Boundary is the read-only view of the boundary data the explorer needs.
type Boundary interface {
	// Geometry returns the fields in creation order plus the keys of fields
	// the upstream assembly step could not close.
	Geometry() (fields []FieldShape, invalid []FieldKey, err error)
	TriplePoint(id int) (*TriplePoint, bool)
	Curve(id int) (*BoundaryCurve, bool)
	// Window is the T and p range of the diagram.
	Window() (tRange, pRange [2]float64)
}

// TriplePointIDs returns the ids of triple points at either end of the
// given curves, deduplicated, without NoPoint, in ascending order.
func TriplePointIDs(b Boundary, edges []int) []int {
	seen := make(map[int]bool)
	var ids []int
	for _, e := range edges {
		cv, ok := b.Curve(e)
		if !ok {
			continue
		}
		for _, id := range [2]int{cv.Begin, cv.End} {
			if id == NoPoint || seen[id] {
				continue
			}
			seen[id] = true
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids
}
