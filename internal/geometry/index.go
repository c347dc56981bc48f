// Package geometry answers "which stability field owns this (T, p) point"
// and builds per-field lattice masks.
package geometry

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"

	"github.com/talgya/psexplorer/internal/diagram"
)

var (
	// ErrNoFields is returned when the index is built from no field data.
	ErrNoFields = errors.New("geometry: no field data")
	// ErrBadShape marks a degenerate field polygon. Diagnostic only.
	ErrBadShape = errors.New("geometry: degenerate field polygon")
	// ErrOverlappingFields is returned when two valid fields share interior area.
	ErrOverlappingFields = errors.New("geometry: field polygons overlap")
)

// OverlapTolerance is the intersection area, as a fraction of the smaller
// field's area, above which two fields are considered overlapping.
var OverlapTolerance = 1e-6

// ShapeError reports one field flagged bad during index construction.
type ShapeError struct {
	Key    diagram.FieldKey
	Reason string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("field %q: %s", e.Key, e.Reason)
}

// Is makes every ShapeError match ErrBadShape.
func (e *ShapeError) Is(target error) bool { return target == ErrBadShape }

// entry is the tree item for one field. The embedded polygon makes it a
// geom.Geom; order is the field's creation order.
type entry struct {
	geom.Polygon
	field *diagram.Field
	order int
}

// Index is the spatial index over the valid fields of one diagram.
type Index struct {
	all   []*diagram.Field
	valid []*entry
	byKey map[diagram.FieldKey]*diagram.Field
	tree  *rtree.Rtree
	bad   []*ShapeError
}

// NewIndex validates the fields and indexes the valid ones. Degenerate
// fields are flagged Bad and excluded; they never cause an error. Two valid
// fields overlapping by more than OverlapTolerance do.
func NewIndex(fields []*diagram.Field) (*Index, error) {
	if len(fields) == 0 {
		return nil, ErrNoFields
	}

	ix := &Index{
		all:   fields,
		byKey: make(map[diagram.FieldKey]*diagram.Field, len(fields)),
		tree:  rtree.NewTree(25, 50),
	}
	for i, f := range fields {
		ix.byKey[f.Key] = f
		if reason := validate(f.Polygon); reason != "" {
			f.Bad, f.BadReason = true, reason
			se := &ShapeError{Key: f.Key, Reason: reason}
			ix.bad = append(ix.bad, se)
			slog.Warn("bad field shape", "field", f.Key.String(), "reason", reason)
			continue
		}
		f.Bad, f.BadReason = false, ""
		e := &entry{Polygon: f.Polygon, field: f, order: i}
		ix.valid = append(ix.valid, e)
		ix.tree.Insert(e)
	}

	if err := ix.checkOverlaps(); err != nil {
		return nil, err
	}
	return ix, nil
}

func (ix *Index) checkOverlaps() error {
	for _, a := range ix.valid {
		areaA := math.Abs(a.field.Polygon.Area())
		for _, s := range ix.tree.SearchIntersect(a.Bounds()) {
			b := s.(*entry)
			if b.order <= a.order {
				continue
			}
			inter := a.field.Polygon.Intersection(b.field.Polygon)
			if inter == nil {
				continue
			}
			area := math.Abs(inter.Area())
			limit := OverlapTolerance * math.Min(areaA, math.Abs(b.field.Polygon.Area()))
			if area > limit {
				return fmt.Errorf("%q and %q share area %g: %w", a.field.Key, b.field.Key, area, ErrOverlappingFields)
			}
		}
	}
	return nil
}

// Fields returns the valid fields in creation order.
func (ix *Index) Fields() []*diagram.Field {
	out := make([]*diagram.Field, len(ix.valid))
	for i, e := range ix.valid {
		out[i] = e.field
	}
	return out
}

// All returns every field given to NewIndex, bad ones included.
func (ix *Index) All() []*diagram.Field {
	return ix.all
}

// Field looks a field up by key. Bad fields are returned too.
func (ix *Index) Field(key diagram.FieldKey) (*diagram.Field, bool) {
	f, ok := ix.byKey[key]
	return f, ok
}

// BadShapes returns the fields flagged during construction.
func (ix *Index) BadShapes() []*ShapeError {
	return ix.bad
}

// Locate returns the key of the field whose interior strictly contains
// (t, p). Points on a field edge belong to no field. When several fields
// claim the point the first in creation order wins.
func (ix *Index) Locate(t, p float64) (diagram.FieldKey, bool) {
	pt := geom.Point{X: t, Y: p}
	ex := 1e-9 * (1 + math.Abs(t))
	ey := 1e-9 * (1 + math.Abs(p))
	box := &geom.Bounds{
		Min: geom.Point{X: t - ex, Y: p - ey},
		Max: geom.Point{X: t + ex, Y: p + ey},
	}

	var best *entry
	for _, s := range ix.tree.SearchIntersect(box) {
		e := s.(*entry)
		if best != nil && e.order > best.order {
			continue
		}
		if pt.Within(e.field.Polygon) == geom.Inside {
			best = e
		}
	}
	if best == nil {
		return "", false
	}
	return best.field.Key, true
}

// BuildMasks locates every lattice point once and returns one mask per
// valid field. Fields owning no point still get an all-false mask.
func (ix *Index) BuildMasks(l *diagram.Lattice) map[diagram.FieldKey]*diagram.Mask {
	masks := make(map[diagram.FieldKey]*diagram.Mask, len(ix.valid))
	for _, e := range ix.valid {
		masks[e.field.Key] = diagram.NewMask(l.Rows(), l.Cols())
	}
	for r := 0; r < l.Rows(); r++ {
		for c := 0; c < l.Cols(); c++ {
			t, p := l.Point(r, c)
			if key, ok := ix.Locate(t, p); ok {
				masks[key].Set(r, c, true)
			}
		}
	}
	return masks
}
