// Package project reads and writes boundary exports: the fields, triple
// points and boundary curves of a diagram as YAML.
package project

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/ctessum/geom"
	"gopkg.in/yaml.v3"

	"github.com/talgya/psexplorer/internal/diagram"
	"github.com/talgya/psexplorer/internal/solver"
)

// ErrEmpty is returned for an export with no content.
var ErrEmpty = errors.New("project: boundary export is empty")

// Document is the on-disk form of a boundary export.
type Document struct {
	Window       Window        `yaml:"window"`
	Fields       []FieldDoc    `yaml:"fields"`
	Invalid      [][]string    `yaml:"invalid,omitempty"`
	TriplePoints []TriplePoint `yaml:"triple_points"`
	Curves       []Curve       `yaml:"curves"`
}

// Window is the diagram range.
type Window struct {
	T []float64 `yaml:"t"`
	P []float64 `yaml:"p"`
}

// FieldDoc is one closed field. Polygon is the outer ring as (T, p) pairs.
type FieldDoc struct {
	Phases   []string    `yaml:"phases"`
	Polygon  [][]float64 `yaml:"polygon"`
	Edges    []int       `yaml:"edges"`
	Variance int         `yaml:"variance,omitempty"`
}

// ResultDoc is one solved equilibrium.
type ResultDoc struct {
	Data  map[string]map[string]float64 `yaml:"data"`
	Guess []string                      `yaml:"ptguess,omitempty"`
}

// TriplePoint is an invariant point.
type TriplePoint struct {
	ID      int         `yaml:"id"`
	T       float64     `yaml:"t"`
	P       float64     `yaml:"p"`
	Manual  bool        `yaml:"manual,omitempty"`
	Guess   []string    `yaml:"guess,omitempty"`
	Results []ResultDoc `yaml:"results,omitempty"`
}

// Curve is a univariant line.
type Curve struct {
	ID      int         `yaml:"id"`
	Begin   int         `yaml:"begin"`
	End     int         `yaml:"end"`
	Manual  bool        `yaml:"manual,omitempty"`
	BeginIx int         `yaml:"begin_ix"`
	EndIx   int         `yaml:"end_ix"`
	T       []float64   `yaml:"t,omitempty"`
	P       []float64   `yaml:"p,omitempty"`
	Results []ResultDoc `yaml:"results,omitempty"`
}

// Boundary is a loaded export. It implements diagram.Boundary.
type Boundary struct {
	doc            Document
	tRange, pRange [2]float64
	points         map[int]*diagram.TriplePoint
	curves         map[int]*diagram.BoundaryCurve
}

// Parse decodes an export.
func Parse(data []byte) (*Boundary, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmpty
	}
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("project: decode boundary: %w", err)
	}
	return FromDocument(doc)
}

// Load reads an export file.
func Load(path string) (*Boundary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("project: read %s: %w", path, err)
	}
	b, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("project: %s: %w", path, err)
	}
	return b, nil
}

// FromDocument indexes a decoded export.
func FromDocument(doc Document) (*Boundary, error) {
	b := &Boundary{
		doc:    doc,
		points: make(map[int]*diagram.TriplePoint, len(doc.TriplePoints)),
		curves: make(map[int]*diagram.BoundaryCurve, len(doc.Curves)),
	}
	if len(doc.Window.T) != 2 || len(doc.Window.P) != 2 {
		return nil, fmt.Errorf("project: window needs two T and two p values")
	}
	b.tRange = [2]float64{doc.Window.T[0], doc.Window.T[1]}
	b.pRange = [2]float64{doc.Window.P[0], doc.Window.P[1]}
	for _, tp := range doc.TriplePoints {
		if tp.ID == diagram.NoPoint {
			return nil, fmt.Errorf("project: triple point id %d is reserved", diagram.NoPoint)
		}
		if _, dup := b.points[tp.ID]; dup {
			return nil, fmt.Errorf("project: duplicate triple point %d", tp.ID)
		}
		b.points[tp.ID] = &diagram.TriplePoint{
			ID: tp.ID, T: tp.T, P: tp.P, Manual: tp.Manual,
			Guess:   tp.Guess,
			Results: results(tp.Results),
		}
	}
	for _, cv := range doc.Curves {
		if _, dup := b.curves[cv.ID]; dup {
			return nil, fmt.Errorf("project: duplicate curve %d", cv.ID)
		}
		if len(cv.T) != len(cv.P) {
			return nil, fmt.Errorf("project: curve %d has %d T and %d p samples", cv.ID, len(cv.T), len(cv.P))
		}
		b.curves[cv.ID] = &diagram.BoundaryCurve{
			ID: cv.ID, Begin: cv.Begin, End: cv.End, Manual: cv.Manual,
			BeginIx: cv.BeginIx, EndIx: cv.EndIx,
			T: cv.T, P: cv.P,
			Results: results(cv.Results),
		}
	}
	return b, nil
}

func results(docs []ResultDoc) []*solver.Result {
	if len(docs) == 0 {
		return nil
	}
	out := make([]*solver.Result, len(docs))
	for i, d := range docs {
		out[i] = &solver.Result{Data: d.Data, Guess: d.Guess}
	}
	return out
}

// Geometry returns the fields in file order.
func (b *Boundary) Geometry() ([]diagram.FieldShape, []diagram.FieldKey, error) {
	if len(b.doc.Fields) == 0 {
		return nil, nil, ErrEmpty
	}
	shapes := make([]diagram.FieldShape, 0, len(b.doc.Fields))
	for _, f := range b.doc.Fields {
		ring := make([]geom.Point, len(f.Polygon))
		for i, xy := range f.Polygon {
			if len(xy) != 2 {
				return nil, nil, fmt.Errorf("project: field %v vertex %d has %d coordinates", f.Phases, i, len(xy))
			}
			ring[i] = geom.Point{X: xy[0], Y: xy[1]}
		}
		edges := append([]int(nil), f.Edges...)
		sort.Ints(edges)
		shapes = append(shapes, diagram.FieldShape{
			Key:      diagram.NewFieldKey(f.Phases...),
			Polygon:  geom.Polygon{ring},
			Edges:    dedupeInts(edges),
			Variance: f.Variance,
		})
	}
	invalid := make([]diagram.FieldKey, len(b.doc.Invalid))
	for i, ph := range b.doc.Invalid {
		invalid[i] = diagram.NewFieldKey(ph...)
	}
	return shapes, invalid, nil
}

func dedupeInts(sorted []int) []int {
	out := sorted[:0]
	for i, v := range sorted {
		if i == 0 || v != sorted[i-1] {
			out = append(out, v)
		}
	}
	return out
}

// TriplePoint looks up a triple point.
func (b *Boundary) TriplePoint(id int) (*diagram.TriplePoint, bool) {
	tp, ok := b.points[id]
	return tp, ok
}

// Curve looks up a boundary curve.
func (b *Boundary) Curve(id int) (*diagram.BoundaryCurve, bool) {
	cv, ok := b.curves[id]
	return cv, ok
}

// Window returns the diagram range.
func (b *Boundary) Window() (tRange, pRange [2]float64) {
	return b.tRange, b.pRange
}

// Snapshot captures any boundary as a document: its fields plus every
// curve and triple point they reference.
func Snapshot(src diagram.Boundary) (Document, error) {
	shapes, invalid, err := src.Geometry()
	if err != nil {
		return Document{}, err
	}
	var doc Document
	tr, pr := src.Window()
	doc.Window = Window{T: tr[:], P: pr[:]}

	seen := make(map[int]bool)
	var edges []int
	for _, sh := range shapes {
		fd := FieldDoc{Phases: sh.Key.Phases(), Edges: sh.Edges, Variance: sh.Variance}
		if len(sh.Polygon) > 0 {
			for _, pt := range sh.Polygon[0] {
				fd.Polygon = append(fd.Polygon, []float64{pt.X, pt.Y})
			}
		}
		doc.Fields = append(doc.Fields, fd)
		for _, e := range sh.Edges {
			if !seen[e] {
				seen[e] = true
				edges = append(edges, e)
			}
		}
	}
	for _, k := range invalid {
		doc.Invalid = append(doc.Invalid, k.Phases())
	}

	sort.Ints(edges)
	for _, e := range edges {
		cv, ok := src.Curve(e)
		if !ok {
			continue
		}
		doc.Curves = append(doc.Curves, Curve{
			ID: cv.ID, Begin: cv.Begin, End: cv.End, Manual: cv.Manual,
			BeginIx: cv.BeginIx, EndIx: cv.EndIx,
			T: cv.T, P: cv.P,
			Results: resultDocs(cv.Results),
		})
	}
	for _, id := range diagram.TriplePointIDs(src, edges) {
		tp, ok := src.TriplePoint(id)
		if !ok {
			continue
		}
		doc.TriplePoints = append(doc.TriplePoints, TriplePoint{
			ID: tp.ID, T: tp.T, P: tp.P, Manual: tp.Manual,
			Guess:   tp.Guess,
			Results: resultDocs(tp.Results),
		})
	}
	return doc, nil
}

func resultDocs(rs []*solver.Result) []ResultDoc {
	out := make([]ResultDoc, 0, len(rs))
	for _, r := range rs {
		if r == nil {
			out = append(out, ResultDoc{})
			continue
		}
		out = append(out, ResultDoc{Data: r.Data, Guess: r.Guess})
	}
	return out
}

// Write encodes a document as YAML.
func Write(w io.Writer, doc Document) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("project: encode boundary: %w", err)
	}
	return enc.Close()
}
