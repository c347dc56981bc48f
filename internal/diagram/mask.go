package diagram

// Mask is a boolean array over the lattice shape marking the points owned by one field.
type Mask struct {
	Rows, Cols int
	bits       []bool
}

// NewMask returns an all-false mask of the given shape.
func NewMask(rows, cols int) *Mask {
	return &Mask{Rows: rows, Cols: cols, bits: make([]bool, rows*cols)}
}

// MaskFromBits wraps a row-major slice. It is used when restoring saved masks.
func MaskFromBits(rows, cols int, bits []bool) *Mask {
	return &Mask{Rows: rows, Cols: cols, bits: bits}
}

// Set marks (r, c).
func (m *Mask) Set(r, c int, v bool) {
	m.bits[r*m.Cols+c] = v
}

// At reports whether (r, c) is in the mask.
func (m *Mask) At(r, c int) bool {
	return m.bits[r*m.Cols+c]
}

// Count returns the number of marked points.
func (m *Mask) Count() int {
	n := 0
	for _, b := range m.bits {
		if b {
			n++
		}
	}
	return n
}

// Indices returns the row-major indices of marked points.
func (m *Mask) Indices() []int {
	var out []int
	for i, b := range m.bits {
		if b {
			out = append(out, i)
		}
	}
	return out
}

// Bits returns the underlying row-major slice.
func (m *Mask) Bits() []bool {
	return m.bits
}
