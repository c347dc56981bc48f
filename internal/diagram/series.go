package diagram

import (
	"errors"
	"math"
	"strings"
)

// Sources selects which observations feed an aggregated series.
type Sources uint8

const (
	SourceTriple Sources = 1 << iota // Triple points bordering the field
	SourceCurve                      // Solved samples along boundary curves
	SourceGrid                       // Solved grid cells under the field mask

	SourceAll = SourceTriple | SourceCurve | SourceGrid
)

// ErrNoSources is returned for an empty source selection.
var ErrNoSources = errors.New("diagram: at least one data source must be selected")

// Has reports whether s selects src.
func (s Sources) Has(src Sources) bool {
	return s&src != 0
}

// Validate rejects empty or out-of-range selections.
func (s Sources) Validate() error {
	if s == 0 || s&^SourceAll != 0 {
		return ErrNoSources
	}
	return nil
}

// ParseSources parses a comma-separated list of "triple", "curve", "grid" or "all".
func ParseSources(list string) (Sources, error) {
	var s Sources
	for _, part := range strings.Split(list, ",") {
		switch strings.TrimSpace(strings.ToLower(part)) {
		case "triple", "inv":
			s |= SourceTriple
		case "curve", "uni":
			s |= SourceCurve
		case "grid":
			s |= SourceGrid
		case "all", "":
			s |= SourceAll
		default:
			return 0, ErrNoSources
		}
	}
	return s, s.Validate()
}

// Sample is one scalar observation at (T, p).
type Sample struct {
	T     float64 `json:"t"`
	P     float64 `json:"p"`
	Value float64 `json:"value"`
}

// Series is a list of observations for one (field, phase, expression).
type Series []Sample

// Values returns the scalar values in order.
func (s Series) Values() []float64 {
	out := make([]float64, len(s))
	for i, smp := range s {
		out[i] = smp.Value
	}
	return out
}

// MinMax returns the value range; NaN, NaN for an empty series.
func (s Series) MinMax() (lo, hi float64) {
	if len(s) == 0 {
		return math.NaN(), math.NaN()
	}
	lo, hi = s[0].Value, s[0].Value
	for _, smp := range s[1:] {
		lo = math.Min(lo, smp.Value)
		hi = math.Max(hi, smp.Value)
	}
	return lo, hi
}
