// Package diagram provides the data model of a computed P–T phase diagram:
// stability-field keys, field polygons, the sample lattice, grid cells and masks.
package diagram

import (
	"sort"
	"strings"
)

// FieldKey identifies one stability field by its set of stable phases.
// The canonical form is the sorted, deduplicated phase names joined by a
// single space, so two keys are equal exactly when their phase sets are.
type FieldKey string

// NewFieldKey builds a canonical key from phase names. Blank names are dropped.
func NewFieldKey(phases ...string) FieldKey {
	seen := make(map[string]bool, len(phases))
	names := make([]string, 0, len(phases))
	for _, p := range phases {
		p = strings.TrimSpace(p)
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		names = append(names, p)
	}
	sort.Strings(names)
	return FieldKey(strings.Join(names, " "))
}

// Phases returns the phase names of the key in sorted order.
func (k FieldKey) Phases() []string {
	if k == "" {
		return nil
	}
	return strings.Split(string(k), " ")
}

// Contains reports whether phase is stable in the field.
func (k FieldKey) Contains(phase string) bool {
	for _, p := range k.Phases() {
		if p == phase {
			return true
		}
	}
	return false
}

// Without returns the key with the given phases removed (e.g. excess phases).
func (k FieldKey) Without(excluded ...string) FieldKey {
	drop := make(map[string]bool, len(excluded))
	for _, e := range excluded {
		drop[e] = true
	}
	var kept []string
	for _, p := range k.Phases() {
		if !drop[p] {
			kept = append(kept, p)
		}
	}
	return NewFieldKey(kept...)
}

// String returns the canonical form.
func (k FieldKey) String() string {
	return string(k)
}

// CommonPhases returns the phases present in every key (the excess assemblage).
func CommonPhases(keys []FieldKey) []string {
	if len(keys) == 0 {
		return nil
	}
	counts := make(map[string]int)
	for _, k := range keys {
		for _, p := range k.Phases() {
			counts[p]++
		}
	}
	var common []string
	for p, n := range counts {
		if n == len(keys) {
			common = append(common, p)
		}
	}
	sort.Strings(common)
	return common
}
