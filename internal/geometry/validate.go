package geometry

import (
	"math"

	"github.com/ctessum/geom"
)

// validate returns why a polygon cannot serve as a field, or "" if it can.
func validate(poly geom.Polygon) string {
	if len(poly) == 0 {
		return "no rings"
	}
	ring := openRing(poly[0])
	for _, pt := range ring {
		if math.IsNaN(pt.X) || math.IsNaN(pt.Y) || math.IsInf(pt.X, 0) || math.IsInf(pt.Y, 0) {
			return "non-finite vertex"
		}
	}
	if distinct(ring) < 3 {
		return "fewer than three distinct vertices"
	}
	if math.Abs(poly.Area()) <= 0 {
		return "zero area"
	}
	if selfIntersects(ring) {
		return "self-intersecting boundary"
	}
	return ""
}

// openRing drops the closing vertex when the ring repeats its first point.
func openRing(ring []geom.Point) []geom.Point {
	if n := len(ring); n > 1 && ring[0] == ring[n-1] {
		return ring[:n-1]
	}
	return ring
}

func distinct(ring []geom.Point) int {
	seen := make(map[geom.Point]bool, len(ring))
	for _, pt := range ring {
		seen[pt] = true
	}
	return len(seen)
}

// selfIntersects checks every pair of non-adjacent edges of the ring.
func selfIntersects(ring []geom.Point) bool {
	n := len(ring)
	for i := 0; i < n; i++ {
		a1, a2 := ring[i], ring[(i+1)%n]
		for j := i + 1; j < n; j++ {
			if j == i+1 || (i == 0 && j == n-1) {
				continue
			}
			b1, b2 := ring[j], ring[(j+1)%n]
			if segmentsCross(a1, a2, b1, b2) {
				return true
			}
		}
	}
	return false
}

func orient(a, b, c geom.Point) float64 {
	return (b.X-a.X)*(c.Y-a.Y) - (b.Y-a.Y)*(c.X-a.X)
}

func onSegment(a, b, c geom.Point) bool {
	return math.Min(a.X, b.X) <= c.X && c.X <= math.Max(a.X, b.X) &&
		math.Min(a.Y, b.Y) <= c.Y && c.Y <= math.Max(a.Y, b.Y)
}

func segmentsCross(p1, p2, q1, q2 geom.Point) bool {
	d1 := orient(q1, q2, p1)
	d2 := orient(q1, q2, p2)
	d3 := orient(p1, p2, q1)
	d4 := orient(p1, p2, q2)
	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) && ((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}
	switch {
	case d1 == 0 && onSegment(q1, q2, p1):
		return true
	case d2 == 0 && onSegment(q1, q2, p2):
		return true
	case d3 == 0 && onSegment(p1, p2, q1):
		return true
	case d4 == 0 && onSegment(p1, p2, q2):
		return true
	}
	return false
}
