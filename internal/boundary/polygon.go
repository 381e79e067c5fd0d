// Package boundary loads administrative boundary sets and answers
// point-in-polygon queries against them.
package boundary

import "github.com/meridian-mel/fieldqc-cli/internal/model"

// ringContains runs the ray-casting test against a single ring. The crossing
// rule is half-open, so a point exactly on an edge resolves the same way on
// every evaluation.
func ringContains(ring model.Ring, lat, lng float64) bool {
	n := len(ring)
	if n < 3 {
		return false
	}
	inside := false
	j := n - 1
	for i := 0; i < n; i++ {
		yi, xi := ring[i].Lat, ring[i].Lng
		yj, xj := ring[j].Lat, ring[j].Lng
		if (yi > lat) != (yj > lat) &&
			lng < (xj-xi)*(lat-yi)/(yj-yi)+xi {
			inside = !inside
		}
		j = i
	}
	return inside
}

// PolygonContains reports whether the point lies inside the polygon's outer
// ring and outside all of its holes.
func PolygonContains(p model.Polygon, pt model.Point) bool {
	if len(p.Rings) == 0 {
		return false
	}
	if !ringContains(p.Rings[0], pt.Lat, pt.Lng) {
		return false
	}
	for _, hole := range p.Rings[1:] {
		if ringContains(hole, pt.Lat, pt.Lng) {
			return false
		}
	}
	return true
}

// Contains reports whether any part of the boundary contains the point.
func Contains(b model.Boundary, pt model.Point) bool {
	for _, poly := range b.Polygons {
		if PolygonContains(poly, pt) {
			return true
		}
	}
	return false
}

// Match returns the first boundary in the set containing the point. Set
// order is the tie-break for overlapping boundaries: exactly one match is
// used, never all of them.
func Match(set []model.Boundary, pt model.Point) (model.Boundary, bool) {
	for _, b := range set {
		if Contains(b, pt) {
			return b, true
		}
	}
	return model.Boundary{}, false
}
