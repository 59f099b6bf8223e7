// Package roi models the drivable-map region data consumed by the fusion
// engine's outside-map correction: road polygons, junction polygons and
// road boundaries, with a pure point-containment predicate over all of
// them. Containment is evaluated on the ground plane (X/Y); Z is ignored.
package roi

import "github.com/meridianav/fusiontrack/internal/geom"

// Polygon is a closed region on the ground plane. Vertices are in order
// (either winding); the closing edge from last back to first is implicit.
type Polygon []geom.Vec3

// RoadBoundary is a road segment bounded by two polylines running in the
// same direction. The enclosed region is the surface between them.
type RoadBoundary struct {
	Left  []geom.Vec3
	Right []geom.Vec3
}

// Regions is the map data attached to a frame. A nil or all-empty Regions
// disables the outside-map correction.
type Regions struct {
	RoadPolygons     []Polygon
	JunctionPolygons []Polygon
	RoadBoundaries   []RoadBoundary
}

// Empty reports whether no region of any kind is present.
func (r *Regions) Empty() bool {
	if r == nil {
		return true
	}
	return len(r.RoadPolygons) == 0 && len(r.JunctionPolygons) == 0 && len(r.RoadBoundaries) == 0
}

// Contains reports whether p lies inside any road polygon, junction
// polygon or road boundary region.
func (r *Regions) Contains(p geom.Vec3) bool {
	if r == nil {
		return false
	}
	for _, poly := range r.RoadPolygons {
		if poly.Contains(p) {
			return true
		}
	}
	for _, poly := range r.JunctionPolygons {
		if poly.Contains(p) {
			return true
		}
	}
	for _, b := range r.RoadBoundaries {
		if b.AsPolygon().Contains(p) {
			return true
		}
	}
	return false
}

// AsPolygon closes the boundary into a polygon: left polyline forward,
// right polyline reversed.
func (b RoadBoundary) AsPolygon() Polygon {
	poly := make(Polygon, 0, len(b.Left)+len(b.Right))
	poly = append(poly, b.Left...)
	for i := len(b.Right) - 1; i >= 0; i-- {
		poly = append(poly, b.Right[i])
	}
	return poly
}

// Contains reports whether p is inside the polygon using even-odd
// ray crossing on the X/Y plane. Points exactly on an edge count as
// inside on one side only; callers needing edge semantics should not
// rely on boundary hits.
func (poly Polygon) Contains(p geom.Vec3) bool {
	n := len(poly)
	if n < 3 {
		return false
	}
	inside := false
	j := n - 1
	for i := 0; i < n; i++ {
		vi, vj := poly[i], poly[j]
		if (vi.Y > p.Y) != (vj.Y > p.Y) {
			xCross := (vj.X-vi.X)*(p.Y-vi.Y)/(vj.Y-vi.Y) + vi.X
			if p.X < xCross {
				inside = !inside
			}
		}
		j = i
	}
	return inside
}
