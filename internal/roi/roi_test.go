package roi

import (
	"testing"

	"github.com/meridianav/fusiontrack/internal/geom"
)

func square(cx, cy, half float64) Polygon {
	return Polygon{
		{X: cx - half, Y: cy - half},
		{X: cx + half, Y: cy - half},
		{X: cx + half, Y: cy + half},
		{X: cx - half, Y: cy + half},
	}
}

func TestPolygonContains(t *testing.T) {
	poly := square(0, 0, 5)

	cases := []struct {
		name string
		p    geom.Vec3
		want bool
	}{
		{"center", geom.Vec3{X: 0, Y: 0}, true},
		{"near corner inside", geom.Vec3{X: 4.9, Y: 4.9}, true},
		{"outside x", geom.Vec3{X: 5.1, Y: 0}, false},
		{"outside y", geom.Vec3{X: 0, Y: -5.1}, false},
		{"far away", geom.Vec3{X: 100, Y: 100}, false},
		{"z ignored", geom.Vec3{X: 1, Y: 1, Z: 50}, true},
	}
	for _, tc := range cases {
		if got := poly.Contains(tc.p); got != tc.want {
			t.Errorf("%s: Contains(%+v) = %v, want %v", tc.name, tc.p, got, tc.want)
		}
	}
}

func TestPolygonContainsConcave(t *testing.T) {
	// L-shape: the notch at the top right is outside.
	poly := Polygon{
		{X: 0, Y: 0},
		{X: 10, Y: 0},
		{X: 10, Y: 5},
		{X: 5, Y: 5},
		{X: 5, Y: 10},
		{X: 0, Y: 10},
	}
	if !poly.Contains(geom.Vec3{X: 2, Y: 8}) {
		t.Error("point in the vertical arm should be inside")
	}
	if !poly.Contains(geom.Vec3{X: 8, Y: 2}) {
		t.Error("point in the horizontal arm should be inside")
	}
	if poly.Contains(geom.Vec3{X: 8, Y: 8}) {
		t.Error("point in the notch should be outside")
	}
}

func TestPolygonDegenerate(t *testing.T) {
	if (Polygon{}).Contains(geom.Vec3{}) {
		t.Error("empty polygon contains nothing")
	}
	if (Polygon{{X: 1, Y: 1}, {X: 2, Y: 2}}).Contains(geom.Vec3{X: 1.5, Y: 1.5}) {
		t.Error("two-vertex polygon contains nothing")
	}
}

func TestRoadBoundaryAsPolygon(t *testing.T) {
	// Straight road: left edge at y=2, right edge at y=-2, x in [0,10].
	b := RoadBoundary{
		Left:  []geom.Vec3{{X: 0, Y: 2}, {X: 10, Y: 2}},
		Right: []geom.Vec3{{X: 0, Y: -2}, {X: 10, Y: -2}},
	}
	poly := b.AsPolygon()
	if len(poly) != 4 {
		t.Fatalf("expected 4 vertices, got %d", len(poly))
	}
	if !poly.Contains(geom.Vec3{X: 5, Y: 0}) {
		t.Error("road centre should be inside the boundary region")
	}
	if poly.Contains(geom.Vec3{X: 5, Y: 3}) {
		t.Error("point beyond the left edge should be outside")
	}
	if poly.Contains(geom.Vec3{X: -1, Y: 0}) {
		t.Error("point before the segment start should be outside")
	}
}

func TestRegionsContains(t *testing.T) {
	regions := &Regions{
		RoadPolygons:     []Polygon{square(0, 0, 5)},
		JunctionPolygons: []Polygon{square(20, 20, 3)},
		RoadBoundaries: []RoadBoundary{{
			Left:  []geom.Vec3{{X: 40, Y: 1}, {X: 50, Y: 1}},
			Right: []geom.Vec3{{X: 40, Y: -1}, {X: 50, Y: -1}},
		}},
	}

	cases := []struct {
		name string
		p    geom.Vec3
		want bool
	}{
		{"in road polygon", geom.Vec3{X: 1, Y: -1}, true},
		{"in junction", geom.Vec3{X: 21, Y: 19}, true},
		{"in boundary region", geom.Vec3{X: 45, Y: 0}, true},
		{"between regions", geom.Vec3{X: 12, Y: 12}, false},
		{"nowhere near", geom.Vec3{X: -100, Y: 0}, false},
	}
	for _, tc := range cases {
		if got := regions.Contains(tc.p); got != tc.want {
			t.Errorf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestRegionsEmpty(t *testing.T) {
	var nilRegions *Regions
	if !nilRegions.Empty() {
		t.Error("nil regions should be empty")
	}
	if nilRegions.Contains(geom.Vec3{}) {
		t.Error("nil regions contain nothing")
	}
	if !(&Regions{}).Empty() {
		t.Error("zero-value regions should be empty")
	}
	withRoad := &Regions{RoadPolygons: []Polygon{square(0, 0, 1)}}
	if withRoad.Empty() {
		t.Error("regions with a road polygon are not empty")
	}
	withBoundary := &Regions{RoadBoundaries: []RoadBoundary{{}}}
	if withBoundary.Empty() {
		t.Error("regions with a boundary entry are not empty")
	}
}
