package track

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ComputeHistogram fills the observation's shape descriptor from its
// detection's footprint polygon: per-axis (X then Y) distributions of the
// vertices across the footprint extent, binned into bins buckets each and
// normalized to sum to one per axis. Too few vertices or a degenerate
// extent leaves the descriptor nil; matching treats a missing descriptor
// as contributing no cost.
func (o *Observation) ComputeHistogram(bins int) {
	o.Histogram = nil
	if bins <= 0 || o.Detection == nil || len(o.Detection.Polygon) < 3 {
		return
	}

	poly := o.Detection.Polygon
	xs := make([]float64, len(poly))
	ys := make([]float64, len(poly))
	for i, p := range poly {
		xs[i] = p.X
		ys[i] = p.Y
	}

	hx := axisHistogram(xs, bins)
	hy := axisHistogram(ys, bins)
	if hx == nil || hy == nil {
		return
	}

	o.Histogram = append(hx, hy...)
}

// axisHistogram bins one coordinate axis into bins buckets over its own
// extent, normalized to a unit-sum distribution.
func axisHistogram(vals []float64, bins int) []float64 {
	min := floats.Min(vals)
	max := floats.Max(vals)
	extent := max - min
	if extent < 1e-9 {
		return nil
	}

	// Normalize into [0,1] and sort; the top divider sits just above 1 so
	// the maximum value lands in the last bucket.
	norm := make([]float64, len(vals))
	for i, v := range vals {
		norm[i] = (v - min) / extent
	}
	sort.Float64s(norm)

	dividers := make([]float64, bins+1)
	floats.Span(dividers, 0, 1+1e-9)

	counts := stat.Histogram(nil, dividers, norm, nil)
	total := floats.Sum(counts)
	if total > 0 {
		floats.Scale(1/total, counts)
	}
	return counts
}

// HistogramDistance returns the L1 distance between two shape
// descriptors. A missing or incomparable descriptor on either side
// contributes zero, so histogram matching degrades to pure distance
// rather than rejecting the pair.
func HistogramDistance(a, b []float64) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var sum float64
	for i := range a {
		sum += math.Abs(a[i] - b[i])
	}
	return sum
}
