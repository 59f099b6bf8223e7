package match

import (
	"math"

	"github.com/meridianav/fusiontrack/internal/track"
)

// buildCostMatrix fills cost[i][j] for track i against observation j. The
// base cost is the Euclidean distance between the track's filtered position
// and the observation centre; pairs beyond maxDistance are forbidden, as is
// any non-finite distance (a corrupted track must not poison the solver).
// When both sides carry a shape descriptor, its L1 distance scaled by
// histogramWeight is added, discriminating between equidistant candidates.
func buildCostMatrix(tracks []*track.TrackData, observations []*track.Observation, maxDistance, histogramWeight float64) [][]float64 {
	cost := make([][]float64, len(tracks))
	for i, tr := range tracks {
		row := make([]float64, len(observations))
		for j, obs := range observations {
			d := tr.Motion.Position.Dist(obs.Center)
			if math.IsNaN(d) || d > maxDistance {
				row[j] = matchInf
				continue
			}
			row[j] = d + histogramWeight*track.HistogramDistance(tr.Shape.Histogram, obs.Histogram)
		}
		cost[i] = row
	}
	return cost
}
