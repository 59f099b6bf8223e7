package scenario

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/meridianav/fusiontrack/internal/track"
)

// assocGateMetres bounds truth-to-track association distance. Beyond it a
// track does not count as covering a target.
const assocGateMetres = 5.0

// Metrics summarizes tracking quality over one scenario run.
type Metrics struct {
	Steps int
	// Associations is the number of truth-to-track pairings scored.
	Associations int
	// Misses counts truth targets left without an associated track,
	// summed over steps.
	Misses int
	// IDSwitches counts steps where a target's associated track identity
	// changed from the previous association.
	IDSwitches int
	// Fragmentation is the mean number of distinct track identities that
	// served each covered target. 1.0 is ideal.
	Fragmentation float64
	// PositionRMSE and PositionP95 are in metres over all associations.
	PositionRMSE float64
	PositionP95  float64
	// PredictedRatio is the fraction of emitted foreground objects that
	// were pure predictions rather than measurement-backed states.
	PredictedRatio float64
	// TrackCountAccuracy is the fraction of steps whose emitted
	// foreground count equals the true target count.
	TrackCountAccuracy float64
}

// Evaluate scores one run's outputs against the scenario truth. outputs
// must be aligned with sc.Steps; missing trailing steps score as misses.
func Evaluate(sc *Scenario, outputs [][]track.TrackedObject) Metrics {
	m := Metrics{Steps: len(sc.Steps)}

	lastID := make(map[int]string)
	idsSeen := make(map[int]map[string]bool)

	var dists []float64
	var emitted, predicted, exactCounts int

	for i, step := range sc.Steps {
		var out []track.TrackedObject
		if i < len(outputs) {
			out = outputs[i]
		}

		var fg []track.TrackedObject
		for _, obj := range out {
			if obj.Background {
				continue
			}
			fg = append(fg, obj)
			emitted++
			if obj.Predicted {
				predicted++
			}
		}
		if len(fg) == len(step.Truth) {
			exactCounts++
		}

		pairs := associate(step.Truth, fg)
		m.Associations += len(pairs)
		m.Misses += len(step.Truth) - len(pairs)

		for _, pr := range pairs {
			dists = append(dists, pr.dist)

			target := step.Truth[pr.truth].Target
			id := fg[pr.obj].TrackID
			if prev, ok := lastID[target]; ok && prev != id {
				m.IDSwitches++
			}
			lastID[target] = id
			if idsSeen[target] == nil {
				idsSeen[target] = make(map[string]bool)
			}
			idsSeen[target][id] = true
		}
	}

	if len(idsSeen) > 0 {
		total := 0
		for _, ids := range idsSeen {
			total += len(ids)
		}
		m.Fragmentation = float64(total) / float64(len(idsSeen))
	}
	if len(dists) > 0 {
		sq := make([]float64, len(dists))
		for i, d := range dists {
			sq[i] = d * d
		}
		m.PositionRMSE = math.Sqrt(stat.Mean(sq, nil))
		sort.Float64s(dists)
		m.PositionP95 = stat.Quantile(0.95, stat.Empirical, dists, nil)
	}
	if emitted > 0 {
		m.PredictedRatio = float64(predicted) / float64(emitted)
	}
	if m.Steps > 0 {
		m.TrackCountAccuracy = float64(exactCounts) / float64(m.Steps)
	}
	return m
}

// pairing couples one truth entry with one emitted object.
type pairing struct {
	truth int
	obj   int
	dist  float64
}

// associate greedily pairs truth targets with emitted objects by
// increasing distance, one use each, inside the association gate. Ties
// break on truth index then object index so evaluation is deterministic.
func associate(truth []TruthObject, objs []track.TrackedObject) []pairing {
	var cands []pairing
	for ti, tr := range truth {
		for oi := range objs {
			d := tr.Position.Dist(objs[oi].Position)
			if d > assocGateMetres {
				continue
			}
			cands = append(cands, pairing{truth: ti, obj: oi, dist: d})
		}
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].dist != cands[j].dist {
			return cands[i].dist < cands[j].dist
		}
		if cands[i].truth != cands[j].truth {
			return cands[i].truth < cands[j].truth
		}
		return cands[i].obj < cands[j].obj
	})

	usedTruth := make([]bool, len(truth))
	usedObj := make([]bool, len(objs))
	var out []pairing
	for _, c := range cands {
		if usedTruth[c.truth] || usedObj[c.obj] {
			continue
		}
		usedTruth[c.truth] = true
		usedObj[c.obj] = true
		out = append(out, c)
	}
	return out
}
