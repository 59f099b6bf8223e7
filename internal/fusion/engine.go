// Package fusion orchestrates the per-frame tracking pipeline: detections
// arrive from spatially registered sensors, get re-based into a local
// working frame, associate against the persistent track sets, advance the
// motion filter on authoritative cycles, and leave as a fused
// tracked-object list in the world frame.
package fusion

import (
	"fmt"
	"time"

	"github.com/meridianav/fusiontrack/internal/config"
	"github.com/meridianav/fusiontrack/internal/geom"
	"github.com/meridianav/fusiontrack/internal/match"
	"github.com/meridianav/fusiontrack/internal/motion"
	"github.com/meridianav/fusiontrack/internal/sensor"
	"github.com/meridianav/fusiontrack/internal/track"
)

// Pools bundles the shared allocators. Several engines (one per sweep
// permutation) may draw from one Pools value concurrently.
type Pools struct {
	Observations *track.ObservationPool
	Tracks       *track.TrackDataPool
	Objects      *track.ObjectPool
}

// NewPools returns a fresh set of empty pools.
func NewPools() *Pools {
	return &Pools{
		Observations: track.NewObservationPool(),
		Tracks:       track.NewTrackDataPool(),
		Objects:      track.NewObjectPool(),
	}
}

// Engine runs the per-frame pipeline. One Engine is single-threaded: a
// Track call owns the whole engine until it returns, and the caller
// serializes calls. Multiple engines may coexist (they share nothing but
// pools, which lock internally).
type Engine struct {
	matcher match.Matcher
	tracker motion.Tracker
	sensors *sensor.Registry
	pools   *Pools

	// Config flags, fixed at construction.
	useHistogram      bool
	histogramBins     int
	outputPredicted   bool
	retention         time.Duration
	useFrameTimestamp bool
	zeroOutsideMap    bool

	// Partition lists. A track lives in exactly one of these from spawn
	// to eviction.
	fgTracks []*track.TrackData
	bgTracks []*track.TrackData

	// Per-frame scratch, cleared before Track returns. retained flags mark
	// observations cached on a track (owned by the track until drained).
	fgObs      []*track.Observation
	bgObs      []*track.Observation
	fgRetained []bool
	bgRetained []bool

	// offset re-bases world coordinates into the local working frame. It
	// is recomputed on every trackless frame and frozen forever once the
	// first track spawns, so all track state shares one consistent origin.
	offset       geom.Vec3
	offsetFrozen bool

	counters Stats
}

// NewEngine builds an engine with its own private pools.
func NewEngine(cfg *config.TuningConfig) (*Engine, error) {
	return NewEngineWithPools(cfg, NewPools())
}

// NewEngineWithPools builds an engine drawing from shared pools. The
// matcher and tracker are selected through their registries; an unknown
// tag is a configuration error.
func NewEngineWithPools(cfg *config.TuningConfig, pools *Pools) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil tuning config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tuning config: %w", err)
	}

	matcher, err := match.NewFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("building matcher: %w", err)
	}
	tracker, err := motion.NewFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("building tracker: %w", err)
	}
	if pools == nil {
		pools = NewPools()
	}

	return &Engine{
		matcher:           matcher,
		tracker:           tracker,
		sensors:           sensor.NewRegistry(cfg.GetMainSensors()),
		pools:             pools,
		useHistogram:      cfg.GetUseHistogramForMatch(),
		histogramBins:     cfg.GetHistogramBinSize(),
		outputPredicted:   cfg.GetOutputPredictObjects(),
		retention:         cfg.GetReservedInvisibleTime(),
		useFrameTimestamp: cfg.GetUseFrameTimestamp(),
		zeroOutsideMap:    cfg.GetZeroVelocityOutsideMap(),
	}, nil
}

// Sensors exposes the engine's sensor registry so callers can attach
// sensor metadata for diagnostics.
func (e *Engine) Sensors() *sensor.Registry {
	return e.sensors
}

// Track processes one frame to completion, mutating frame.Tracked in
// place. Non-authoritative frames update caches and spawn tracks but
// leave the output empty.
func (e *Engine) Track(frame *Frame) {
	if frame == nil {
		return
	}
	e.reclaimOutput(frame)

	if !frame.SensorToWorld.Valid() {
		Opsf("rejecting frame from %s at %d: sensor pose is not a rigid transform", frame.SensorName, frame.TimestampNanos)
		return
	}

	e.counters.FramesProcessed++

	if e.useFrameTimestamp {
		for _, det := range frame.Detections {
			det.LatestTrackedTimeNanos = frame.TimestampNanos
		}
	}

	// The local working frame originates at the sensor's first position:
	// recompute the offset on every trackless frame, freeze it for good
	// once the first track exists so stored track state stays coherent.
	if !e.offsetFrozen && len(e.fgTracks) == 0 && len(e.bgTracks) == 0 {
		e.offset = frame.SensorToWorld.Translation().Neg()
		Tracef("offset set to (%.2f, %.2f, %.2f)", e.offset.X, e.offset.Y, e.offset.Z)
	}
	sensorToLocal := frame.SensorToWorld.Pretranslate(e.offset)

	e.ingest(frame, sensorToLocal)

	e.fgTracks = e.associate(e.fgTracks, e.fgObs, e.fgRetained, false)
	e.bgTracks = e.associate(e.bgTracks, e.bgObs, e.bgRetained, true)
	if !e.offsetFrozen && len(e.fgTracks)+len(e.bgTracks) > 0 {
		e.offsetFrozen = true
	}

	authoritative := e.sensors.IsMainSensor(frame.SensorName)
	if authoritative {
		e.counters.AuthoritativeFrames++
		e.advanceTracks(frame.TimestampNanos)
		e.collect(frame)
	}

	e.releaseFrameObservations()

	e.fgTracks = e.evictStale(e.fgTracks, frame.TimestampNanos)
	e.bgTracks = e.evictStale(e.bgTracks, frame.TimestampNanos)

	e.zeroOutsideMapVelocities(frame)

	Diagf("frame sensor=%s authoritative=%t ts=%d tracks=%d/%d out=%d",
		frame.SensorName, authoritative, frame.TimestampNanos,
		len(e.fgTracks), len(e.bgTracks), len(frame.Tracked))
}

// Reset clears both partitions, the offset and all scratch, returning
// every pooled record. The engine is then equivalent to a freshly
// constructed one with the same config.
func (e *Engine) Reset() {
	for _, list := range [][]*track.TrackData{e.fgTracks, e.bgTracks} {
		for _, td := range list {
			for _, o := range td.DrainPending() {
				e.pools.Observations.Put(o)
			}
			e.pools.Tracks.Put(td)
		}
	}
	e.fgTracks = e.fgTracks[:0]
	e.bgTracks = e.bgTracks[:0]

	for _, o := range e.fgObs {
		e.pools.Observations.Put(o)
	}
	for _, o := range e.bgObs {
		e.pools.Observations.Put(o)
	}
	e.fgObs = e.fgObs[:0]
	e.bgObs = e.bgObs[:0]

	e.offset = geom.Vec3{}
	e.offsetFrozen = false
	e.counters = Stats{}
}

// ReleaseOutput returns the frame's output objects to the pool and clears
// the list. Track does this implicitly at the start of the next call on
// the same frame; callers finished with a frame call it once.
func (e *Engine) ReleaseOutput(frame *Frame) {
	e.reclaimOutput(frame)
}

func (e *Engine) reclaimOutput(frame *Frame) {
	for i, obj := range frame.Tracked {
		e.pools.Objects.Put(obj)
		frame.Tracked[i] = nil
	}
	frame.Tracked = frame.Tracked[:0]
}

// ingest re-bases each detection into the local frame and routes it to
// the matching partition. Foreground observations get a shape descriptor
// when histogram matching is on.
func (e *Engine) ingest(frame *Frame, sensorToLocal geom.Pose) {
	if len(frame.Detections) == 0 {
		e.fgRetained = resizeBools(e.fgRetained, 0)
		e.bgRetained = resizeBools(e.bgRetained, 0)
		return
	}

	batch := e.pools.Observations.BatchGet(len(frame.Detections))
	for i, det := range frame.Detections {
		obs := batch[i]
		obs.Attach(det, sensorToLocal, frame.SensorName)
		if det.Background {
			e.bgObs = append(e.bgObs, obs)
			e.counters.BackgroundObservations++
			continue
		}
		if e.useHistogram {
			obs.ComputeHistogram(e.histogramBins)
		}
		e.fgObs = append(e.fgObs, obs)
		e.counters.ForegroundObservations++
	}

	e.fgRetained = resizeBools(e.fgRetained, len(e.fgObs))
	e.bgRetained = resizeBools(e.bgRetained, len(e.bgObs))
}

// associate matches one partition's observations against its tracks.
// Matched observations move into the track's pending cache; unmatched
// observations spawn tracks, which also cache the spawning observation so
// the next authoritative drain folds it instead of predicting.
func (e *Engine) associate(tracks []*track.TrackData, obs []*track.Observation, retained []bool, background bool) []*track.TrackData {
	res := e.matcher.Match(tracks, obs)

	for _, a := range res.Assignments {
		tracks[a.TrackIdx].PushObservation(obs[a.ObsIdx])
		retained[a.ObsIdx] = true
	}
	e.counters.Matches += int64(len(res.Assignments))

	for _, oi := range res.UnassignedObservations {
		td := e.pools.Tracks.Get()
		td.ID = track.NewTrackID()
		td.Background = background
		e.tracker.InitializeTrack(td, obs[oi])
		td.PushObservation(obs[oi])
		retained[oi] = true
		tracks = append(tracks, td)
		e.counters.Spawns++
		Tracef("spawned %s background=%t at (%.2f, %.2f)", td.ID, background, obs[oi].Center.X, obs[oi].Center.Y)
	}

	return tracks
}

// advanceTracks runs the state-update dispatch on an authoritative frame:
// each track either folds its drained cache in timestamp order or takes a
// pure prediction step. Exactly once per track per authoritative frame.
func (e *Engine) advanceTracks(nowNanos int64) {
	for _, list := range [][]*track.TrackData{e.fgTracks, e.bgTracks} {
		for _, td := range list {
			drained := td.DrainPending()
			if len(drained) == 0 {
				e.tracker.UpdateWithoutObservation(td, nowNanos)
				continue
			}
			for _, o := range drained {
				e.tracker.UpdateWithObservation(td, o)
				e.pools.Observations.Put(o)
			}
		}
	}
}

// outputBudget converts the partition total and suppressed count into the
// number of emission-eligible objects. A suppressed count exceeding the
// total means the collection bookkeeping is corrupt; the frame's output
// must be abandoned rather than emitted.
func outputBudget(total, suppressed int) (int, bool) {
	if suppressed > total {
		return 0, false
	}
	return total - suppressed, true
}

// collect serializes the surviving tracks into frame.Tracked, foreground
// first. Predicted tracks are suppressed unless configured out; a track
// that fails to serialize is logged and its slot reused.
func (e *Engine) collect(frame *Frame) {
	total := len(e.fgTracks) + len(e.bgTracks)
	if total == 0 {
		return
	}

	slots := e.pools.Objects.BatchGet(total)
	cursor := 0
	suppressed := 0
	worldOffset := e.offset.Neg()

	for _, list := range [][]*track.TrackData{e.fgTracks, e.bgTracks} {
		for _, td := range list {
			if td.Predicted && !e.outputPredicted {
				suppressed++
				continue
			}
			if err := td.ToTrackedObject(worldOffset, frame.TimestampNanos, slots[cursor]); err != nil {
				Opsf("dropping track from output: %v", err)
				e.counters.SerializeFailures++
				continue
			}
			cursor++
		}
	}
	e.counters.PredictedSuppressed += int64(suppressed)

	if _, ok := outputBudget(total, suppressed); !ok {
		Opsf("suppressed %d of %d tracks: collection bookkeeping corrupt, dropping frame output", suppressed, total)
		e.counters.InvariantAborts++
		for _, s := range slots {
			e.pools.Objects.Put(s)
		}
		frame.Tracked = frame.Tracked[:0]
		return
	}

	frame.Tracked = append(frame.Tracked[:0], slots[:cursor]...)
	for i := cursor; i < len(slots); i++ {
		e.pools.Objects.Put(slots[i])
	}
}

// releaseFrameObservations returns this frame's unretained observations.
// Retained ones belong to a pending cache (and, on authoritative frames,
// were already returned by the drain).
func (e *Engine) releaseFrameObservations() {
	for i, o := range e.fgObs {
		if !e.fgRetained[i] {
			e.pools.Observations.Put(o)
		}
		e.fgObs[i] = nil
	}
	e.fgObs = e.fgObs[:0]

	for i, o := range e.bgObs {
		if !e.bgRetained[i] {
			e.pools.Observations.Put(o)
		}
		e.bgObs[i] = nil
	}
	e.bgObs = e.bgObs[:0]
}

// evictStale drops tracks not seen within the retention window using a
// forward write cursor: stable order, linear time, no allocation. Evicted
// records and any unclaimed cached observations return to their pools.
func (e *Engine) evictStale(list []*track.TrackData, nowNanos int64) []*track.TrackData {
	w := 0
	for _, td := range list {
		if td.Visible(e.retention, nowNanos) {
			list[w] = td
			w++
			continue
		}
		Tracef("evicting %s last_visible=%d", td.ID, td.LatestVisibleNanos)
		for _, o := range td.DrainPending() {
			e.pools.Observations.Put(o)
		}
		e.pools.Tracks.Put(td)
		e.counters.Evictions++
	}
	for i := w; i < len(list); i++ {
		list[i] = nil
	}
	return list[:w]
}

// zeroOutsideMapVelocities applies the map-based correction: objects
// positioned outside every mapped road region cannot actually be moving,
// so their velocity and acceleration are zeroed.
func (e *Engine) zeroOutsideMapVelocities(frame *Frame) {
	if !e.zeroOutsideMap || frame.Regions.Empty() {
		return
	}
	for _, obj := range frame.Tracked {
		if frame.Regions.Contains(obj.Position) {
			continue
		}
		if obj.Velocity.IsZero() && obj.Acceleration.IsZero() {
			continue
		}
		obj.Velocity = geom.Vec3{}
		obj.Acceleration = geom.Vec3{}
		e.counters.OutsideMapZeroed++
		Diagf("zeroed velocity for %s: outside mapped region", obj.TrackID)
	}
}

func resizeBools(b []bool, n int) []bool {
	if cap(b) < n {
		return make([]bool, n)
	}
	b = b[:n]
	for i := range b {
		b[i] = false
	}
	return b
}
