package track

import "sync"

// ObservationPool recycles Observation values across frames. Engines borrow
// one observation per input detection and return every observation that was
// not retained by a pending cache before the frame ends.
//
// The pool is a mutex-guarded free list rather than a sync.Pool: observations
// are borrowed in bursts (one batch per frame) and the free list keeps the
// working set stable instead of letting the GC drain it between frames.
type ObservationPool struct {
	mu   sync.Mutex
	free []*Observation
}

// NewObservationPool returns an empty pool. The free list grows on demand.
func NewObservationPool() *ObservationPool {
	return &ObservationPool{}
}

// Get returns a zeroed observation, reusing a freed one when available.
func (p *ObservationPool) Get() *Observation {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n := len(p.free); n > 0 {
		o := p.free[n-1]
		p.free[n-1] = nil
		p.free = p.free[:n-1]
		return o
	}
	return &Observation{}
}

// BatchGet returns n zeroed observations under a single lock acquisition.
func (p *ObservationPool) BatchGet(n int) []*Observation {
	if n <= 0 {
		return nil
	}
	out := make([]*Observation, n)
	p.mu.Lock()
	avail := len(p.free)
	if avail > n {
		avail = n
	}
	for i := 0; i < avail; i++ {
		out[i] = p.free[len(p.free)-1]
		p.free[len(p.free)-1] = nil
		p.free = p.free[:len(p.free)-1]
	}
	p.mu.Unlock()
	for i := avail; i < n; i++ {
		out[i] = &Observation{}
	}
	return out
}

// Put resets the observation and returns it to the free list. Nil is ignored.
func (p *ObservationPool) Put(o *Observation) {
	if o == nil {
		return
	}
	o.reset()
	p.mu.Lock()
	p.free = append(p.free, o)
	p.mu.Unlock()
}

// TrackDataPool recycles TrackData values. A track borrows its state record
// at spawn and returns it at eviction, so the free list size tracks churn
// rather than the live track count.
type TrackDataPool struct {
	mu   sync.Mutex
	free []*TrackData
}

// NewTrackDataPool returns an empty pool.
func NewTrackDataPool() *TrackDataPool {
	return &TrackDataPool{}
}

// Get returns a zeroed track record. The record carries no ID; the caller
// assigns one with NewTrackID.
func (p *TrackDataPool) Get() *TrackData {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n := len(p.free); n > 0 {
		td := p.free[n-1]
		p.free[n-1] = nil
		p.free = p.free[:n-1]
		return td
	}
	return &TrackData{}
}

// BatchGet returns n zeroed track records under a single lock acquisition.
func (p *TrackDataPool) BatchGet(n int) []*TrackData {
	if n <= 0 {
		return nil
	}
	out := make([]*TrackData, n)
	p.mu.Lock()
	avail := len(p.free)
	if avail > n {
		avail = n
	}
	for i := 0; i < avail; i++ {
		out[i] = p.free[len(p.free)-1]
		p.free[len(p.free)-1] = nil
		p.free = p.free[:len(p.free)-1]
	}
	p.mu.Unlock()
	for i := avail; i < n; i++ {
		out[i] = &TrackData{}
	}
	return out
}

// Put resets the record, including any unclaimed pending observations, and
// returns it to the free list. Pending observations are NOT returned to their
// own pool here; callers drain the cache before eviction.
func (p *TrackDataPool) Put(td *TrackData) {
	if td == nil {
		return
	}
	td.reset()
	p.mu.Lock()
	p.free = append(p.free, td)
	p.mu.Unlock()
}

// ObjectPool recycles TrackedObject output records. Result slices hand
// objects to the caller; the caller returns them once consumed.
type ObjectPool struct {
	mu   sync.Mutex
	free []*TrackedObject
}

// NewObjectPool returns an empty pool.
func NewObjectPool() *ObjectPool {
	return &ObjectPool{}
}

// Get returns a zeroed output record.
func (p *ObjectPool) Get() *TrackedObject {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n := len(p.free); n > 0 {
		obj := p.free[n-1]
		p.free[n-1] = nil
		p.free = p.free[:n-1]
		return obj
	}
	return &TrackedObject{}
}

// BatchGet returns n zeroed output records under a single lock acquisition.
func (p *ObjectPool) BatchGet(n int) []*TrackedObject {
	if n <= 0 {
		return nil
	}
	out := make([]*TrackedObject, n)
	p.mu.Lock()
	avail := len(p.free)
	if avail > n {
		avail = n
	}
	for i := 0; i < avail; i++ {
		out[i] = p.free[len(p.free)-1]
		p.free[len(p.free)-1] = nil
		p.free = p.free[:len(p.free)-1]
	}
	p.mu.Unlock()
	for i := avail; i < n; i++ {
		out[i] = &TrackedObject{}
	}
	return out
}

// Put resets the object and returns it to the free list. Nil is ignored.
func (p *ObjectPool) Put(obj *TrackedObject) {
	if obj == nil {
		return
	}
	obj.reset()
	p.mu.Lock()
	p.free = append(p.free, obj)
	p.mu.Unlock()
}
