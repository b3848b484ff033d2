package slotmap

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotStarted is returned by Timings.End for a key with no open Begin.
var ErrNotStarted = errors.New("slotmap: timing not started")

// Timings accumulates elapsed time per classifier key.
//
// Begin and End calls for one key nest: only the outermost Begin records
// a start offset and only the matching outermost End adds to the total,
// so recursive regions are measured once. An End with no open Begin fails
// with ErrNotStarted and changes nothing.
//
// Offsets are measured on the monotonic clock from the moment the
// Timings was created, so they fit in the int64 Counter cells.
type Timings[K comparable] struct {
	origin time.Time
	depths *Counters[K]
	begins *Counters[K]
	costs  *Counters[K]
}

// NewTimings creates a Timings able to track maxKeys keys.
func NewTimings[K comparable](
	maxKeys int,
	options ...func(*MapConfig),
) (*Timings[K], error) {
	var maps [3]*Counters[K]
	for i := range maps {
		c, err := NewCounters[K](maxKeys, options...)
		if err != nil {
			return nil, err
		}
		maps[i] = c
	}
	return &Timings[K]{
		origin: time.Now(),
		depths: maps[0],
		begins: maps[1],
		costs:  maps[2],
	}, nil
}

// Now returns the current offset from the origin of t.
func (t *Timings[K]) Now() time.Duration {
	return time.Since(t.origin)
}

// Begin opens a region for key at the current time.
func (t *Timings[K]) Begin(key K) error {
	return t.BeginAt(key, t.Now())
}

// BeginAt opens a region for key at offset at. Nested Begins only
// deepen the region.
func (t *Timings[K]) BeginAt(key K, at time.Duration) error {
	begin, err := t.begins.Cell(key)
	if err != nil {
		return err
	}
	depth, err := t.depths.Cell(key)
	if err != nil {
		return err
	}
	if depth.Inc() == 1 {
		begin.Store(int64(at))
	}
	return nil
}

// End closes a region for key at the current time. See EndAt.
func (t *Timings[K]) End(key K) (time.Duration, error) {
	return t.EndAt(key, t.Now())
}

// EndAt closes a region for key at offset at. Closing the outermost
// region adds the time since its Begin to the total and returns it;
// closing a nested one returns zero.
func (t *Timings[K]) EndAt(key K, at time.Duration) (time.Duration, error) {
	depth, ok := t.depths.m.Load(key)
	if !ok {
		return 0, fmt.Errorf("%w: %v", ErrNotStarted, key)
	}
	for {
		d := depth.Load()
		if d <= 0 {
			return 0, fmt.Errorf("%w: %v", ErrNotStarted, key)
		}
		if !depth.CompareAndSwap(d, d-1) {
			continue
		}
		if d > 1 {
			return 0, nil
		}
		break
	}
	begin, _ := t.begins.Load(key)
	elapsed := at - time.Duration(begin)
	if _, err := t.costs.Add(key, int64(elapsed)); err != nil {
		return 0, err
	}
	return elapsed, nil
}

// Total returns the accumulated time for key.
func (t *Timings[K]) Total(key K) time.Duration {
	v, _ := t.costs.Load(key)
	return time.Duration(v)
}

// Range calls fn with the accumulated time of every key that has ended
// at least once.
func (t *Timings[K]) Range(fn func(key K, total time.Duration) bool) {
	t.costs.Range(func(key K, v int64) bool {
		return fn(key, time.Duration(v))
	})
}

// Reset drops all timings and restarts the origin. It is a maintenance
// operation with the same single-writer contract as InsertMap.Clear.
func (t *Timings[K]) Reset() {
	t.depths.Reset()
	t.begins.Reset()
	t.costs.Reset()
	t.origin = time.Now()
}
