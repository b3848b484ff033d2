package slotmap

import (
	"sync/atomic"
)

// MaintenanceLock is a spin-based reader/writer gate for enforcing the
// quiescence contract of Erase and Clear.
//
// Lookups and inserts take the shared side with RLock, which costs one CAS
// and never waits on other readers. Maintenance takes the exclusive side
// with Lock, which first bars new readers and then waits for the ones in
// flight to drain, so a steady stream of readers cannot starve it.
//
// Example:
//
//	var gate MaintenanceLock
//	gate.RLock()
//	c, _ := counters.Inc(tid)
//	gate.RUnlock()
//	...
//	gate.Lock()
//	counters.Reset()
//	gate.Unlock()
//
// Size: 4 bytes (plus padding).
type MaintenanceLock struct {
	_     noCopy
	state atomic.Uint32
}

const (
	rwWriteMask = 1
	rwReadShift = 1
	rwReadUnit  = 1 << rwReadShift
)

// Lock acquires the exclusive side.
func (l *MaintenanceLock) Lock() {
	var spins int
	for {
		s := l.state.Load()
		if s&rwWriteMask == 0 && l.state.CompareAndSwap(s, s|rwWriteMask) {
			break
		}
		delay(&spins)
	}
	for l.state.Load() != rwWriteMask {
		delay(&spins)
	}
}

// Unlock releases the exclusive side.
func (l *MaintenanceLock) Unlock() {
	l.state.Store(0)
}

// RLock acquires the shared side.
func (l *MaintenanceLock) RLock() {
	var spins int
	for {
		s := l.state.Load()
		if s&rwWriteMask == 0 && l.state.CompareAndSwap(s, s+rwReadUnit) {
			return
		}
		delay(&spins)
	}
}

// RUnlock releases the shared side.
func (l *MaintenanceLock) RUnlock() {
	l.state.Add(^uint32(rwReadUnit - 1))
}
