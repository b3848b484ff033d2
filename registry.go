package slotmap

import (
	"github.com/llxisdsh/pb"
)

// Registry is an explicitly constructed set of named counter families,
// e.g. one family per instrumented call site keyed by goroutine or object
// id. It replaces a process-wide singleton: callers own its lifetime and
// pass it where needed.
//
// The number of families is open ended, so they are indexed by a
// resizable pb.MapOf; each family is a fixed-capacity Counters. Every
// accessor runs under the shared side of a MaintenanceLock and Reset under
// the exclusive side, which makes Reset safe to call while other
// goroutines keep counting. Families are never handed out, so no caller
// can reach a Counters behind the lock's back.
//
// The lock is not reentrant: callbacks passed to Range must not call
// other Registry methods, or they deadlock against a waiting Reset.
type Registry[K comparable] struct {
	_         noCopy
	gate      MaintenanceLock
	families  pb.MapOf[string, *Counters[K]]
	perFamily int
	options   []func(*MapConfig)
}

// NewRegistry creates a registry whose families each hold up to
// perFamily keys. The options apply to every family.
func NewRegistry[K comparable](
	perFamily int,
	options ...func(*MapConfig),
) (*Registry[K], error) {
	var cfg MapConfig
	for _, o := range options {
		o(&cfg)
	}
	cfg.withDefaults()
	if _, err := calcCapacity(perFamily, cfg.loadFactor); err != nil {
		return nil, err
	}
	return &Registry[K]{
		perFamily: perFamily,
		options:   options,
	}, nil
}

// family returns the family called name, creating it on first use.
// Callers must hold the gate.
func (r *Registry[K]) family(name string) *Counters[K] {
	c, _ := r.families.LoadOrStoreFn(name, func() *Counters[K] {
		// the size was validated by NewRegistry
		return &Counters[K]{m: MustNew[K, Counter](r.perFamily, r.options...)}
	})
	return c
}

// Add adds delta to key in the family called name and returns the new
// value.
func (r *Registry[K]) Add(name string, key K, delta int64) (int64, error) {
	r.gate.RLock()
	defer r.gate.RUnlock()
	return r.family(name).Add(key, delta)
}

// Inc increments key in the family called name.
func (r *Registry[K]) Inc(name string, key K) (int64, error) {
	return r.Add(name, key, 1)
}

// Load returns the value of key in the family called name.
func (r *Registry[K]) Load(name string, key K) (int64, bool) {
	r.gate.RLock()
	defer r.gate.RUnlock()
	c, ok := r.families.Load(name)
	if !ok {
		return 0, false
	}
	return c.Load(key)
}

// Sum returns the total of the family called name.
func (r *Registry[K]) Sum(name string) int64 {
	r.gate.RLock()
	defer r.gate.RUnlock()
	c, ok := r.families.Load(name)
	if !ok {
		return 0
	}
	return c.Sum()
}

// Len returns the number of keys in the family called name.
func (r *Registry[K]) Len(name string) int {
	r.gate.RLock()
	defer r.gate.RUnlock()
	c, ok := r.families.Load(name)
	if !ok {
		return 0
	}
	return c.Len()
}

// Range calls fn for every counter of every family.
// fn must not call back into r.
func (r *Registry[K]) Range(fn func(name string, key K, value int64) bool) {
	r.gate.RLock()
	defer r.gate.RUnlock()
	r.families.Range(func(name string, c *Counters[K]) bool {
		more := true
		c.Range(func(key K, value int64) bool {
			more = fn(name, key, value)
			return more
		})
		return more
	})
}

// Families returns the number of families.
func (r *Registry[K]) Families() int {
	return r.families.Size()
}

// Reset clears every family. The families themselves are kept.
func (r *Registry[K]) Reset() {
	r.gate.Lock()
	defer r.gate.Unlock()
	r.families.Range(func(_ string, c *Counters[K]) bool {
		c.Reset()
		return true
	})
}
