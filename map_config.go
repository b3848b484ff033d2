package slotmap

import (
	"unsafe"
)

// ============================================================================
// Configuration
// ============================================================================

// MapConfig defines configurable options for InsertMap initialization.
// The slot arena is sized once from these parameters; nothing here can
// be changed after construction.
type MapConfig struct {
	// keyHash specifies a custom hash function for keys.
	// If nil, the built-in hash function will be used.
	keyHash HashFunc

	// loadFactor is the maximum expected occupancy of the arena.
	// Zero or negative selects defaultLoadFactor; values above 1 are
	// clamped to 1.
	loadFactor float64

	// maxTries bounds the number of slots probed by a single insert
	// before it gives up with ErrAllocationFailed.
	// Zero or negative selects defaultMaxAllocationTries.
	maxTries int

	// release is invoked on a value right before its slot storage is
	// reclaimed: on Erase, on Clear, and on the losing side of a
	// concurrent FindOrConstruct.
	release func(ptr unsafe.Pointer)

	// randIntN picks a uniformly random slot in [0, n) once the
	// sequential probes near the home bucket are exhausted.
	randIntN func(n int) int
}

// WithLoadFactor sets the maximum load factor used to derive the slot
// count from the requested size. Values greater than 1 are clamped to 1;
// as the real load approaches 1, insert performance degrades.
func WithLoadFactor(loadFactor float64) func(*MapConfig) {
	return func(c *MapConfig) {
		c.loadFactor = loadFactor
	}
}

// WithMaxAllocationTries bounds how many slots an insert may probe
// before reporting ErrAllocationFailed. The default is 1000.
func WithMaxAllocationTries(tries int) func(*MapConfig) {
	return func(c *MapConfig) {
		c.maxTries = tries
	}
}

// WithRelease registers a hook that runs on a value right before its
// storage is reclaimed. Together with the initializer passed to
// FindOrConstruct it gives every value a constructed/released pair:
//
//   - Erase and Clear release the values they remove.
//   - A FindOrConstruct that loses the publish race releases its own
//     speculative value before returning the winner.
//
// The hook must not call back into the map.
func WithRelease[V any](release func(v *V)) func(*MapConfig) {
	return func(c *MapConfig) {
		if release != nil {
			c.release = func(ptr unsafe.Pointer) {
				release((*V)(ptr))
			}
		}
	}
}

// WithRandSource replaces the random slot picker used after the
// sequential probes fail. fn must return a value in [0, n).
// Mostly useful to make allocation deterministic in tests.
func WithRandSource(fn func(n int) int) func(*MapConfig) {
	return func(c *MapConfig) {
		c.randIntN = fn
	}
}

// WithKeyHasher sets a custom key hashing function for the map.
//
// Usage:
//
//	m, err := New[string, int](1024, WithKeyHasher(func(key string, seed uintptr) uintptr {
//		return uintptr(len(key)) ^ seed
//	}))
func WithKeyHasher[K comparable](
	keyHash func(key K, seed uintptr) uintptr,
) func(*MapConfig) {
	return func(c *MapConfig) {
		if keyHash != nil {
			c.keyHash = func(pointer unsafe.Pointer, u uintptr) uintptr {
				return keyHash(*(*K)(pointer), u)
			}
		}
	}
}

// WithKeyHasherUnsafe sets a low-level unsafe key hashing function.
// The pointer points to the key data in memory; pass nil to use the
// default built-in hasher.
//
// Notes:
//   - You must correctly cast unsafe.Pointer to the actual key type
//   - Incorrect pointer operations will cause crashes or memory corruption
func WithKeyHasherUnsafe(hs HashFunc) func(*MapConfig) {
	return func(c *MapConfig) {
		c.keyHash = hs
	}
}

// IHashFunc defines a custom hash function interface for key types.
// Key types implementing this interface can provide their own hash
// computation, serving as an alternative to WithKeyHasher.
//
// This interface is automatically detected during construction and
// takes precedence over the default built-in hasher but is overridden by
// explicit WithKeyHasher configuration.
//
// Usage:
//
//	type CallSite struct {
//		File string
//		Line int
//	}
//
//	func (c *CallSite) HashFunc(seed uintptr) uintptr {
//		return uintptr(c.Line) ^ seed
//	}
type IHashFunc interface {
	HashFunc(seed uintptr) uintptr
}

func parseKeyInterface[K comparable]() (keyHash HashFunc) {
	var k *K
	if _, ok := any(k).(IHashFunc); ok {
		keyHash = func(ptr unsafe.Pointer, seed uintptr) uintptr {
			return any((*K)(ptr)).(IHashFunc).HashFunc(seed)
		}
	}
	return
}

func (c *MapConfig) withDefaults() {
	if c.loadFactor <= 0 {
		c.loadFactor = defaultLoadFactor
	} else if c.loadFactor > 1 {
		c.loadFactor = 1
	}
	if c.maxTries <= 0 {
		c.maxTries = defaultMaxAllocationTries
	}
}
