package slotmap

import (
	"hash/maphash"
	"math/bits"
	"reflect"
	"runtime"
	"time"
	"unsafe"

	"github.com/zeebo/xxh3"

	"github.com/llxisdsh/slotmap/internal/opt"
)

// ============================================================================
// Private Constants
// ============================================================================

// cacheLineSize is the size of a cache line in bytes.
const cacheLineSize = opt.CacheLineSize_

const (
	// stateBits is the number of low bits of headAndState holding the slot
	// state; the remaining bits hold a slot index.
	stateBits = 2
	stateMask = uint32(1)<<stateBits - 1

	// maxCapacity is the largest slot count whose indexes still fit in a
	// uint32 after reserving stateBits.
	maxCapacity = 1 << (32 - stateBits)
)

const (
	// defaultLoadFactor: slots = maxSize/loadFactor + capacitySlack
	defaultLoadFactor = 0.8
	// capacitySlack: extra slots added on top of maxSize/loadFactor
	capacitySlack = 128
	// bucketSpread: home buckets are drawn from a power of two at least
	// bucketSpread times the slot count, then folded back
	bucketSpread = 4
	// defaultMaxAllocationTries: probes per insert before giving up
	defaultMaxAllocationTries = 1000
	// sequentialProbes: slots tried next to the home bucket before
	// falling back to random picks
	sequentialProbes = 8
	// minSlotsPerCPU: threshold for parallel Clear
	minSlotsPerCPU = 1 << 14
)

const (
	intSize = 32 << (^uint(0) >> 63) // 32 or 64
)

// ============================================================================
// Utility Functions
// ============================================================================

// calcCapacity derives the slot count for a map expected to hold maxSize
// entries at the given load factor. It fails when the result cannot be
// indexed with stateBits reserved.
func calcCapacity(maxSize int, loadFactor float64) (int, error) {
	if maxSize < 0 {
		return 0, capacityError(maxSize)
	}
	var capacity int
	if c := float64(maxSize)/loadFactor + capacitySlack; c > maxCapacity {
		capacity = maxCapacity + 1
	} else {
		capacity = int(c)
	}
	if capacity > maxCapacity && maxSize < maxCapacity {
		// we'll do our best
		capacity = maxCapacity
	}
	if capacity < maxSize || capacity > maxCapacity {
		return 0, capacityError(maxSize)
	}
	return capacity, nil
}

// calcBucketMask returns the mask applied to hashes before they are
// folded into [0, capacity).
//
//go:nosplit
func calcBucketMask(capacity int) uintptr {
	return uintptr(nextPowOf2(uint64(capacity)*bucketSpread) - 1)
}

// calcParallelism calculates the number of goroutines for parallel processing.
//
// Parameters:
//   - items: Number of items to process.
//   - threshold: Minimum threshold to enable parallel processing.
//   - number of available CPU cores
//
// Returns:
//   - chunkSz: Number of items processed per goroutine
//   - chunks: Suggested degree of parallelism (number of goroutines).
//
//go:nosplit
func calcParallelism(items, threshold, cpus int) (chunkSz, chunks int) {
	// If the items are too small, use single-threaded processing.
	if items <= threshold {
		return items, 1
	}

	chunks = max(min(items/threshold, cpus), 1)

	chunkSz = (items + chunks - 1) / chunks

	return chunkSz, chunks
}

// calcSizeLen computes the number of size stripes for the arena
// return value must be a power of 2
//
//go:nosplit
func calcSizeLen(capacity, cpus int) int {
	return int(nextPowOf2(uint64(min(cpus, capacity>>10))))
}

// nextPowOf2 calculates the smallest power of 2 that is greater than or equal
// to n.
//
//go:nosplit
func nextPowOf2(n uint64) uint64 {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len64(n-1)
}

// noescape hides a pointer from escape analysis. noescape is
// the identity function, but escape analysis doesn't think the
// output depends on the input.  noescape is inlined and currently
// compiles down to zero instructions.
// USE CAREFULLY!
//
//go:nosplit
//go:nocheckptr
func noescape(p unsafe.Pointer) unsafe.Pointer {
	x := uintptr(p)
	//nolint:all
	//goland:noinspection ALL
	return unsafe.Pointer(x ^ 0)
}

// ============================================================================
// Locker Utilities
// ============================================================================

// noCopy may be added to structs which must not be copied
// after the first use.
//
// See https://golang.org/issues/8005#issuecomment-190753527
// for details.
//
// Note that it must not be embedded, due to the Lock and Unlock methods.
type noCopy struct{}

// Lock is a no-op used by -copylocks checker from `go vet`.
func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

func trySpin(spins *int) bool {
	if runtime_canSpin(*spins) {
		*spins++
		runtime_doSpin()
		return true
	}
	return false
}

func delay(spins *int) {
	if trySpin(spins) {
		return
	}
	*spins = 0
	// maintenance waits are rare; sleep instead of burning the CPU
	time.Sleep(500 * time.Microsecond)
}

// nolint:all
//
//go:linkname runtime_canSpin sync.runtime_canSpin
//goland:noinspection ALL
func runtime_canSpin(i int) bool

// nolint:all
//
//go:linkname runtime_doSpin sync.runtime_doSpin
//goland:noinspection ALL
func runtime_doSpin()

// ============================================================================
// Hash Utilities
// ============================================================================

// HashFunc is the function to hash a value of type K.
type HashFunc func(ptr unsafe.Pointer, seed uintptr) uintptr

// defaultHasher picks the hash function for K.
//
// Integer keys hash to themselves, so dense identifiers such as thread or
// call-site ids land in neighboring home buckets. Strings use xxh3;
// everything else goes through hash/maphash.
func defaultHasher[K comparable]() HashFunc {
	switch reflect.TypeFor[K]().Kind() {
	case reflect.Int, reflect.Uint, reflect.Uintptr:
		return identityWord
	case reflect.Int64, reflect.Uint64:
		if intSize == 64 {
			return identity64
		}
		return fold64
	case reflect.Int32, reflect.Uint32:
		return identity32
	case reflect.Int16, reflect.Uint16:
		return identity16
	case reflect.Int8, reflect.Uint8:
		return identity8
	case reflect.String:
		return hashString
	default:
		return comparableHasher[K]()
	}
}

//go:nosplit
func identityWord(ptr unsafe.Pointer, _ uintptr) uintptr {
	return *(*uintptr)(ptr)
}

//go:nosplit
func identity64(ptr unsafe.Pointer, _ uintptr) uintptr {
	return uintptr(*(*uint64)(ptr))
}

// fold64 mixes both halves of a 64-bit key into a 32-bit word.
//
//go:nosplit
func fold64(ptr unsafe.Pointer, _ uintptr) uintptr {
	v := *(*uint64)(ptr)
	return uintptr(v) ^ uintptr(v>>32)
}

//go:nosplit
func identity32(ptr unsafe.Pointer, _ uintptr) uintptr {
	return uintptr(*(*uint32)(ptr))
}

//go:nosplit
func identity16(ptr unsafe.Pointer, _ uintptr) uintptr {
	return uintptr(*(*uint16)(ptr))
}

//go:nosplit
func identity8(ptr unsafe.Pointer, _ uintptr) uintptr {
	return uintptr(*(*uint8)(ptr))
}

func hashString(ptr unsafe.Pointer, seed uintptr) uintptr {
	return uintptr(xxh3.HashStringSeed(*(*string)(ptr), uint64(seed)))
}

func comparableHasher[K comparable]() HashFunc {
	seed := maphash.MakeSeed()
	return func(ptr unsafe.Pointer, _ uintptr) uintptr {
		return uintptr(maphash.Comparable(seed, *(*K)(ptr)))
	}
}

// cpus reports the parallelism available to bulk maintenance.
func cpus() int {
	return runtime.GOMAXPROCS(0)
}
