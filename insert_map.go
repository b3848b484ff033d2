package slotmap

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sync/errgroup"

	"github.com/llxisdsh/slotmap/internal/opt"
)

var (
	// ErrInvalidCapacity is returned by New when the requested size cannot
	// be addressed with 32-bit slot indexes after reserving the state bits.
	ErrInvalidCapacity = errors.New("slotmap: capacity must fit in 30-bit slot index")

	// ErrAllocationFailed is returned by FindOrConstruct when no empty slot
	// was found within the allocation budget. The map is left unchanged.
	ErrAllocationFailed = errors.New("slotmap: no free slot")
)

func capacityError(maxSize int) error {
	return fmt.Errorf("%w: requested %d entries", ErrInvalidCapacity, maxSize)
}

// InsertMap is a lock-free, insert-only hash map with a capacity fixed at
// construction. Entries never move, so the pointer returned for a value
// stays valid until the entry is erased or the map is cleared.
//
// Concurrency model:
//   - Find, FindOrConstruct and iteration are safe from any number of
//     goroutines and never block; inserts retry a bounded number of CAS
//     operations and fail with ErrAllocationFailed rather than livelock.
//   - A value is visible to other goroutines only after its slot is
//     linked into its bucket chain; readers that find it see it fully
//     constructed.
//   - Erase and Clear are single-writer maintenance operations. The caller
//     must guarantee no other operation runs on the map meanwhile, e.g.
//     with a MaintenanceLock.
//
// There is no update-in-place. Mutable values are stored as atomics (see
// Counters) or guarded by the caller.
type InsertMap[K comparable, V any] struct {
	_          noCopy
	slots      []slot[K, V]
	numSlots   uint32
	bucketMask uintptr
	seed       uintptr
	keyHash    HashFunc
	release    func(unsafe.Pointer)
	randIntN   func(n int) int
	maxTries   int
	size       []opt.CounterStripe_
	sizeMask   uint32
}

// New creates a map able to hold maxSize entries without exceeding the
// configured load factor (default 0.8).
//
// Configuration options:
//   - WithLoadFactor(f): maximum load factor, clamped to 1.
//   - WithKeyHasher / WithKeyHasherUnsafe: custom hashing.
//   - WithMaxAllocationTries(n): probe budget per insert (default 1000).
//   - WithRelease(fn): hook run whenever a value's storage is reclaimed.
//
// It returns ErrInvalidCapacity if the slot count would not fit in a
// 30-bit index. No memory is allocated in that case.
//
// Example:
//
//	m, err := New[string, int](1024)
//	it, inserted, err := m.Emplace("a", 1)
func New[K comparable, V any](
	maxSize int,
	options ...func(*MapConfig),
) (*InsertMap[K, V], error) {
	var cfg MapConfig
	for _, o := range options {
		o(&cfg)
	}
	cfg.withDefaults()
	capacity, err := calcCapacity(maxSize, cfg.loadFactor)
	if err != nil {
		return nil, err
	}
	m := &InsertMap[K, V]{}
	m.init(&cfg, capacity)
	return m, nil
}

// MustNew is like New but panics if the capacity is invalid.
func MustNew[K comparable, V any](
	maxSize int,
	options ...func(*MapConfig),
) *InsertMap[K, V] {
	m, err := New[K, V](maxSize, options...)
	if err != nil {
		panic(err)
	}
	return m
}

func (m *InsertMap[K, V]) init(cfg *MapConfig, capacity int) {
	if cfg.keyHash == nil {
		cfg.keyHash = parseKeyInterface[K]()
	}
	m.keyHash = cfg.keyHash
	if m.keyHash == nil {
		m.keyHash = defaultHasher[K]()
	}
	m.randIntN = cfg.randIntN
	if m.randIntN == nil {
		m.randIntN = rand.IntN
	}
	m.seed = uintptr(rand.Uint64())
	m.release = cfg.release
	m.maxTries = cfg.maxTries

	m.numSlots = uint32(capacity)
	m.bucketMask = calcBucketMask(capacity)
	m.slots = make([]slot[K, V], capacity)
	// mark the zero-th slot as in-use but not valid, since that happens
	// to be our nil value
	m.slots[0].stateUpdate(slotEmpty, slotConstructing)

	sizeLen := calcSizeLen(capacity, cpus())
	m.size = make([]opt.CounterStripe_, sizeLen)
	m.sizeMask = uint32(sizeLen - 1)
}

//go:nosplit
func (m *InsertMap[K, V]) hash(key *K) uintptr {
	return m.keyHash(noescape(unsafe.Pointer(key)), m.seed)
}

// homeSlot maps a hash to the bucket owning its chain.
//
//go:nosplit
func (m *InsertMap[K, V]) homeSlot(hash uintptr) uint32 {
	h := hash & m.bucketMask
	for h >= uintptr(m.numSlots) {
		h -= uintptr(m.numSlots)
	}
	return uint32(h)
}

//go:nosplit
func (m *InsertMap[K, V]) match(s *slot[K, V], key *K, hash uintptr) bool {
	if opt.EmbeddedHash_ {
		return s.entry.GetHash() == hash && s.entry.Key == *key
	}
	return s.entry.Key == *key
}

// find walks the chain rooted in headAndState and returns the index of the
// slot holding key, or 0.
func (m *InsertMap[K, V]) find(key *K, hash uintptr, headAndState uint32) uint32 {
	for idx := headAndState >> stateBits; idx != 0; idx = m.slots[idx].next {
		if m.match(&m.slots[idx], key, hash) {
			return idx
		}
	}
	return 0
}

// Find returns an iterator positioned at key, equal to End() on miss.
func (m *InsertMap[K, V]) Find(key K) Iter[K, V] {
	hash := m.hash(&key)
	home := m.homeSlot(hash)
	return m.iterAt(m.find(&key, hash, m.slots[home].headAndState.Load()))
}

// Load returns a pointer to the value stored for key.
func (m *InsertMap[K, V]) Load(key K) (value *V, ok bool) {
	it := m.Find(key)
	if !it.Valid() {
		return nil, false
	}
	return it.Value(), true
}

// FindOrConstruct searches for key and returns (it, false) if it is found.
// Otherwise it calls init with zeroed storage for a value, publishes the
// new entry and returns (it, true).
//
// FindOrConstruct never blocks other readers or writers. When several
// goroutines insert the same key at once, init runs in each of them and
// only the first to publish wins; the other values are released (see
// WithRelease) and never become visible. A call may therefore run init
// and still return (it, false).
//
// It fails with ErrAllocationFailed when the probe budget is exhausted.
//
// Usage:
//
//	it, _, err := memo.FindOrConstruct(key, func(v *string) {
//		*v = computation(key)
//	})
func (m *InsertMap[K, V]) FindOrConstruct(
	key K,
	init func(value *V),
) (it Iter[K, V], inserted bool, err error) {
	hash := m.hash(&key)
	home := m.homeSlot(hash)
	bucket := &m.slots[home]
	prev := bucket.headAndState.Load()

	if existing := m.find(&key, hash, prev); existing != 0 {
		return m.iterAt(existing), false, nil
	}

	idx, err := m.allocateNear(home)
	if err != nil {
		return m.End(), false, err
	}
	s := &m.slots[idx]
	s.entry.Key = key
	if opt.EmbeddedHash_ {
		s.entry.SetHash(hash)
	}
	if init != nil {
		m.construct(s, init)
	}

	for {
		s.next = prev >> stateBits

		// the head update and the Constructing -> Linked update collapse
		// into a single CAS if home == idx (which should happen often)
		after := idx << stateBits
		if idx == home {
			after |= uint32(slotLinked)
		} else {
			after |= prev & stateMask
		}

		if compareExchange(&bucket.headAndState, &prev, after) {
			if idx != home {
				s.stateUpdate(slotConstructing, slotLinked)
			}
			m.addSize(idx, 1)
			return m.iterAt(idx), true, nil
		}

		if existing := m.find(&key, hash, prev); existing != 0 {
			// our key and value are no longer needed
			s.destroy(m.release)
			s.stateUpdate(slotConstructing, slotEmpty)
			return m.iterAt(existing), false, nil
		}
	}
}

// construct runs init on the value storage of a claimed slot. If init
// panics the slot is released and returned to Empty before the panic
// propagates, so a failed insert leaves nothing behind.
func (m *InsertMap[K, V]) construct(s *slot[K, V], init func(value *V)) {
	done := false
	defer func() {
		if !done {
			s.destroy(m.release)
			s.stateUpdate(slotConstructing, slotEmpty)
		}
	}()
	init(&s.entry.Value)
	done = true
}

// Emplace stores value for key unless key is already present.
func (m *InsertMap[K, V]) Emplace(key K, value V) (it Iter[K, V], inserted bool, err error) {
	return m.FindOrConstruct(key, func(v *V) {
		*v = value
	})
}

// LoadOrStore returns a pointer to the existing value for key if present.
// Otherwise it stores value and returns a pointer to the stored copy.
// The loaded result is true if the value was loaded, false if stored.
func (m *InsertMap[K, V]) LoadOrStore(key K, value V) (actual *V, loaded bool, err error) {
	it, inserted, err := m.Emplace(key, value)
	if err != nil {
		return nil, false, err
	}
	return it.Value(), !inserted, nil
}

// allocateNear claims an empty slot, trying to stay close to start.
func (m *InsertMap[K, V]) allocateNear(start uint32) (uint32, error) {
	for tries := 0; tries < m.maxTries; tries++ {
		idx := m.allocationAttempt(start, tries)
		if m.slots[idx].tryClaim() {
			return idx, nil
		}
	}
	return 0, fmt.Errorf("%w: %d attempts from slot %d of %d",
		ErrAllocationFailed, m.maxTries, start, m.numSlots)
}

// allocationAttempt returns the slot to try after tries failed attempts
// starting from start.
//
//go:nosplit
func (m *InsertMap[K, V]) allocationAttempt(start uint32, tries int) uint32 {
	if tries < sequentialProbes && start+uint32(tries) < m.numSlots {
		return start + uint32(tries)
	}
	return uint32(m.randIntN(int(m.numSlots)))
}

// Erase removes key and releases its value. It reports whether the key
// was present.
//
// Erase is a single-writer operation: no other goroutine may access the
// map while it runs.
func (m *InsertMap[K, V]) Erase(key K) bool {
	hash := m.hash(&key)
	home := m.homeSlot(hash)
	bucket := &m.slots[home]
	var last uint32
	for idx := bucket.head(); idx != 0; idx = m.slots[idx].next {
		s := &m.slots[idx]
		if !m.match(s, &key, hash) {
			last = idx
			continue
		}
		if last == 0 {
			hs := bucket.headAndState.Load()
			for !compareExchange(&bucket.headAndState, &hs, s.next<<stateBits|hs&stateMask) {
			}
		} else {
			m.slots[last].next = s.next
		}
		s.destroy(m.release)
		s.stateUpdate(slotLinked, slotEmpty)
		m.addSize(idx, -1)
		return true
	}
	return false
}

// Clear releases every entry and resets the arena to its freshly
// constructed layout. Calling it on an empty map is a no-op.
//
// Clear is a single-writer operation: no other goroutine may access the
// map while it runs. Large arenas are processed in parallel.
func (m *InsertMap[K, V]) Clear() {
	n := int(m.numSlots)
	chunkSz, chunks := calcParallelism(n, minSlotsPerCPU, cpus())
	if chunks <= 1 {
		m.clearRange(0, n)
	} else {
		var g errgroup.Group
		for c := range chunks {
			start := c * chunkSz
			end := min(start+chunkSz, n)
			g.Go(func() error {
				m.clearRange(start, end)
				return nil
			})
		}
		g.Wait()
	}
	m.slots[0].stateUpdate(slotEmpty, slotConstructing)
	for i := range m.size {
		atomic.StoreUintptr(&m.size[i].C, 0)
	}
}

func (m *InsertMap[K, V]) clearRange(start, end int) {
	for i := max(start, 1); i < end; i++ {
		if s := &m.slots[i]; s.state() == slotLinked {
			s.destroy(m.release)
		}
	}
	clear(m.slots[start:end])
}

//go:nosplit
func (m *InsertMap[K, V]) addSize(idx uint32, delta int) {
	atomic.AddUintptr(&m.size[idx&m.sizeMask].C, uintptr(delta))
}

// Size returns the number of entries in the map.
// Under concurrent inserts the result is a lower bound of the final size.
func (m *InsertMap[K, V]) Size() int {
	var sum uintptr
	for i := range m.size {
		sum += atomic.LoadUintptr(&m.size[i].C)
	}
	return int(sum)
}

// IsZero checks if the map is empty.
func (m *InsertMap[K, V]) IsZero() bool {
	return m.Size() == 0
}

// Cap returns the number of slots in the arena, including the reserved
// sentinel slot.
func (m *InsertMap[K, V]) Cap() int {
	return int(m.numSlots)
}
