package slotmap

import (
	"unsafe"

	"go.uber.org/atomic"

	"github.com/llxisdsh/slotmap/internal/opt"
)

// Counter is an atomic int64 cell stored in place inside an InsertMap
// slot. The map only guarantees the cell is constructed once; every later
// mutation goes through the atomic methods.
type Counter struct {
	atomic.Int64
	_ [(cacheLineSize - unsafe.Sizeof(atomic.Int64{})%cacheLineSize) % cacheLineSize * opt.PaddingMult_]byte
}

func zeroCounter(c *Counter) {
	c.Store(0)
}

// Counters keeps one Counter per classifier key, e.g. per call site or per
// goroutine, without any locking. Keys are added on first use and the
// capacity is fixed at construction.
//
// Reset and Erase are maintenance operations and share the single-writer
// contract of InsertMap.Clear and InsertMap.Erase.
type Counters[K comparable] struct {
	m *InsertMap[K, Counter]
}

// NewCounters creates a counter set able to hold maxKeys keys.
func NewCounters[K comparable](
	maxKeys int,
	options ...func(*MapConfig),
) (*Counters[K], error) {
	m, err := New[K, Counter](maxKeys, options...)
	if err != nil {
		return nil, err
	}
	return &Counters[K]{m: m}, nil
}

// Cell returns the counter for key, creating it at zero on first access.
func (c *Counters[K]) Cell(key K) (*Counter, error) {
	it, _, err := c.m.FindOrConstruct(key, zeroCounter)
	if err != nil {
		return nil, err
	}
	return it.Value(), nil
}

// Add adds delta to the counter for key and returns the new value.
func (c *Counters[K]) Add(key K, delta int64) (int64, error) {
	cell, err := c.Cell(key)
	if err != nil {
		return 0, err
	}
	return cell.Add(delta), nil
}

// Inc increments the counter for key and returns the new value.
func (c *Counters[K]) Inc(key K) (int64, error) {
	return c.Add(key, 1)
}

// Load returns the counter value for key without creating it.
func (c *Counters[K]) Load(key K) (value int64, ok bool) {
	cell, ok := c.m.Load(key)
	if !ok {
		return 0, false
	}
	return cell.Load(), true
}

// Range calls fn for every key and its current value.
func (c *Counters[K]) Range(fn func(key K, value int64) bool) {
	c.m.Range(func(key K, cell *Counter) bool {
		return fn(key, cell.Load())
	})
}

// Sum returns the total over all keys.
func (c *Counters[K]) Sum() int64 {
	var sum int64
	c.m.Range(func(_ K, cell *Counter) bool {
		sum += cell.Load()
		return true
	})
	return sum
}

// Len returns the number of keys.
func (c *Counters[K]) Len() int {
	return c.m.Size()
}

// Erase drops the counter for key.
func (c *Counters[K]) Erase(key K) bool {
	return c.m.Erase(key)
}

// Reset drops every counter.
func (c *Counters[K]) Reset() {
	c.m.Clear()
}
