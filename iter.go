package slotmap

import (
	"github.com/llxisdsh/slotmap/internal/opt"
)

// Iter is a position in an InsertMap. The zero-th slot is the End
// position; Find returns it on a miss.
//
// Iteration runs from the highest linked slot down to slot 1. It may run
// concurrently with inserts, in which case each slot is observed
// atomically but entries published mid-scan may or may not be seen. It
// must not run concurrently with Erase or Clear.
//
// Iters are comparable:
//
//	if m.Find(key) == m.End() {
//		// miss
//	}
type Iter[K comparable, V any] struct {
	m    *InsertMap[K, V]
	slot uint32
}

//go:nosplit
func (m *InsertMap[K, V]) iterAt(slot uint32) Iter[K, V] {
	return Iter[K, V]{m: m, slot: slot}
}

// Begin returns an iterator at the highest linked slot, or End() if the
// map is empty. Every call starts a fresh scan.
func (m *InsertMap[K, V]) Begin() Iter[K, V] {
	slot := m.numSlots - 1
	for slot > 0 && m.slots[slot].state() != slotLinked {
		slot--
	}
	return m.iterAt(slot)
}

// End returns the past-the-end iterator.
//
//go:nosplit
func (m *InsertMap[K, V]) End() Iter[K, V] {
	return m.iterAt(0)
}

// Valid reports whether the iterator points at an entry.
//
//go:nosplit
func (it Iter[K, V]) Valid() bool {
	return it.slot != 0
}

// Next advances to the next linked slot, or to End.
func (it *Iter[K, V]) Next() {
	for it.slot > 0 {
		it.slot--
		if it.m.slots[it.slot].state() == slotLinked {
			break
		}
	}
}

// Key returns the key of the current entry.
func (it Iter[K, V]) Key() K {
	if opt.Assert_ && it.slot == 0 {
		panic("slotmap: Key on End iterator")
	}
	return it.m.slots[it.slot].entry.Key
}

// Value returns a pointer to the value of the current entry. The pointer
// stays valid until the entry is erased or the map is cleared.
func (it Iter[K, V]) Value() *V {
	if opt.Assert_ && it.slot == 0 {
		panic("slotmap: Value on End iterator")
	}
	return &it.m.slots[it.slot].entry.Value
}

// Range calls yield for every entry, from the highest slot down.
// Returning false from yield stops iteration early.
func (m *InsertMap[K, V]) Range(yield func(key K, value *V) bool) {
	for it := m.Begin(); it.Valid(); it.Next() {
		if !yield(it.Key(), it.Value()) {
			return
		}
	}
}

// All returns an iterator function for use with range-over-func.
// It provides the same functionality as Range but in iterator form.
//
//go:nosplit
func (m *InsertMap[K, V]) All() func(yield func(K, *V) bool) {
	return m.Range
}

// Keys returns an iterator over the keys for use with range-over-func.
func (m *InsertMap[K, V]) Keys() func(yield func(K) bool) {
	return func(yield func(K) bool) {
		for it := m.Begin(); it.Valid(); it.Next() {
			if !yield(it.Key()) {
				return
			}
		}
	}
}
