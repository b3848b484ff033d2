package slotmap

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/llxisdsh/slotmap/internal/opt"
)

// slotState is the lifecycle stage of a slot, kept in the low stateBits
// of headAndState.
//
//	Empty -> Constructing -> Linked -> Empty   (insert, then Erase/Clear)
//	Empty -> Constructing -> Empty             (insert lost the publish race)
type slotState uint32

const (
	slotEmpty slotState = iota
	slotConstructing
	slotLinked
)

func (s slotState) String() string {
	switch s {
	case slotEmpty:
		return "empty"
	case slotConstructing:
		return "constructing"
	case slotLinked:
		return "linked"
	default:
		return fmt.Sprintf("slotState(%d)", uint32(s))
	}
}

type entry[K comparable, V any] = opt.Entry_[K, V]

// slot is one unit of the arena.
//
// Lock-free insertion is easiest by prepending to collision chains, and a
// separate head array would cost a second cache miss per lookup. Instead
// each slot carries the chain head for the bucket that hashes to its own
// index, right next to its own chain link and payload. Lookups read the
// head before looking at any keys.
type slot[K comparable, V any] struct {
	// headAndState holds the slotState in the low bits and, above them,
	// the index of the first slot of the chain whose keys map here.
	headAndState atomic.Uint32
	// next is the following slot of the chain this slot belongs to.
	// Written only while the slot is unpublished, or under the
	// single-writer maintenance contract.
	next uint32
	// entry is valid only while the state is Constructing or Linked.
	entry entry[K, V]
}

//go:nosplit
func (s *slot[K, V]) state() slotState {
	return slotState(s.headAndState.Load() & stateMask)
}

//go:nosplit
func (s *slot[K, V]) head() uint32 {
	return s.headAndState.Load() >> stateBits
}

// stateUpdate moves the slot from before to after by adding the signed
// difference to the state bits, leaving the chain head untouched.
// A slot that was not in before is a broken caller contract.
func (s *slot[K, V]) stateUpdate(before, after slotState) {
	if opt.Assert_ {
		if cur := s.state(); cur != before {
			panic(fmt.Sprintf("slotmap: slot transition %v -> %v from %v", before, after, cur))
		}
	}
	n := s.headAndState.Add(uint32(after) - uint32(before))
	if slotState(n&stateMask) != after {
		panic(fmt.Sprintf("slotmap: slot transition %v -> %v from unexpected state", before, after))
	}
}

// tryClaim moves an Empty slot to Constructing. Only the winner of the CAS
// may construct into the slot.
//
//go:nosplit
func (s *slot[K, V]) tryClaim() bool {
	prev := s.headAndState.Load()
	return slotState(prev&stateMask) == slotEmpty &&
		s.headAndState.CompareAndSwap(prev, prev+uint32(slotConstructing-slotEmpty))
}

// destroy releases the payload and zeroes it so the GC can reclaim
// whatever the key and value referenced. The state is left to the caller.
func (s *slot[K, V]) destroy(release func(unsafe.Pointer)) {
	if opt.Assert_ {
		if cur := s.state(); cur == slotEmpty {
			panic("slotmap: destroying an empty slot")
		}
	}
	if release != nil {
		release(unsafe.Pointer(&s.entry.Value))
	}
	s.entry = entry[K, V]{}
}

// compareExchange is CompareAndSwap that reloads *expected on failure,
// so retry loops never re-read the word themselves.
//
//go:nosplit
func compareExchange(addr *atomic.Uint32, expected *uint32, desired uint32) bool {
	if addr.CompareAndSwap(*expected, desired) {
		return true
	}
	*expected = addr.Load()
	return false
}
