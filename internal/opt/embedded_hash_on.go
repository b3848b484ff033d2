//go:build slotmap_embedded_hash

package opt

const EmbeddedHash_ = true

// Entry_ is the key-value payload of an InsertMap slot.
// The key hash is stored alongside so chain walks can skip key compares.
type Entry_[K comparable, V any] struct {
	Hash  uintptr
	Key   K
	Value V
}

//go:nosplit
func (e *Entry_[K, V]) GetHash() uintptr {
	return e.Hash
}

//go:nosplit
func (e *Entry_[K, V]) SetHash(h uintptr) {
	e.Hash = h
}
