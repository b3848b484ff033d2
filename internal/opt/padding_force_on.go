//go:build slotmap_enable_padding

package opt

import (
	"unsafe"
)

// PaddingMult_ is multiplied into every cache-line pad; zero disables them.
const PaddingMult_ = 1

// CounterStripe_ represents a striped counter to reduce contention.
// Padding is force-enabled via the slotmap_enable_padding build tag.
// Use: go build -tags=slotmap_enable_padding
type CounterStripe_ struct {
	C uintptr // Counter value, accessed atomically
	_ [(CacheLineSize_ - unsafe.Sizeof(struct {
		C uintptr
	}{})%CacheLineSize_) % CacheLineSize_]byte
}
