//go:build slotmap_disable_padding

package opt

// PaddingMult_ is multiplied into every cache-line pad; zero disables them.
const PaddingMult_ = 0

// CounterStripe_ represents a striped counter to reduce contention.
// Padding is force-disabled via the slotmap_disable_padding build tag.
// Use: go build -tags=slotmap_disable_padding
type CounterStripe_ struct {
	C uintptr // Counter value, accessed atomically
}
