//go:build (amd64 || 386 || arm || mips || mipsle || wasm) && !slotmap_disable_padding && !slotmap_enable_padding

package opt

// PaddingMult_ is multiplied into every cache-line pad; zero disables them.
const PaddingMult_ = 0

// CounterStripe_ represents a striped counter to reduce contention.
// Padding is disabled by default for:
// - amd64
// - 32-bit architectures (386, arm, mips, mipsle, wasm)
type CounterStripe_ struct {
	C uintptr // Counter value, accessed atomically
}
