//go:build slotmap_debug

package opt

// Assert_ enables slot state-machine precondition checks.
const Assert_ = true
