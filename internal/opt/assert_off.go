//go:build !slotmap_debug

package opt

// Assert_ enables slot state-machine precondition checks.
// Use: go build -tags=slotmap_debug
const Assert_ = false
