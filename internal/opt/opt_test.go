package opt

import (
	"testing"
	"unsafe"
)

func TestCounterStripePadding(t *testing.T) {
	size := unsafe.Sizeof(CounterStripe_{})
	if PaddingMult_ == 0 {
		if size != unsafe.Sizeof(uintptr(0)) {
			t.Fatalf("unpadded stripe size=%d", size)
		}
		return
	}
	if size%CacheLineSize_ != 0 {
		t.Fatalf("padded stripe size=%d not a multiple of %d", size, CacheLineSize_)
	}
}

func TestEntryHash(t *testing.T) {
	var e Entry_[string, int]
	e.SetHash(42)
	if EmbeddedHash_ {
		if e.GetHash() != 42 {
			t.Fatalf("hash=%d", e.GetHash())
		}
	} else if e.GetHash() != 0 {
		t.Fatalf("hash=%d without embedded hash", e.GetHash())
	}
}
