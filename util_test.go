package slotmap

import (
	"errors"
	"testing"
	"unsafe"
)

func TestCalcCapacity(t *testing.T) {
	cases := []struct {
		size int
		lf   float64
		want int
		err  bool
	}{
		{0, 0.8, 128, false},
		{100, 1, 228, false},
		{1000, 0.5, 2128, false},
		{maxCapacity - 1, 0.8, maxCapacity, false},
		{maxCapacity - 1, 1, maxCapacity, false},
		{maxCapacity, 0.8, 0, true},
		{maxCapacity + 1, 1, 0, true},
		{-1, 0.8, 0, true},
	}
	for _, c := range cases {
		got, err := calcCapacity(c.size, c.lf)
		if c.err {
			if !errors.Is(err, ErrInvalidCapacity) {
				t.Fatalf("size=%d lf=%v: err=%v", c.size, c.lf, err)
			}
			continue
		}
		if err != nil || got != c.want {
			t.Fatalf("size=%d lf=%v: got=%d err=%v want=%d", c.size, c.lf, got, err, c.want)
		}
	}
}

func TestCalcBucketMask(t *testing.T) {
	for _, capacity := range []int{1, 128, 129, 1000, maxCapacity} {
		mask := uint64(calcBucketMask(capacity))
		if mask&(mask+1) != 0 {
			t.Fatalf("cap=%d mask=%#x not a power of two minus one", capacity, mask)
		}
		if mask+1 < uint64(capacity)*bucketSpread || (mask+1)/2 >= uint64(capacity)*bucketSpread {
			t.Fatalf("cap=%d mask=%#x not the next power of two", capacity, mask)
		}
	}
}

func TestNextPowOf2(t *testing.T) {
	cases := map[uint64]uint64{0: 1, 1: 1, 2: 2, 3: 4, 4: 4, 5: 8, 1000: 1024, 1 << 32: 1 << 32}
	for in, want := range cases {
		if got := nextPowOf2(in); got != want {
			t.Fatalf("nextPowOf2(%d)=%d want %d", in, got, want)
		}
	}
}

func TestCalcParallelism(t *testing.T) {
	if sz, n := calcParallelism(100, 1000, 8); sz != 100 || n != 1 {
		t.Fatalf("small input: %d %d", sz, n)
	}
	sz, n := calcParallelism(10000, 1000, 4)
	if n != 4 || sz*n < 10000 {
		t.Fatalf("large input: %d %d", sz, n)
	}
	if _, n := calcParallelism(10000, 1000, 0); n != 1 {
		t.Fatalf("zero cpus: %d", n)
	}
}

func TestDefaultHasher(t *testing.T) {
	type myInt int32
	i := myInt(42)
	if h := defaultHasher[myInt]()(unsafe.Pointer(&i), 99); h != 42 {
		t.Fatalf("named int hash=%d", h)
	}
	u := uint64(1) << 40
	if h := defaultHasher[uint64]()(unsafe.Pointer(&u), 0); uint64(h) != u && intSize == 64 {
		t.Fatalf("uint64 hash=%d", h)
	}

	s1, s2 := "alpha", "alpha"
	hs := defaultHasher[string]()
	if hs(unsafe.Pointer(&s1), 7) != hs(unsafe.Pointer(&s2), 7) {
		t.Fatalf("string hash not deterministic")
	}
	if hs(unsafe.Pointer(&s1), 7) == hs(unsafe.Pointer(&s1), 8) {
		t.Fatalf("string hash ignores the seed")
	}

	type pair struct {
		a int
		b string
	}
	p1, p2 := pair{1, "x"}, pair{1, "x"}
	hp := defaultHasher[pair]()
	if hp(unsafe.Pointer(&p1), 0) != hp(unsafe.Pointer(&p2), 0) {
		t.Fatalf("struct hash not deterministic")
	}
}
