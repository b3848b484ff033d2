package slotmap

import (
	"strconv"
	"sync"
	"testing"

	"github.com/llxisdsh/pb"
)

const benchKeys = 1 << 12

var (
	benchStrings = func() (s [benchKeys]string) {
		for i := range s {
			s[i] = "key-" + strconv.Itoa(i)
		}
		return
	}()
)

func BenchmarkInsertMap_Find(b *testing.B) {
	b.ReportAllocs()
	m := MustNew[string, int](benchKeys)
	for i, k := range benchStrings {
		_, _, _ = m.Emplace(k, i)
	}
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			_ = m.Find(benchStrings[i])
			i = (i + 1) & (benchKeys - 1)
		}
	})
}

func BenchmarkInsertMap_FindOrConstruct(b *testing.B) {
	b.ReportAllocs()
	m := MustNew[string, int](benchKeys)
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			_, _, _ = m.Emplace(benchStrings[i], i)
			i = (i + 1) & (benchKeys - 1)
		}
	})
}

func BenchmarkCounters_Inc(b *testing.B) {
	b.ReportAllocs()
	c, _ := NewCounters[int](64)
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			_, _ = c.Inc(i & 63)
			i++
		}
	})
}

func BenchmarkPbMapOf_LoadOrStore(b *testing.B) {
	b.ReportAllocs()
	var m pb.MapOf[string, int]
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			_, _ = m.LoadOrStore(benchStrings[i], i)
			i = (i + 1) & (benchKeys - 1)
		}
	})
}

func BenchmarkSyncMap_LoadOrStore(b *testing.B) {
	b.ReportAllocs()
	var m sync.Map
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			_, _ = m.LoadOrStore(benchStrings[i], i)
			i = (i + 1) & (benchKeys - 1)
		}
	})
}
