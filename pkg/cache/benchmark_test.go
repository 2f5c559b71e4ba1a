package cache

import (
	"fmt"
	"testing"
)

func BenchmarkCacheGet(b *testing.B) {
	c := New(Options{MaxSize: 10000})
	for i := 0; i < 1000; i++ {
		c.Set(fmt.Sprintf("key%d", i), entry(i))
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Get("key999")
	}
}

func BenchmarkCacheSet(b *testing.B) {
	c := New(Options{MaxSize: 1000})
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Set(fmt.Sprintf("key%d", i), entry(i))
	}
}

func BenchmarkKey(b *testing.B) {
	src := make([]byte, 4096)
	for i := 0; i < b.N; i++ {
		Key(src, src, "f", "sensitive=false")
	}
}
