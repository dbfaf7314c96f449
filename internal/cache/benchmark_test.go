package cache

import (
	"fmt"
	"testing"
)

func BenchmarkPut(b *testing.B) {
	c, err := New(1024)
	if err != nil {
		b.Fatalf("new: %v", err)
	}
	keys := make([]string, 2048)
	for i := range keys {
		keys[i] = fmt.Sprintf("key-%d", i)
	}
	value := []byte("benchmark-value")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Put(keys[i%len(keys)], value)
	}
}

func BenchmarkGetHit(b *testing.B) {
	c, err := New(1024)
	if err != nil {
		b.Fatalf("new: %v", err)
	}
	keys := make([]string, 1024)
	for i := range keys {
		keys[i] = fmt.Sprintf("key-%d", i)
		c.Put(keys[i], []byte("benchmark-value"))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Get(keys[i%len(keys)])
	}
}

func BenchmarkGetParallel(b *testing.B) {
	c, err := New(1024)
	if err != nil {
		b.Fatalf("new: %v", err)
	}
	keys := make([]string, 1024)
	for i := range keys {
		keys[i] = fmt.Sprintf("key-%d", i)
		c.Put(keys[i], []byte("benchmark-value"))
	}

	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			c.Get(keys[i%len(keys)])
			i++
		}
	})
}
