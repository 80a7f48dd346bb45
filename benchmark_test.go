package concache

import (
	"context"
	"testing"
)

// BenchmarkPut measures the cost of repeatedly overwriting one key: lock
// acquisition, the atomic payload swap, and (with TTL disabled) nothing
// else — the write-path floor the rest of the facade builds on.
func BenchmarkPut(b *testing.B) {
	c, err := New[string, int](WithTTLDisabled[string, int]())
	if err != nil {
		b.Fatal(err)
	}
	defer c.Close()

	ctx := context.Background()
	for i := 0; i < b.N; i++ {
		if err := c.Put(ctx, "key", i); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkGet measures the lock-free read path in isolation.
func BenchmarkGet(b *testing.B) {
	c, err := New[string, int](WithTTLDisabled[string, int]())
	if err != nil {
		b.Fatal(err)
	}
	defer c.Close()

	ctx := context.Background()
	if err := c.Put(ctx, "key", 1); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Get("key")
	}
}

// BenchmarkPutParallel exercises the per-key lock manager under many
// distinct keys hashed across shards, where writers should scale with
// goroutine count rather than serialize on a single mutex.
func BenchmarkPutParallel(b *testing.B) {
	c, err := New[int, int](WithTTLDisabled[int, int](), WithShardCount[int, int](32))
	if err != nil {
		b.Fatal(err)
	}
	defer c.Close()

	ctx := context.Background()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			_ = c.Put(ctx, i%1024, i)
			i++
		}
	})
}
