package cache

import (
	"math/rand"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/IvanBrykalov/bitmapcache/bitmap"
)

// benchmarkMix exercises a read/write mix against a warm cache whose budget
// holds only part of the hot keyspace, so writes keep trimming and demoting.
// It uses parallel workers (RunParallel spawns GOMAXPROCS goroutines).
func benchmarkMix(b *testing.B, readsPct int) {
	const keyspace = 1 << 12 // power of two for fast &-mask

	// Bitmaps are preallocated and kept alive so the weak tier stays warm.
	pool := make([]*bitmap.Bitmap, keyspace)
	keys := make([]Key, keyspace)
	for i := range pool {
		pool[i] = bitmap.New(8, 8, bitmap.ARGB8888)
		keys[i] = NewKeyWithExtras("k:"+strconv.Itoa(i), map[string]string{"size": "8x8"})
	}

	c := New(Options{MaxSize: int64(keyspace/2) * pool[0].ByteCount()})
	b.Cleanup(c.Clear)

	// Preload half the keyspace to get a realistic hit-rate.
	for i := 0; i < keyspace/2; i++ {
		c.Set(keys[i], NewValue(pool[i], false))
	}

	b.ReportAllocs()
	b.ResetTimer()

	var seed int64 = 1
	b.RunParallel(func(pb *testing.PB) {
		// Independent RNG stream for each worker.
		r := rand.New(rand.NewSource(atomic.AddInt64(&seed, 1)))
		for pb.Next() {
			idx := r.Int() & (keyspace - 1)
			if r.Intn(100) < readsPct {
				c.Get(keys[idx])
			} else {
				c.Set(keys[idx], NewValue(pool[idx], false))
			}
		}
	})
}

func BenchmarkCache_90r10w(b *testing.B) { benchmarkMix(b, 90) }
func BenchmarkCache_50r50w(b *testing.B) { benchmarkMix(b, 50) }

// BenchmarkNewKeyWithExtras measures canonical key construction, which the
// pipeline pays on every request.
func BenchmarkNewKeyWithExtras(b *testing.B) {
	extras := map[string]string{"size": "256x256", "transformation.0": "circle", "scale": "fill"}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = NewKeyWithExtras("https://example.com/img.png", extras)
	}
}
