package prom

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IvanBrykalov/bitmapcache/bitmap"
	"github.com/IvanBrykalov/bitmapcache/cache"
)

func TestAdapter_RecordsCacheTraffic(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := New(reg, "bitmap", "test", nil)

	b1 := bitmap.New(4, 4, bitmap.ARGB8888)
	b2 := bitmap.New(4, 4, bitmap.ARGB8888)
	c := cache.New(cache.Options{MaxSize: b1.ByteCount(), Metrics: m})
	t.Cleanup(c.Clear)

	c.Set(cache.NewKey("a"), cache.NewValue(b1, false))
	c.Set(cache.NewKey("b"), cache.NewValue(b2, false)) // demotes "a"
	c.Get(cache.NewKey("a"))
	c.Get(cache.NewKey("b"))
	c.Get(cache.NewKey("missing"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.hits.WithLabelValues("strong")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.hits.WithLabelValues("weak")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.misses))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.evicts.WithLabelValues("capacity")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sizeEntries))
	assert.Equal(t, float64(b2.ByteCount()), testutil.ToFloat64(m.sizeBytes))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.weakEntries))
	assert.Equal(t, float64(b1.ByteCount()), testutil.ToFloat64(m.weakBytes))

	c.TrimMemory(cache.TrimComplete)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.evicts.WithLabelValues("trim")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.evicts.WithLabelValues("capacity")))
	assert.Zero(t, testutil.ToFloat64(m.sizeBytes))
}

func TestAdapter_Registration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := New(reg, "bitmap", "reg", prometheus.Labels{"app": "test"})
	m.Size(3, 300)
	m.WeakSize(1, 100)

	expected := `
# HELP bitmap_reg_strong_bytes Bytes held by the strong tier
# TYPE bitmap_reg_strong_bytes gauge
bitmap_reg_strong_bytes{app="test"} 300
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "bitmap_reg_strong_bytes"))

	assert.Panics(t, func() { New(reg, "bitmap", "reg", prometheus.Labels{"app": "test"}) },
		"registering the same metrics twice must fail")
}
