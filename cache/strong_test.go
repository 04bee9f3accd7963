package cache

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IvanBrykalov/bitmapcache/bitmap"
)

func TestStrong_SizeAccounting(t *testing.T) {
	t.Parallel()

	_, strong, _ := newTiers(t, Options{MaxSize: Unbounded})
	small := bitmap.New(2, 2, bitmap.ARGB8888)
	big := bitmap.New(4, 4, bitmap.ARGB8888)

	strong.set(NewKey("small"), small, false)
	strong.set(NewKey("big"), big, false)
	assert.Equal(t, small.ByteCount()+big.ByteCount(), strong.bytes())
	assert.Equal(t, 2, strong.length())

	// Re-set with a different bitmap recomputes the entry size.
	strong.set(NewKey("small"), bitmap.New(3, 3, bitmap.Alpha8), false)
	assert.Equal(t, int64(9)+big.ByteCount(), strong.bytes())

	assert.True(t, strong.remove(NewKey("big")))
	assert.False(t, strong.remove(NewKey("big")))
	assert.Equal(t, int64(9), strong.bytes())
}

func TestStrong_SharedBitmapCountedOnce(t *testing.T) {
	t.Parallel()

	_, strong, _ := newTiers(t, Options{MaxSize: Unbounded})
	b := newBitmap()

	strong.set(NewKey("a"), b, false)
	strong.set(NewKey("b"), b, false)
	strong.set(NewKey("b"), b, false)
	assert.Equal(t, int64(defaultBitmapSize), strong.bytes())
	assert.Equal(t, 2, strong.length())

	strong.remove(NewKey("a"))
	assert.Equal(t, int64(defaultBitmapSize), strong.bytes())
	strong.remove(NewKey("b"))
	assert.Zero(t, strong.bytes())
}

func TestStrong_ReplaceRemoveClearDoNotDemote(t *testing.T) {
	t.Parallel()

	weak, strong, _ := newTiers(t, Options{MaxSize: Unbounded})
	old, cur, other := newBitmap(), newBitmap(), newBitmap()

	strong.set(NewKey("a"), old, false)
	strong.set(NewKey("a"), cur, false)
	strong.set(NewKey("b"), other, false)
	strong.remove(NewKey("b"))
	strong.clear()

	assert.Zero(t, weak.length())
	assert.Zero(t, strong.bytes())
	assert.Zero(t, strong.length())
}

// Equal-recency ties break by insertion order: the oldest goes first.
func TestStrong_EvictionOrder(t *testing.T) {
	t.Parallel()

	var order []string
	weak, strong, _ := newTiers(t, Options{
		MaxSize: 3 * defaultBitmapSize,
		OnEvict: func(k Key, _ *bitmap.Bitmap, _ EvictReason) { order = append(order, k.Base()) },
	})
	bitmaps := map[string]*bitmap.Bitmap{}
	for _, k := range []string{"a", "b", "c"} {
		bitmaps[k] = newBitmap()
		strong.set(NewKey(k), bitmaps[k], false)
	}
	_, ok := strong.get(NewKey("a"))
	require.True(t, ok)

	bitmaps["d"] = newBitmap()
	strong.set(NewKey("d"), bitmaps["d"], false)
	bitmaps["e"] = newBitmap()
	strong.set(NewKey("e"), bitmaps["e"], false)

	assert.Equal(t, []string{"b", "c"}, order)
	assert.Equal(t, 2, weak.length())
	for _, k := range []string{"a", "d", "e"} {
		_, ok := strong.get(NewKey(k))
		assert.True(t, ok, "key %q must be resident", k)
	}
	runtime.KeepAlive(bitmaps)
}

func TestStrong_ResizeShrinkTrimsEagerly(t *testing.T) {
	t.Parallel()

	weak, strong, _ := newTiers(t, Options{MaxSize: Unbounded})
	bitmaps := make([]*bitmap.Bitmap, 5)
	for i := range bitmaps {
		bitmaps[i] = newBitmap()
		strong.set(NewKey(string(rune('a'+i))), bitmaps[i], false)
	}

	strong.resize(2 * defaultBitmapSize)

	assert.Equal(t, int64(2*defaultBitmapSize), strong.budget())
	assert.LessOrEqual(t, strong.bytes(), strong.budget())
	assert.Equal(t, 2, strong.length())
	assert.Equal(t, 3, weak.length())

	strong.resize(0)
	assert.Zero(t, strong.bytes())
	assert.Equal(t, 5, weak.length())
	runtime.KeepAlive(bitmaps)
}

func TestStrong_RecycledBitmaps(t *testing.T) {
	t.Parallel()

	weak, strong, _ := newTiers(t, Options{MaxSize: Unbounded})
	recycled := newBitmap()
	recycled.Recycle()

	strong.set(NewKey("r"), recycled, false)
	strong.set(NewKey("nil"), nil, false)
	assert.Zero(t, strong.length())

	live := newBitmap()
	strong.set(NewKey("l"), live, true)
	live.Recycle()
	_, ok := strong.get(NewKey("l"))
	assert.False(t, ok)
	assert.Zero(t, strong.length())
	assert.Zero(t, strong.bytes())
	assert.Zero(t, weak.length(), "a recycled bitmap is dropped, not demoted")
}

func TestStrong_ZeroBudgetKeepsNothing(t *testing.T) {
	t.Parallel()

	weak, strong, _ := newTiers(t, Options{MaxSize: 0})
	b := newBitmap()
	strong.set(NewKey("a"), b, false)

	assert.Zero(t, strong.length())
	v, ok := weak.get(NewKey("a"))
	require.True(t, ok)
	assert.Same(t, b, v.Bitmap)
}

func TestStrong_OversizeReplacementIsDropped(t *testing.T) {
	t.Parallel()

	weak, strong, _ := newTiers(t, Options{MaxSize: defaultBitmapSize})
	small := bitmap.New(2, 2, bitmap.ARGB8888)
	big := bitmap.New(20, 20, bitmap.ARGB8888)

	strong.set(NewKey("a"), small, false)
	strong.set(NewKey("a"), big, false)

	assert.Zero(t, strong.length())
	assert.Zero(t, strong.bytes())
	_, ok := weak.get(NewKey("a"))
	assert.False(t, ok, "an oversize replacement is neither cached nor demoted")

	strong.set(NewKey("b"), big, false)
	v, ok := weak.get(NewKey("b"))
	require.True(t, ok, "an oversize first insert is kept weakly")
	assert.Same(t, big, v.Bitmap)
	runtime.KeepAlive(small)
	runtime.KeepAlive(big)
}
