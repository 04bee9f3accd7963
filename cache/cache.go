package cache

import (
	"go.uber.org/zap"
)

// memoryCache joins the strong and weak tiers behind the Cache interface.
// It is the only way callers reach either tier.
type memoryCache struct {
	strong *strongCache
	weak   *weakCache

	metrics Metrics
	log     *zap.Logger
}

// New constructs a two-tier cache with the provided Options.
// Defaults:
//   - nil Metrics -> NoopMetrics
//   - nil Logger  -> zap.NewNop()
//
// It panics if MaxSize is not positive.
func New(opt Options) Cache {
	if opt.MaxSize <= 0 {
		panic("MaxSize must be > 0")
	}
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}
	if opt.Logger == nil {
		opt.Logger = zap.NewNop()
	}

	weak := newWeakCache(opt)
	return &memoryCache{
		strong:  newStrongCache(opt, weak),
		weak:    weak,
		metrics: opt.Metrics,
		log:     opt.Logger,
	}
}

// ---- Cache implementation ----

// Get checks the strong tier first, then the weak tier.
func (c *memoryCache) Get(k Key) (Value, bool) {
	if v, ok := c.strong.get(k); ok {
		c.metrics.Hit(TierStrong)
		return v, true
	}
	if v, ok := c.weak.get(k); ok {
		c.metrics.Hit(TierWeak)
		return v, true
	}
	c.metrics.Miss()
	return Value{}, false
}

// Set writes v to the strong tier, then drops every weak entry for k so a
// stale bitmap can no longer be recovered. A bitmap too large for the
// strong budget is therefore not cached at all.
func (c *memoryCache) Set(k Key, v Value) {
	if v.Bitmap == nil || v.Bitmap.IsRecycled() {
		c.log.Debug("ignoring set of recycled bitmap", zap.Stringer("key", k))
		return
	}
	c.strong.put(k, v.Bitmap, v.Extras)
	c.weak.removeAll(k)
}

// Remove deletes k from both tiers.
func (c *memoryCache) Remove(k Key) bool {
	removedStrong := c.strong.remove(k)
	removedWeak := c.weak.removeAll(k)
	return removedStrong || removedWeak
}

func (c *memoryCache) Clear() {
	c.strong.clear()
	c.weak.clear()
}

func (c *memoryCache) Size() int64 { return c.strong.bytes() }

func (c *memoryCache) MaxSize() int64 { return c.strong.budget() }

func (c *memoryCache) Resize(maxSize int64) {
	if maxSize < 0 {
		maxSize = 0
	}
	c.strong.resize(maxSize)
}

// TrimMemory follows the host's memory-pressure levels: background and worse
// empty the strong tier, running-low levels halve it. Either way the released
// bitmaps are demoted, and dead weak entries are swept.
func (c *memoryCache) TrimMemory(level TrimLevel) {
	switch {
	case level >= TrimBackground:
		c.strong.trim(func(int64) int64 { return -1 })
	case level == TrimRunningLow || level == TrimRunningCritical:
		c.strong.trim(func(size int64) int64 { return size / 2 })
	}
	c.weak.prune()
	c.log.Debug("trimmed memory cache",
		zap.Int("level", int(level)),
		zap.Int64("size", c.strong.bytes()),
		zap.Int("weak_entries", c.weak.length()),
	)
}

func (c *memoryCache) Len() int { return c.strong.length() }

func (c *memoryCache) WeakLen() int { return c.weak.length() }
