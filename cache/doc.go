// Package cache provides a two-tier, in-process memory cache for decoded
// bitmaps, keyed by a request fingerprint.
//
// Design
//
//   - Strong tier: a map[Key]*node plus an intrusive MRU↔LRU doubly linked
//     list under one RWMutex. Entries are retained until evicted by policy.
//     The byte budget (Options.MaxSize) is enforced eagerly: Set and Resize
//     trim LRU entries before returning, so no caller ever observes the tier
//     over budget. Eviction order is strict recency.
//
//   - Demotion: every entry trimmed for capacity or by TrimMemory is handed
//     to the weak tier
//     instead of being dropped, so a bitmap still shown on screen can be
//     recovered. Explicit Remove, Clear and replacement by Set never demote.
//
//   - Weak tier: per key, an ordered list of weak.Pointer entries. Each entry
//     registers a runtime cleanup on its bitmap and disappears once the
//     bitmap is unreachable. The weak pointer is the entry's identity, so a
//     bitmap stored twice under one key is kept once and removed once.
//
//   - Accounting: Size reports the strong tier only. A bitmap instance stored
//     under several keys is counted once.
//
//   - Recycled bitmaps (bitmap.Bitmap.Recycle) are never returned and never
//     admitted to the strong tier.
//
//   - Metrics: Options.Metrics receives Hit/Miss/Evict/Size/WeakSize signals.
//     By default NoopMetrics is used; see package metrics/prom.
//
// Basic usage
//
//	c := cache.New(cache.Options{MaxSize: 64 << 20})
//	key := cache.NewKeyWithExtras("https://example.com/a.png", map[string]string{"size": "128x128"})
//	c.Set(key, cache.NewValue(bmp, false))
//	if v, ok := c.Get(key); ok {
//	    draw(v.Bitmap)
//	}
//
// Memory pressure
//
//	c.TrimMemory(cache.TrimRunningLow) // halve the strong tier
//	c.TrimMemory(cache.TrimComplete)   // demote everything to the weak tier
//
// Thread-safety & complexity
//
// All methods are safe for concurrent use. Strong tier operations are O(1)
// expected plus O(evicted) for trimming; weak tier operations are linear in
// the number of entries stored under one key, which is usually one.
// Lock order is strong then weak; runtime cleanups take only the weak lock.
package cache
