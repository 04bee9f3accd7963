package cache

import (
	"maps"
	"runtime"
	"slices"
	"sync"
	"weak"

	"go.uber.org/zap"

	"github.com/IvanBrykalov/bitmapcache/bitmap"
)

// weakEntry holds a bitmap without keeping it alive. The weak pointer is
// also the entry's identity token: pointers made from the same instance
// compare equal, even after the instance is collected.
type weakEntry struct {
	ref     weak.Pointer[bitmap.Bitmap]
	extras  map[string]any // owned copy
	size    int64
	cleanup runtime.Cleanup
}

// weakToken is the cleanup argument. It must never reference the bitmap
// strongly, or the cleanup would keep its own target alive.
type weakToken struct {
	key Key
	ref weak.Pointer[bitmap.Bitmap]
}

// identity counts the weak entries sharing one bitmap instance so that
// bytes are accounted once per instance.
type identity struct {
	refs int
	size int64
}

// weakCache maps a key to the weakly held bitmaps stored under it.
// Entries are removed as soon as the runtime reports their bitmap
// unreachable (runtime.AddCleanup), and lazily if a lookup sees one first.
type weakCache struct {
	// ---- guarded by mu ----
	mu    sync.Mutex
	m     map[Key][]*weakEntry // oldest first
	ids   map[weak.Pointer[bitmap.Bitmap]]*identity
	len   int
	bytes int64

	disabled bool
	metrics  Metrics
	log      *zap.Logger
}

func newWeakCache(opt Options) *weakCache {
	return &weakCache{
		m:        make(map[Key][]*weakEntry),
		ids:      make(map[weak.Pointer[bitmap.Bitmap]]*identity),
		disabled: opt.DisableWeak,
		metrics:  opt.Metrics,
		log:      opt.Logger,
	}
}

// get returns the newest live, non-recycled bitmap stored under k.
// Entries whose bitmap is already gone are pruned on the way.
func (w *weakCache) get(k Key) (Value, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	pruned := false
	defer func() {
		if pruned {
			w.reportLocked()
		}
	}()

	entries := w.m[k]
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		b := e.ref.Value()
		if b == nil {
			w.deleteLocked(k, i)
			w.metrics.Evict(EvictReclaimed)
			pruned = true
			entries = w.m[k]
			continue
		}
		if b.IsRecycled() {
			continue
		}
		return Value{Bitmap: b, Extras: maps.Clone(e.extras)}, true
	}
	return Value{}, false
}

// set appends a weak entry for b under k. Storing the same instance under
// the same key twice is a no-op.
func (w *weakCache) set(k Key, b *bitmap.Bitmap, isSampled bool, size int64) {
	w.put(k, b, sampledExtras(isSampled), size)
}

// put is set with the full extras map, which is copied.
func (w *weakCache) put(k Key, b *bitmap.Bitmap, extras map[string]any, size int64) {
	if w.disabled || b == nil || b.IsRecycled() {
		return
	}
	ref := weak.Make(b)

	w.mu.Lock()
	defer w.mu.Unlock()

	for _, e := range w.m[k] {
		if e.ref == ref {
			return
		}
	}

	e := &weakEntry{ref: ref, extras: maps.Clone(extras), size: size}
	// Registered under mu: a cleanup that fires right away blocks on mu
	// until the entry is visible, then removes it.
	e.cleanup = runtime.AddCleanup(b, w.reclaim, weakToken{key: k, ref: ref})
	w.m[k] = append(w.m[k], e)
	w.track(e)
	w.reportLocked()
}

// remove deletes the entry for exactly (k, b). It reports false when that
// pair is not stored, leaving every other entry untouched.
func (w *weakCache) remove(k Key, b *bitmap.Bitmap) bool {
	if b == nil {
		return false
	}
	ref := weak.Make(b)

	w.mu.Lock()
	defer w.mu.Unlock()

	i := w.indexLocked(k, ref)
	if i < 0 {
		return false
	}
	w.deleteLocked(k, i)
	w.reportLocked()
	return true
}

// removeAll deletes every entry stored under k.
func (w *weakCache) removeAll(k Key) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	entries, ok := w.m[k]
	if !ok {
		return false
	}
	for _, e := range entries {
		e.cleanup.Stop()
		w.untrack(e)
	}
	w.len -= len(entries)
	delete(w.m, k)
	w.reportLocked()
	return true
}

func (w *weakCache) clear() {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, entries := range w.m {
		for _, e := range entries {
			e.cleanup.Stop()
		}
	}
	w.m = make(map[Key][]*weakEntry)
	w.ids = make(map[weak.Pointer[bitmap.Bitmap]]*identity)
	w.len = 0
	w.bytes = 0
	w.reportLocked()
}

// prune drops entries whose bitmap is gone but whose cleanup has not run yet.
func (w *weakCache) prune() {
	w.mu.Lock()
	defer w.mu.Unlock()

	for k := range w.m {
		for i := len(w.m[k]) - 1; i >= 0; i-- {
			if w.m[k][i].ref.Value() == nil {
				w.deleteLocked(k, i)
				w.metrics.Evict(EvictReclaimed)
			}
		}
	}
	w.reportLocked()
}

func (w *weakCache) length() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.len
}

// size returns the bytes held by distinct bitmap instances.
func (w *weakCache) size() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.bytes
}

// reclaim runs on the runtime cleanup goroutine once a bitmap is unreachable.
// It only ever takes the weak lock, so it cannot deadlock with a strong tier
// trim that is demoting into this tier.
func (w *weakCache) reclaim(tok weakToken) {
	w.mu.Lock()
	defer w.mu.Unlock()

	i := w.indexLocked(tok.key, tok.ref)
	if i < 0 {
		return
	}
	w.deleteLocked(tok.key, i)
	w.metrics.Evict(EvictReclaimed)
	w.reportLocked()
	w.log.Debug("weak cache entry reclaimed", zap.Stringer("key", tok.key))
}

// -------------------- internals (mu held) --------------------

func (w *weakCache) indexLocked(k Key, ref weak.Pointer[bitmap.Bitmap]) int {
	for i, e := range w.m[k] {
		if e.ref == ref {
			return i
		}
	}
	return -1
}

// deleteLocked removes entry i of k and stops its cleanup. Stopping a
// cleanup that is already queued has no effect; reclaim then finds nothing.
func (w *weakCache) deleteLocked(k Key, i int) {
	entries := w.m[k]
	e := entries[i]
	e.cleanup.Stop()
	w.untrack(e)
	w.len--

	entries = slices.Delete(entries, i, i+1)
	if len(entries) == 0 {
		delete(w.m, k)
		return
	}
	w.m[k] = entries
}

func (w *weakCache) track(e *weakEntry) {
	w.len++
	id := w.ids[e.ref]
	if id == nil {
		id = &identity{size: e.size}
		w.ids[e.ref] = id
		w.bytes += e.size
	}
	id.refs++
}

func (w *weakCache) untrack(e *weakEntry) {
	id := w.ids[e.ref]
	if id == nil {
		return
	}
	id.refs--
	if id.refs <= 0 {
		delete(w.ids, e.ref)
		w.bytes -= id.size
	}
}

func (w *weakCache) reportLocked() { w.metrics.WeakSize(w.len, w.bytes) }
