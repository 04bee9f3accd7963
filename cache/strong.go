package cache

import (
	"maps"
	"sync"

	"go.uber.org/zap"

	"github.com/IvanBrykalov/bitmapcache/bitmap"
)

// strongCache is the bounded tier: a map plus an intrusive doubly linked
// list (head=MRU, tail=LRU) under a single lock, so eviction order is a
// strict global LRU. Entries trimmed for capacity are demoted to weak.
type strongCache struct {
	// ---- guarded by mu ----
	mu      sync.RWMutex
	m       map[Key]*node
	head    *node // MRU
	tail    *node // LRU
	len     int   // number of resident entries
	size    int64 // bytes, each bitmap instance counted once
	maxSize int64

	// owners counts resident entries per bitmap instance.
	owners map[*bitmap.Bitmap]int

	weak    *weakCache
	onEvict func(Key, *bitmap.Bitmap, EvictReason)
	metrics Metrics
	log     *zap.Logger
}

func newStrongCache(opt Options, weak *weakCache) *strongCache {
	return &strongCache{
		m:       make(map[Key]*node),
		owners:  make(map[*bitmap.Bitmap]int),
		maxSize: opt.MaxSize,
		weak:    weak,
		onEvict: opt.OnEvict,
		metrics: opt.Metrics,
		log:     opt.Logger,
	}
}

// get returns the entry for k and promotes it to MRU. An entry whose bitmap
// was recycled by its owner is dropped and reported as a miss.
func (s *strongCache) get(k Key) (Value, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.m[k]
	if !ok {
		return Value{}, false
	}
	if n.bmp.IsRecycled() {
		s.deleteLocked(n)
		s.reportLocked()
		return Value{}, false
	}
	s.moveToFront(n)
	return n.value(), true
}

// set inserts or replaces k. A replaced entry is dropped, not demoted.
// Recycled bitmaps are ignored.
func (s *strongCache) set(k Key, b *bitmap.Bitmap, isSampled bool) {
	s.put(k, b, sampledExtras(isSampled))
}

// put is set with the full extras map, which is copied.
func (s *strongCache) put(k Key, b *bitmap.Bitmap, extras map[string]any) {
	if b == nil || b.IsRecycled() {
		s.log.Debug("rejected recycled bitmap", zap.Stringer("key", k))
		return
	}
	size := b.ByteCount()

	s.mu.Lock()
	defer s.mu.Unlock()

	old, replaced := s.m[k]
	if replaced {
		s.deleteLocked(old)
	}

	// A bitmap bigger than the whole budget would evict everything and then
	// itself. It is kept weakly only when it does not replace a strong entry.
	if size > s.maxSize {
		s.reportLocked()
		if !replaced {
			s.weak.put(k, b, extras, size)
		}
		s.evicted(k, b, EvictOversize)
		s.log.Debug("bitmap exceeds strong cache budget",
			zap.Stringer("key", k),
			zap.Stringer("bitmap", b.ID()),
			zap.Int64("size", size),
			zap.Int64("max_size", s.maxSize),
			zap.Bool("replaced", replaced),
		)
		return
	}

	n := &node{key: k, bmp: b, extras: maps.Clone(extras), size: size}
	s.m[k] = n
	s.insertFront(n)
	s.trimLocked(s.maxSize, EvictCapacity)
	s.reportLocked()
}

// remove deletes k without demoting it. Returns true if the entry existed.
func (s *strongCache) remove(k Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.m[k]
	if !ok {
		return false
	}
	s.deleteLocked(n)
	s.reportLocked()
	return true
}

// clear drops every entry without demoting any.
func (s *strongCache) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for n := s.head; n != nil; {
		next := n.next
		n.prev, n.next = nil, nil
		n = next
	}
	s.m = make(map[Key]*node)
	s.owners = make(map[*bitmap.Bitmap]int)
	s.head, s.tail = nil, nil
	s.len = 0
	s.size = 0
	s.reportLocked()
}

// resize sets a new budget and trims to it before returning.
func (s *strongCache) resize(maxSize int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.maxSize = maxSize
	s.trimLocked(maxSize, EvictCapacity)
	s.reportLocked()
}

// trim evicts LRU entries until at most target(size) bytes remain, without
// changing the budget. The target is computed under the lock; a negative
// target evicts everything.
func (s *strongCache) trim(target func(size int64) int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.trimLocked(target(s.size), EvictTrim)
	s.reportLocked()
}

func (s *strongCache) bytes() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}

func (s *strongCache) budget() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maxSize
}

func (s *strongCache) length() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.len
}

// -------------------- internals (mu held) --------------------

// trimLocked evicts LRU entries into the weak tier while over limit.
// Bounded by the entry count: every iteration removes one node.
func (s *strongCache) trimLocked(limit int64, reason EvictReason) {
	for s.size > limit {
		n := s.tail
		if n == nil {
			break
		}
		s.deleteLocked(n)
		s.weak.put(n.key, n.bmp, n.extras, n.size)
		s.evicted(n.key, n.bmp, reason)
	}
}

func (s *strongCache) evicted(k Key, b *bitmap.Bitmap, reason EvictReason) {
	s.metrics.Evict(reason)
	if cb := s.onEvict; cb != nil {
		cb(k, b, reason)
	}
}

// insertFront links n at MRU and accounts its bytes in O(1).
func (s *strongCache) insertFront(n *node) {
	n.prev = nil
	n.next = s.head
	if s.head != nil {
		s.head.prev = n
	}
	s.head = n
	if s.tail == nil {
		s.tail = n
	}
	s.len++
	if s.owners[n.bmp] == 0 {
		s.size += n.size
	}
	s.owners[n.bmp]++
}

// moveToFront promotes n to MRU in O(1).
func (s *strongCache) moveToFront(n *node) {
	if n == s.head {
		return
	}
	s.unlink(n)
	n.next = s.head
	if s.head != nil {
		s.head.prev = n
	}
	s.head = n
	if s.tail == nil {
		s.tail = n
	}
}

// deleteLocked removes n from the list and the map and releases its bytes
// once no other key holds the same bitmap.
func (s *strongCache) deleteLocked(n *node) {
	s.unlink(n)
	delete(s.m, n.key)
	s.len--
	if c := s.owners[n.bmp] - 1; c > 0 {
		s.owners[n.bmp] = c
		return
	}
	delete(s.owners, n.bmp)
	s.size -= n.size
	if s.size < 0 {
		s.size = 0
	}
}

func (s *strongCache) unlink(n *node) {
	if n.prev != nil {
		n.prev.next = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	}
	if s.head == n {
		s.head = n.next
	}
	if s.tail == n {
		s.tail = n.prev
	}
	n.prev, n.next = nil, nil
}

func (s *strongCache) reportLocked() { s.metrics.Size(s.len, s.size) }
