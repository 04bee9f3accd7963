package cache

// TrimLevel is a memory-pressure signal forwarded by the host process.
type TrimLevel int

const (
	// TrimRunningLow: the process is running but memory is getting low.
	TrimRunningLow TrimLevel = iota
	// TrimRunningCritical: the process is running and memory is critically low.
	TrimRunningCritical
	// TrimUIHidden: the display layer went to the background.
	TrimUIHidden
	// TrimBackground: the process is idle in the background.
	TrimBackground
	// TrimModerate: the process is a mid-priority kill candidate.
	TrimModerate
	// TrimComplete: the process is among the first to be killed.
	TrimComplete
)

// Cache is a two-tier in-memory bitmap cache: a byte-bounded strong LRU tier
// backed by a weak tier that can recover bitmaps still alive elsewhere.
// All methods are safe for concurrent use by multiple goroutines and return
// only after the cache state is consistent.
type Cache interface {
	// Get probes the strong tier, then the weak tier. A weak hit is returned
	// as is; it is not promoted back into the strong tier.
	Get(k Key) (Value, bool)

	// Set stores v in the strong tier and drops weak entries for k.
	// A nil or recycled bitmap is ignored.
	Set(k Key, v Value)

	// Remove deletes k from both tiers and reports whether either held it.
	Remove(k Key) bool

	// Clear empties both tiers.
	Clear()

	// Size returns the strong tier's current byte usage.
	Size() int64

	// MaxSize returns the strong tier's byte budget.
	MaxSize() int64

	// Resize changes the strong tier budget, trimming before it returns.
	Resize(maxSize int64)

	// TrimMemory releases strong references in response to memory pressure.
	// Released entries are demoted to the weak tier.
	TrimMemory(level TrimLevel)

	// Len returns the number of strong entries.
	Len() int

	// WeakLen returns the number of weak entries, including ones whose
	// reclamation is still pending.
	WeakLen() int
}
