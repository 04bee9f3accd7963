package cache

import (
	"math"

	"go.uber.org/zap"

	"github.com/IvanBrykalov/bitmapcache/bitmap"
)

// Unbounded is a MaxSize that never triggers capacity trimming.
const Unbounded int64 = math.MaxInt64

// Tier names the cache tier that served a hit.
type Tier int

const (
	// TierStrong is the bounded LRU tier.
	TierStrong Tier = iota
	// TierWeak is the weak-reference tier.
	TierWeak
)

func (t Tier) String() string {
	if t == TierWeak {
		return "weak"
	}
	return "strong"
}

// EvictReason explains why an entry left a tier without an explicit Remove.
type EvictReason int

const (
	// EvictCapacity: trimmed from the strong tier (LRU) and demoted to the weak tier.
	EvictCapacity EvictReason = iota
	// EvictOversize: larger than the whole strong budget, so never admitted to the strong tier.
	EvictOversize
	// EvictReclaimed: dropped from the weak tier after its bitmap was garbage collected.
	EvictReclaimed
	// EvictTrim: released by TrimMemory and demoted to the weak tier.
	EvictTrim
)

func (r EvictReason) String() string {
	switch r {
	case EvictOversize:
		return "oversize"
	case EvictReclaimed:
		return "reclaimed"
	case EvictTrim:
		return "trim"
	default:
		return "capacity"
	}
}

// Metrics exposes cache-level observability hooks.
// A NoopMetrics implementation is provided and used by default.
// Hooks may be called with tier locks held; keep them cheap.
type Metrics interface {
	Hit(tier Tier)
	Miss()
	Evict(reason EvictReason)
	// Size reports the strong tier after each mutation.
	Size(entries int, bytes int64)
	// WeakSize reports the weak tier; bytes count each bitmap instance once.
	WeakSize(entries int, bytes int64)
}

// Options configures the cache. MaxSize is required; other defaults are
// applied in New():
//   - nil Metrics => NoopMetrics
//   - nil Logger  => zap.NewNop()
type Options struct {
	// MaxSize is the strong tier budget in bytes and must be > 0.
	// Use Unbounded to disable trimming.
	MaxSize int64

	// DisableWeak turns the weak tier into a no-op; demoted bitmaps are dropped.
	DisableWeak bool

	// OnEvict is called when the strong tier gives up an entry under capacity
	// or memory pressure (EvictCapacity, EvictOversize, EvictTrim). It runs
	// under the strong tier lock: keep it lightweight and never call back
	// into the cache.
	OnEvict func(k Key, b *bitmap.Bitmap, reason EvictReason)

	Metrics Metrics
	Logger  *zap.Logger
}
