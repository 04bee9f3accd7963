package cache

import "github.com/IvanBrykalov/bitmapcache/bitmap"

// ExtraIsSampled is the Value extra recording whether the bitmap was
// downsampled during decode (bool).
const ExtraIsSampled = "is_sampled"

// Value is a cached bitmap plus side metadata. The cache never decodes;
// a Value only carries an already decoded result. Extras are copied on the
// way in and on the way out, so callers may mutate the maps they hold.
type Value struct {
	Bitmap *bitmap.Bitmap
	Extras map[string]any
}

// NewValue wraps b with the is-sampled extra set.
func NewValue(b *bitmap.Bitmap, isSampled bool) Value {
	return Value{Bitmap: b, Extras: sampledExtras(isSampled)}
}

// IsSampled reports the ExtraIsSampled flag (false when absent).
func (v Value) IsSampled() bool {
	s, _ := v.Extras[ExtraIsSampled].(bool)
	return s
}

func sampledExtras(isSampled bool) map[string]any {
	return map[string]any{ExtraIsSampled: isSampled}
}
