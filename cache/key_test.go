package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKey_Equality(t *testing.T) {
	t.Parallel()

	a := NewKeyWithExtras("img", map[string]string{"size": "64x64", "transformation.0": "circle"})
	b := NewKeyWithExtras("img", map[string]string{"transformation.0": "circle", "size": "64x64"})
	assert.Equal(t, a, b, "extras order must not matter")

	assert.NotEqual(t, a, NewKeyWithExtras("img", map[string]string{"size": "64x64"}))
	assert.NotEqual(t, a, NewKeyWithExtras("other", map[string]string{"size": "64x64", "transformation.0": "circle"}))
	assert.Equal(t, NewKey("img"), NewKeyWithExtras("img", nil))
	assert.Equal(t, NewKey("img"), NewKeyWithExtras("img", map[string]string{}))

	m := map[Key]int{a: 1}
	assert.Equal(t, 1, m[b])
}

// Separators inside names or values must not make two different
// mappings encode to the same key.
func TestKey_EncodingIsUnambiguous(t *testing.T) {
	t.Parallel()

	a := NewKeyWithExtras("img", map[string]string{"a": `1","b"="2`})
	b := NewKeyWithExtras("img", map[string]string{"a": "1", "b": "2"})
	assert.NotEqual(t, a, b)
}

func TestKey_ExtrasCopy(t *testing.T) {
	t.Parallel()

	src := map[string]string{"size": "64x64", "quote": `"=,`}
	k := NewKeyWithExtras("img", src)
	src["size"] = "1x1"

	got := k.Extras()
	assert.Equal(t, map[string]string{"size": "64x64", "quote": `"=,`}, got)

	got["size"] = "mutated"
	assert.Equal(t, "64x64", k.Extras()["size"])
	assert.Nil(t, NewKey("img").Extras())
}

func TestKey_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "img", NewKey("img").String())
	assert.Equal(t, `img{"a"="1","b"="2"}`, NewKeyWithExtras("img", map[string]string{"b": "2", "a": "1"}).String())
	assert.Equal(t, "img", NewKey("img").Base())
}

func TestValue_IsSampled(t *testing.T) {
	t.Parallel()

	assert.True(t, NewValue(nil, true).IsSampled())
	assert.False(t, NewValue(nil, false).IsSampled())
	assert.False(t, Value{}.IsSampled())
	assert.False(t, Value{Extras: map[string]any{ExtraIsSampled: "yes"}}.IsSampled())
}
