package cache

import (
	"sort"
	"strconv"
	"strings"
)

// Key identifies a cached bitmap: the base request fingerprint plus
// string qualifiers such as transformation parameters or target size.
//
// Key is an immutable, comparable value; use it directly as a map key.
// Two keys are equal iff their bases and full extras mappings are equal.
type Key struct {
	base string
	// extras is a canonical encoding of the qualifier map, sorted by name,
	// so that struct equality matches map equality.
	extras string
}

// NewKey returns a key with no extras.
func NewKey(base string) Key { return Key{base: base} }

// NewKeyWithExtras returns a key qualified by extras. The map is copied;
// later changes to it do not affect the key.
func NewKeyWithExtras(base string, extras map[string]string) Key {
	return Key{base: base, extras: encodeExtras(extras)}
}

// Base returns the base fingerprint.
func (k Key) Base() string { return k.base }

// Extras returns a fresh copy of the qualifiers (nil when there are none).
func (k Key) Extras() map[string]string { return decodeExtras(k.extras) }

// String renders the key for logs, e.g. `img.png{"size"="64x64"}`.
func (k Key) String() string {
	if k.extras == "" {
		return k.base
	}
	return k.base + "{" + k.extras + "}"
}

// encodeExtras writes `"name"="value"` pairs joined by commas, sorted by name.
// Quoting makes the encoding unambiguous for arbitrary strings.
func encodeExtras(m map[string]string) string {
	if len(m) == 0 {
		return ""
	}
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	for i, name := range names {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.Quote(name))
		sb.WriteByte('=')
		sb.WriteString(strconv.Quote(m[name]))
	}
	return sb.String()
}

func decodeExtras(s string) map[string]string {
	if s == "" {
		return nil
	}
	m := make(map[string]string)
	for s != "" {
		name, rest, ok := unquotePrefix(s)
		if !ok || !strings.HasPrefix(rest, "=") {
			return m
		}
		value, rest, ok := unquotePrefix(rest[1:])
		if !ok {
			return m
		}
		m[name] = value
		s = strings.TrimPrefix(rest, ",")
	}
	return m
}

func unquotePrefix(s string) (string, string, bool) {
	q, err := strconv.QuotedPrefix(s)
	if err != nil {
		return "", s, false
	}
	v, err := strconv.Unquote(q)
	if err != nil {
		return "", s, false
	}
	return v, s[len(q):], true
}
