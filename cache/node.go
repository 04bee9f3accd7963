package cache

import (
	"maps"

	"github.com/IvanBrykalov/bitmapcache/bitmap"
)

// node is an intrusive doubly linked list element owned by the strong tier.
// It stores the key and bitmap alongside list links and the accounting
// metadata fixed at insertion.
type node struct {
	key    Key
	bmp    *bitmap.Bitmap
	extras map[string]any // owned copy; never handed out

	// Byte size computed once when the entry was inserted.
	size int64

	// Intrusive list links: head is MRU, tail is LRU.
	prev *node
	next *node
}

func (n *node) value() Value { return Value{Bitmap: n.bmp, Extras: maps.Clone(n.extras)} }
