package tile

import (
	"math/bits"
	"sync/atomic"
)

// Table is a set of tile indices used to restrict an operation to part of
// a buffer, for example the tiles touched by one incoming fragment.
//
// The set is an atomic bitmap with one bit per tile, 64 tiles per word, so
// decoders running on several workers can mark tiles without locking.
// A nil *Table is accepted everywhere a table is optional and means
// "every tile".
type Table struct {
	words []atomic.Uint64
	tiles int
}

// NewTable returns an empty table for a buffer of n tiles.
// Returns nil if n is negative.
func NewTable(n int) *Table {
	if n < 0 {
		return nil
	}
	return &Table{
		words: make([]atomic.Uint64, (n+63)/64),
		tiles: n,
	}
}

// TableOf returns a table of n tiles holding the given indices.
// Out of range indices are ignored. Returns nil if n is negative.
func TableOf(n int, ids ...int) *Table {
	t := NewTable(n)
	if t == nil {
		return nil
	}
	for _, id := range ids {
		t.Mark(id)
	}
	return t
}

// Mark adds a tile to the set. Out of range indices are ignored.
func (t *Table) Mark(tileIdx int) {
	if tileIdx < 0 || tileIdx >= t.tiles {
		return
	}
	t.words[tileIdx>>6].Or(1 << (tileIdx & 63))
}

// MarkAll adds every tile.
func (t *Table) MarkAll() {
	full := t.tiles / 64
	for i := range full {
		t.words[i].Store(^uint64(0))
	}
	if rem := t.tiles % 64; rem > 0 {
		t.words[full].Store(uint64(1)<<rem - 1)
	}
}

// Clear removes every tile.
func (t *Table) Clear() {
	for i := range t.words {
		t.words[i].Store(0)
	}
}

// Has reports whether a tile is in the set.
func (t *Table) Has(tileIdx int) bool {
	if tileIdx < 0 || tileIdx >= t.tiles {
		return false
	}
	return t.words[tileIdx>>6].Load()&(1<<(tileIdx&63)) != 0
}

// Tiles returns the size of the buffer the table describes.
func (t *Table) Tiles() int { return t.tiles }

// Count returns the number of tiles in the set.
func (t *Table) Count() int {
	n := 0
	for i := range t.words {
		n += bits.OnesCount64(t.words[i].Load())
	}
	return n
}

// ForEach calls fn for each tile in the set in ascending order.
func (t *Table) ForEach(fn func(tileIdx int)) {
	for wi := range t.words {
		word := t.words[wi].Load()
		for word != 0 {
			b := bits.TrailingZeros64(word)
			fn(wi<<6 + b)
			word &^= 1 << b
		}
	}
}

// IDs returns the tiles in the set in ascending order.
func (t *Table) IDs() []int {
	ids := make([]int, 0, t.Count())
	t.ForEach(func(tileIdx int) { ids = append(ids, tileIdx) })
	return ids
}

// MarkMask adds every tile with at least one active pixel in m.
func (t *Table) MarkMask(m *Mask) {
	m.CrawlTiles(func(tileIdx int, _ uint64) bool {
		t.Mark(tileIdx)
		return true
	})
}
