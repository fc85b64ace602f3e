package tile

import (
	"errors"
	"math/bits"
)

// ErrSizeMismatch is returned when two masks of different logical size are
// combined.
var ErrSizeMismatch = errors.New("tile: mask size mismatch")

// Mask records which pixels of a tiled buffer hold contributed data.
//
// It keeps one uint64 per tile. Bit i of a tile mask is pixel i of that
// tile in scanline order, so bit 0 is the top-left pixel and bit 63 the
// bottom-right one.
//
// Thread safety: a Mask is not safe for concurrent mutation of the same
// tile. Workers operating on disjoint tiles need no synchronization.
type Mask struct {
	geom  Geometry
	tiles []uint64
}

// NewMask returns an all-zero mask for a width x height image.
func NewMask(width, height int) *Mask {
	m := &Mask{}
	m.Init(width, height)
	return m
}

// Init resizes the mask for a new logical size.
// If the size is unchanged this is a no-op and the current bits are kept.
// Otherwise the mask is reallocated and cleared.
func (m *Mask) Init(width, height int) {
	g := NewGeometry(width, height)
	if m.tiles != nil && m.geom.SameSize(g) {
		return
	}
	m.geom = g
	m.tiles = make([]uint64, g.Tiles())
}

// Geometry returns the tile layout of the mask.
func (m *Mask) Geometry() Geometry { return m.geom }

// Width returns the logical image width.
func (m *Mask) Width() int { return m.geom.width }

// Height returns the logical image height.
func (m *Mask) Height() int { return m.geom.height }

// Tiles returns the number of tiles.
func (m *Mask) Tiles() int { return len(m.tiles) }

// Reset clears every tile.
func (m *Mask) Reset() {
	clear(m.tiles)
}

// ResetTiles clears only the tiles in t. A nil table clears every tile.
func (m *Mask) ResetTiles(t *Table) {
	if t == nil {
		m.Reset()
		return
	}
	t.ForEach(func(tileIdx int) {
		if tileIdx < len(m.tiles) {
			m.tiles[tileIdx] = 0
		}
	})
}

// TileMask returns the active bits of one tile.
func (m *Mask) TileMask(tileIdx int) uint64 { return m.tiles[tileIdx] }

// SetTileMask replaces the active bits of one tile.
func (m *Mask) SetTileMask(tileIdx int, mask uint64) { m.tiles[tileIdx] = mask }

// OrTile adds bits to one tile.
func (m *Mask) OrTile(tileIdx int, mask uint64) { m.tiles[tileIdx] |= mask }

// Or merges src into m. Both masks must have the same logical size.
func (m *Mask) Or(src *Mask) error {
	if !m.geom.SameSize(src.geom) {
		return ErrSizeMismatch
	}
	for i, v := range src.tiles {
		m.tiles[i] |= v
	}
	return nil
}

// CopyFrom makes m an exact copy of src, resizing as needed.
func (m *Mask) CopyFrom(src *Mask) {
	m.Init(src.geom.width, src.geom.height)
	copy(m.tiles, src.tiles)
}

// Clone returns an independent copy of m.
func (m *Mask) Clone() *Mask {
	c := &Mask{}
	c.CopyFrom(m)
	return c
}

// IsActive reports whether the pixel at a tiled offset is active.
func (m *Mask) IsActive(offset int) bool {
	return m.tiles[offset>>6]&(1<<(offset&63)) != 0
}

// IsEmpty reports whether no pixel is active.
func (m *Mask) IsEmpty() bool {
	for _, v := range m.tiles {
		if v != 0 {
			return false
		}
	}
	return true
}

// ActiveTiles returns the number of tiles with at least one active pixel.
func (m *Mask) ActiveTiles() int {
	n := 0
	for _, v := range m.tiles {
		if v != 0 {
			n++
		}
	}
	return n
}

// ActivePixels returns the total number of active pixels.
func (m *Mask) ActivePixels() int {
	n := 0
	for _, v := range m.tiles {
		n += bits.OnesCount64(v)
	}
	return n
}

// Equal reports whether both masks have the same size and bits.
func (m *Mask) Equal(other *Mask) bool {
	if !m.geom.SameSize(other.geom) || len(m.tiles) != len(other.tiles) {
		return false
	}
	for i, v := range m.tiles {
		if other.tiles[i] != v {
			return false
		}
	}
	return true
}

// CrawlTiles calls fn for each tile with at least one active pixel, in
// ascending tile order. Iteration stops early when fn returns false.
func (m *Mask) CrawlTiles(fn func(tileIdx int, mask uint64) bool) {
	for i, v := range m.tiles {
		if v == 0 {
			continue
		}
		if !fn(i, v) {
			return
		}
	}
}

// CrawlPixels calls fn with the tiled offset of every active pixel, tile
// by tile in ascending order.
func (m *Mask) CrawlPixels(fn func(offset int)) {
	for i, v := range m.tiles {
		if v == 0 {
			continue
		}
		base := i << 6
		Crawl(v, func(pix int) { fn(base + pix) })
	}
}

// Crawl calls fn for every set bit of a tile mask in ascending pixel order.
// Empty remaining scanlines end the walk and an exhausted scanline skips
// to the next one, so cost is bounded by the populated rows.
//
// This order is the order payload bytes are laid out on the wire and must
// not change.
func Crawl(mask uint64, fn func(pix int)) {
	for y := 0; y < Size; y++ {
		pix := y << 3
		rest := mask >> pix
		if rest == 0 {
			return
		}
		line := rest & 0xff
		for line != 0 {
			if line&1 != 0 {
				fn(pix)
			}
			pix++
			line >>= 1
		}
	}
}
