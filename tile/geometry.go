// Package tile provides the 8x8 tile addressing shared by every tiled
// buffer in tilesync.
//
// An image of logical size W x H is padded up to multiples of 8 in both
// directions and split into 8x8 tiles. Tiles are stored row-major and the
// 64 pixels of a tile are stored scanline by scanline, so pixel (x, y) lives
// at offset tileIdx*64 + (y&7)*8 + (x&7).
//
// Key types:
//
//   - Geometry: aligned dimensions and linear/tiled address conversion
//   - Mask: one 64-bit active-pixel mask per tile
//   - Table: a concurrent subset of tiles used for partial operations
package tile

// Tile size constants.
const (
	// Size is the width and height of a tile in pixels.
	Size = 8

	// Pixels is the number of pixels in a tile, one bit per pixel in a mask.
	Pixels = Size * Size

	// Full is a tile mask with every pixel active.
	Full = ^uint64(0)
)

// Geometry maps a logical image size onto the 8x8 tile layout.
//
// The zero value describes an empty image with no tiles.
type Geometry struct {
	width  int
	height int

	alignedWidth  int
	alignedHeight int

	tilesX int
	tilesY int
}

// NewGeometry returns the tile layout for a width x height image.
// Negative dimensions are treated as zero.
func NewGeometry(width, height int) Geometry {
	var g Geometry
	g.Init(width, height)
	return g
}

// Init recomputes the layout for a new logical size.
func (g *Geometry) Init(width, height int) {
	width = max(width, 0)
	height = max(height, 0)

	g.width = width
	g.height = height
	g.alignedWidth = Align(width)
	g.alignedHeight = Align(height)
	g.tilesX = g.alignedWidth >> 3
	g.tilesY = g.alignedHeight >> 3
}

// Align rounds n up to the next multiple of the tile size.
func Align(n int) int {
	return (n + Size - 1) &^ (Size - 1)
}

// Width returns the logical image width.
func (g Geometry) Width() int { return g.width }

// Height returns the logical image height.
func (g Geometry) Height() int { return g.height }

// AlignedWidth returns the width padded to a multiple of 8.
func (g Geometry) AlignedWidth() int { return g.alignedWidth }

// AlignedHeight returns the height padded to a multiple of 8.
func (g Geometry) AlignedHeight() int { return g.alignedHeight }

// TilesX returns the number of tile columns.
func (g Geometry) TilesX() int { return g.tilesX }

// TilesY returns the number of tile rows.
func (g Geometry) TilesY() int { return g.tilesY }

// Tiles returns the total number of tiles.
func (g Geometry) Tiles() int { return g.tilesX * g.tilesY }

// PixelCount returns the number of pixels in the padded layout.
// Every tiled buffer of this geometry holds exactly PixelCount entries.
func (g Geometry) PixelCount() int { return g.Tiles() << 6 }

// SameSize reports whether g and other describe the same logical size.
func (g Geometry) SameSize(other Geometry) bool {
	return g.width == other.width && g.height == other.height
}

// TileIndex returns the index of the tile containing pixel (x, y).
func (g Geometry) TileIndex(x, y int) int {
	return (y>>3)*g.tilesX + (x >> 3)
}

// TileOrigin returns the pixel coordinates of the top-left pixel of a tile.
func (g Geometry) TileOrigin(tileIdx int) (x, y int) {
	if g.tilesX == 0 {
		return 0, 0
	}
	return (tileIdx % g.tilesX) << 3, (tileIdx / g.tilesX) << 3
}

// LinearToTiled converts scanline coordinates into a tiled buffer offset.
// Coordinates must lie inside the aligned layout.
func (g Geometry) LinearToTiled(x, y int) int {
	return g.TileIndex(x, y)<<6 | (y&7)<<3 | (x & 7)
}

// TiledToLinear converts a tiled buffer offset back into scanline
// coordinates. ok is false when the pixel lies in the padding beyond the
// logical width or height, or the offset is outside the layout.
func (g Geometry) TiledToLinear(offset int) (x, y int, ok bool) {
	if offset < 0 || offset >= g.PixelCount() {
		return 0, 0, false
	}
	tx, ty := g.TileOrigin(offset >> 6)
	pix := offset & 63
	x = tx + pix&7
	y = ty + pix>>3
	return x, y, x < g.width && y < g.height
}

// TileBounds returns the logical pixel rectangle covered by a tile,
// clipped to the image. w or h is zero for tiles entirely in the padding.
func (g Geometry) TileBounds(tileIdx int) (x, y, w, h int) {
	x, y = g.TileOrigin(tileIdx)
	w = min(Size, g.width-x)
	h = min(Size, g.height-y)
	return x, y, max(w, 0), max(h, 0)
}

// ValidMask returns the mask of pixels of a tile that lie inside the
// logical image. Interior tiles return Full.
func (g Geometry) ValidMask(tileIdx int) uint64 {
	_, _, w, h := g.TileBounds(tileIdx)
	if w == Size && h == Size {
		return Full
	}
	row := uint64(1)<<w - 1
	var m uint64
	for py := range h {
		m |= row << (py << 3)
	}
	return m
}
