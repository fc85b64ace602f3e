// Package pixel provides tiled pixel buffers whose element type is chosen
// at run time.
//
// A Buffer is a tagged variant: its Format decides which backing slice is
// allocated, and only the accessor matching that format may be used.
// Calling the wrong accessor panics instead of reinterpreting memory.
package pixel

import (
	"fmt"

	"golang.org/x/image/math/f32"

	"github.com/gogpu/tilesync/tile"
)

// Format identifies the element type of a Buffer.
type Format uint8

// Buffer formats.
const (
	FormatUndef Format = iota
	FormatFloat1
	FormatFloat2
	FormatFloat3
	FormatFloat4
	FormatUint32
	FormatUint64
)

// String returns the format name.
func (f Format) String() string {
	switch f {
	case FormatUndef:
		return "Undef"
	case FormatFloat1:
		return "Float1"
	case FormatFloat2:
		return "Float2"
	case FormatFloat3:
		return "Float3"
	case FormatFloat4:
		return "Float4"
	case FormatUint32:
		return "Uint32"
	case FormatUint64:
		return "Uint64"
	default:
		return fmt.Sprintf("Format(%d)", f)
	}
}

// Components returns the number of float components per pixel for float
// formats, 1 for integer formats and 0 for FormatUndef.
func (f Format) Components() int {
	switch f {
	case FormatFloat1, FormatUint32, FormatUint64:
		return 1
	case FormatFloat2:
		return 2
	case FormatFloat3:
		return 3
	case FormatFloat4:
		return 4
	default:
		return 0
	}
}

// IsFloat reports whether f is one of the float vector formats.
func (f Format) IsFloat() bool {
	return f >= FormatFloat1 && f <= FormatFloat4
}

// FloatFormat returns the float format with n components.
// It panics if n is not in [1, 4].
func FloatFormat(n int) Format {
	if n < 1 || n > 4 {
		panic(fmt.Sprintf("pixel: no float format with %d components", n))
	}
	return FormatFloat1 + Format(n-1)
}

// Buffer is a tiled pixel buffer holding one element per pixel of the
// padded tile layout.
//
// The zero value is an empty FormatUndef buffer.
type Buffer struct {
	format Format
	n      int

	f1  []float32
	f2  []f32.Vec2
	f3  []f32.Vec3
	f4  []f32.Vec4
	u32 []uint32
	u64 []uint64
}

// New returns a zeroed buffer of n pixels.
func New(format Format, n int) Buffer {
	var b Buffer
	b.Setup(format, n)
	return b
}

// Setup prepares the buffer for format and n pixels.
// Storage is kept when neither changes and the function returns false;
// otherwise the old storage is released, a zeroed one allocated, and the
// function returns true. Kept storage is not cleared.
func (b *Buffer) Setup(format Format, n int) bool {
	if b.format == format && b.n == n && b.allocated() {
		return false
	}
	b.Free()
	b.format = format
	b.n = n
	switch format {
	case FormatFloat1:
		b.f1 = make([]float32, n)
	case FormatFloat2:
		b.f2 = make([]f32.Vec2, n)
	case FormatFloat3:
		b.f3 = make([]f32.Vec3, n)
	case FormatFloat4:
		b.f4 = make([]f32.Vec4, n)
	case FormatUint32:
		b.u32 = make([]uint32, n)
	case FormatUint64:
		b.u64 = make([]uint64, n)
	case FormatUndef:
		b.n = 0
	default:
		panic(fmt.Sprintf("pixel: unknown format %v", format))
	}
	return true
}

func (b *Buffer) allocated() bool {
	switch b.format {
	case FormatFloat1:
		return b.f1 != nil
	case FormatFloat2:
		return b.f2 != nil
	case FormatFloat3:
		return b.f3 != nil
	case FormatFloat4:
		return b.f4 != nil
	case FormatUint32:
		return b.u32 != nil
	case FormatUint64:
		return b.u64 != nil
	}
	return false
}

// Free releases the storage. The buffer becomes FormatUndef.
func (b *Buffer) Free() {
	*b = Buffer{}
}

// Format returns the element type tag.
func (b *Buffer) Format() Format { return b.format }

// Len returns the number of pixels.
func (b *Buffer) Len() int { return b.n }

// Float1 returns the backing slice of a FormatFloat1 buffer.
func (b *Buffer) Float1() []float32 {
	b.must(FormatFloat1)
	return b.f1
}

// Float2 returns the backing slice of a FormatFloat2 buffer.
func (b *Buffer) Float2() []f32.Vec2 {
	b.must(FormatFloat2)
	return b.f2
}

// Float3 returns the backing slice of a FormatFloat3 buffer.
func (b *Buffer) Float3() []f32.Vec3 {
	b.must(FormatFloat3)
	return b.f3
}

// Float4 returns the backing slice of a FormatFloat4 buffer.
func (b *Buffer) Float4() []f32.Vec4 {
	b.must(FormatFloat4)
	return b.f4
}

// Uint32 returns the backing slice of a FormatUint32 buffer.
func (b *Buffer) Uint32() []uint32 {
	b.must(FormatUint32)
	return b.u32
}

// Uint64 returns the backing slice of a FormatUint64 buffer.
func (b *Buffer) Uint64() []uint64 {
	b.must(FormatUint64)
	return b.u64
}

func (b *Buffer) must(f Format) {
	if b.format != f {
		panic(fmt.Sprintf("pixel: %v accessor on %v buffer", f, b.format))
	}
}

// Tile returns a view of the 64 pixels of one tile sharing storage with b.
func (b *Buffer) Tile(tileIdx int) Buffer {
	lo, hi := tileIdx<<6, (tileIdx+1)<<6
	v := Buffer{format: b.format, n: tile.Pixels}
	switch b.format {
	case FormatFloat1:
		v.f1 = b.f1[lo:hi:hi]
	case FormatFloat2:
		v.f2 = b.f2[lo:hi:hi]
	case FormatFloat3:
		v.f3 = b.f3[lo:hi:hi]
	case FormatFloat4:
		v.f4 = b.f4[lo:hi:hi]
	case FormatUint32:
		v.u32 = b.u32[lo:hi:hi]
	case FormatUint64:
		v.u64 = b.u64[lo:hi:hi]
	default:
		v.n = 0
	}
	return v
}

// Clear zeroes every pixel.
func (b *Buffer) Clear() {
	clear(b.f1)
	clear(b.f2)
	clear(b.f3)
	clear(b.f4)
	clear(b.u32)
	clear(b.u64)
}

// ClearTiles zeroes the tiles in t. A nil table clears the whole buffer.
func (b *Buffer) ClearTiles(t *tile.Table) {
	if t == nil {
		b.Clear()
		return
	}
	t.ForEach(func(tileIdx int) {
		if (tileIdx+1)<<6 > b.n {
			return
		}
		v := b.Tile(tileIdx)
		v.Clear()
	})
}

// Fill sets every component of every pixel of a float buffer to v.
func (b *Buffer) Fill(v float32) {
	for i := range b.n {
		for c := range b.format.Components() {
			b.SetComponent(i, c, v)
		}
	}
}

// CopyTile copies one tile of src into dst. Both buffers must share format
// and size.
func CopyTile(dst, src *Buffer, tileIdx int) {
	if dst.format != src.format {
		panic(fmt.Sprintf("pixel: CopyTile from %v into %v", src.format, dst.format))
	}
	lo, hi := tileIdx<<6, (tileIdx+1)<<6
	switch dst.format {
	case FormatFloat1:
		copy(dst.f1[lo:hi], src.f1[lo:hi])
	case FormatFloat2:
		copy(dst.f2[lo:hi], src.f2[lo:hi])
	case FormatFloat3:
		copy(dst.f3[lo:hi], src.f3[lo:hi])
	case FormatFloat4:
		copy(dst.f4[lo:hi], src.f4[lo:hi])
	case FormatUint32:
		copy(dst.u32[lo:hi], src.u32[lo:hi])
	case FormatUint64:
		copy(dst.u64[lo:hi], src.u64[lo:hi])
	}
}

// Component returns component c of pixel i of a float buffer.
// Integer buffers return their value converted to float32 for c == 0.
func (b *Buffer) Component(i, c int) float32 {
	switch b.format {
	case FormatFloat1:
		return b.f1[i]
	case FormatFloat2:
		return b.f2[i][c]
	case FormatFloat3:
		return b.f3[i][c]
	case FormatFloat4:
		return b.f4[i][c]
	case FormatUint32:
		return float32(b.u32[i])
	case FormatUint64:
		return float32(b.u64[i])
	}
	panic("pixel: Component on undefined buffer")
}

// SetComponent sets component c of pixel i of a float buffer.
func (b *Buffer) SetComponent(i, c int, v float32) {
	switch b.format {
	case FormatFloat1:
		b.f1[i] = v
	case FormatFloat2:
		b.f2[i][c] = v
	case FormatFloat3:
		b.f3[i][c] = v
	case FormatFloat4:
		b.f4[i][c] = v
	default:
		panic(fmt.Sprintf("pixel: SetComponent on %v buffer", b.format))
	}
}
