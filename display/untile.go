// Package display turns tiled channels into scanline images for viewers.
//
// Untile converts a tiled buffer to row-major float texels. An Uploader
// keeps a GPU texture in step with a channel, sending only the tile rows a
// delta mask touched when the texture supports region updates.
package display

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/tilesync/pixel"
	"github.com/gogpu/tilesync/tile"
)

// TextureFormat returns the texture format a buffer of format f is
// uploaded as, or TextureFormatUndefined for formats that cannot be shown.
// Float3 has no three component texture format and is padded to RGBA.
func TextureFormat(f pixel.Format) gputypes.TextureFormat {
	switch f {
	case pixel.FormatFloat1:
		return gputypes.TextureFormatR32Float
	case pixel.FormatFloat2:
		return gputypes.TextureFormatRG32Float
	case pixel.FormatFloat3, pixel.FormatFloat4:
		return gputypes.TextureFormatRGBA32Float
	case pixel.FormatUint32:
		return gputypes.TextureFormatR32Uint
	}
	return gputypes.TextureFormatUndefined
}

// TexelComponents returns the number of 32-bit components per texel for
// format f, counting the Float3 padding.
func TexelComponents(f pixel.Format) int {
	if f == pixel.FormatFloat3 {
		return 4
	}
	if f == pixel.FormatUint64 {
		return 0
	}
	return f.Components()
}

// Untile appends the logical width x height image held in buf to dst in
// row-major order, TexelComponents(buf.Format()) floats per pixel. Float3
// pixels get an alpha of 1. With flipY the last image row comes first.
func Untile(dst []float32, buf *pixel.Buffer, g tile.Geometry, flipY bool) []float32 {
	if !buf.Format().IsFloat() {
		panic(fmt.Sprintf("display: Untile on %v buffer", buf.Format()))
	}
	r := region{w: g.Width(), h: g.Height()}
	return r.untile(dst, buf, g, flipY, nil, 0)
}

// region is a rectangle of image pixels.
type region struct {
	x, y, w, h int
}

// untile appends the texels of r. Pixels outside mask, when given, take
// the value def.
func (r region) untile(dst []float32, buf *pixel.Buffer, g tile.Geometry, flipY bool, mask *tile.Mask, def float32) []float32 {
	n := buf.Format().Components()
	pad := TexelComponents(buf.Format()) - n
	for row := range r.h {
		y := r.y + row
		if flipY {
			y = r.y + r.h - 1 - row
		}
		for x := r.x; x < r.x+r.w; x++ {
			i := g.LinearToTiled(x, y)
			if mask != nil && !mask.IsActive(i) {
				for range n {
					dst = append(dst, def)
				}
			} else {
				for c := range n {
					dst = append(dst, buf.Component(i, c))
				}
			}
			if pad > 0 {
				dst = append(dst, 1)
			}
		}
	}
	return dst
}
