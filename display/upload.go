package display

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gogpu/gpucontext"

	"github.com/gogpu/tilesync"
	"github.com/gogpu/tilesync/tile"
)

// Uploader keeps a texture in step with one channel. Inactive pixels are
// shown with the channel's DefaultValue.
//
// An Uploader reuses its scratch buffers and is not safe for concurrent
// use.
type Uploader struct {
	tex   gpucontext.TextureUpdater
	flipY bool

	texels []float32
	data   []byte
}

// NewUploader returns an uploader writing to tex. With flipY the first
// texture row holds the last image row.
func NewUploader(tex gpucontext.TextureUpdater, flipY bool) *Uploader {
	return &Uploader{tex: tex, flipY: flipY}
}

// Upload sends the pixels of c that changed according to delta. A nil
// delta uploads the whole image; an empty one uploads nothing. When the
// texture implements gpucontext.TextureRegionUpdater, only the span of
// changed tiles of each tile row is sent.
func (u *Uploader) Upload(c *tilesync.Channel, delta *tile.Mask) error {
	if !c.Format().IsFloat() {
		return fmt.Errorf("display: channel %q has no float storage", c.Name())
	}
	if delta != nil && delta.IsEmpty() {
		return nil
	}

	g := c.Mask().Geometry()
	full := region{w: g.Width(), h: g.Height()}
	ru, partial := u.tex.(gpucontext.TextureRegionUpdater)
	if delta == nil || !partial {
		return u.tex.UpdateData(u.encode(c, g, full))
	}

	regions := 0
	for ty := range g.TilesY() {
		lo, hi := -1, -1
		for tx := range g.TilesX() {
			if delta.TileMask(ty*g.TilesX()+tx) != 0 {
				if lo < 0 {
					lo = tx
				}
				hi = tx
			}
		}
		if lo < 0 {
			continue
		}
		r := region{x: lo * tile.Size, y: ty * tile.Size}
		r.w = min((hi+1)*tile.Size, g.Width()) - r.x
		r.h = min(r.y+tile.Size, g.Height()) - r.y

		ry := r.y
		if u.flipY {
			ry = g.Height() - r.y - r.h
		}
		if err := ru.UpdateRegion(r.x, ry, r.w, r.h, u.encode(c, g, r)); err != nil {
			return fmt.Errorf("display: upload rows %d-%d: %w", r.y, r.y+r.h-1, err)
		}
		regions++
	}
	tilesync.Logger().Debug("display: region upload",
		"channel", c.Name(), "regions", regions, "pixels", delta.ActivePixels())
	return nil
}

// encode returns the little-endian texels of r.
func (u *Uploader) encode(c *tilesync.Channel, g tile.Geometry, r region) []byte {
	u.data = u.data[:0]
	u.texels = r.untile(u.texels[:0], c.Values(), g, u.flipY, c.Mask(), c.DefaultValue)
	for _, f := range u.texels {
		u.data = binary.LittleEndian.AppendUint32(u.data, math.Float32bits(f))
	}
	return u.data
}
