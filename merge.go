package tilesync

import (
	"fmt"

	"github.com/gogpu/tilesync/accum"
	"github.com/gogpu/tilesync/pixel"
	"github.com/gogpu/tilesync/snapshot"
	"github.com/gogpu/tilesync/tile"
)

// pair links a source channel to the destination channel it is merged,
// copied or diffed into.
type pair struct {
	src, dst *Channel
}

// pairs resolves the destination channel of every enabled source channel,
// allocating destination storage as needed. It runs before any tile work
// so that the tile workers never create channels.
//
// A named channel that changes format is reallocated when replace is set.
// Otherwise a destination that already holds pixels in another format is
// a conflict and nothing is touched.
func (s *FrameBufferSet) pairs(src *FrameBufferSet, replace bool) ([]pair, error) {
	if !replace {
		if err := s.checkFormats(src); err != nil {
			return nil, err
		}
	}

	var out []pair
	for k := KindBeauty; k < kindCount; k++ {
		sc := src.fixed[k]
		if !sc.enabled() {
			continue
		}
		dc := s.fixed[k]
		if !dc.enabled() {
			dc.Enable()
		}
		out = append(out, pair{sc, dc})
	}

	for _, sc := range src.Channels() {
		if !sc.active {
			continue
		}
		dc := s.Channel(sc.name)
		if sc.IsReference() {
			if dc.Reference != sc.Reference || dc.Allocated() {
				dc.SetReference(sc.Reference)
			}
			continue
		}
		if !sc.Allocated() {
			continue
		}
		if dc.Format() != sc.Format() || dc.IsReference() {
			dc.Setup(sc.Format())
		} else {
			dc.active = true
		}
		dc.DefaultValue = sc.DefaultValue
		dc.ClosestFilter = sc.ClosestFilter
		out = append(out, pair{sc, dc})
	}

	if s.eng.debug {
		for _, p := range out {
			s.checkPair(p)
		}
	}
	return out, nil
}

// checkFormats reports a named channel of src whose format differs from
// a destination channel that still holds pixels.
func (s *FrameBufferSet) checkFormats(src *FrameBufferSet) error {
	for _, sc := range src.Channels() {
		if !sc.active || sc.IsReference() || !sc.Allocated() {
			continue
		}
		dc := s.FindChannel(sc.name)
		if dc == nil || !dc.Allocated() || dc.Format() == sc.Format() || dc.mask.IsEmpty() {
			continue
		}
		return fmt.Errorf("%w: channel %q is %v, update is %v",
			ErrChannelConflict, sc.name, dc.Format(), sc.Format())
	}
	return nil
}

func (s *FrameBufferSet) checkPair(p pair) {
	n := s.geom.PixelCount()
	switch {
	case p.src.values.Len() != n || p.dst.values.Len() != n:
		panic(fmt.Sprintf("tilesync: channel %s has %d/%d pixels, want %d",
			p.src.name, p.src.values.Len(), p.dst.values.Len(), n))
	case p.src.Format() != p.dst.Format():
		panic(fmt.Sprintf("tilesync: channel %s format %v into %v",
			p.src.name, p.src.Format(), p.dst.Format()))
	case p.src.HasNumSample() != p.dst.HasNumSample():
		panic(fmt.Sprintf("tilesync: channel %s sample counts differ", p.src.name))
	case p.src.HasNumSample() && (len(p.src.samples) != n || len(p.dst.samples) != n):
		panic(fmt.Sprintf("tilesync: channel %s sample count length mismatch", p.src.name))
	case !p.src.mask.Geometry().SameSize(s.geom):
		panic(fmt.Sprintf("tilesync: channel %s mask is %dx%d",
			p.src.name, p.src.mask.Width(), p.src.mask.Height()))
	}
}

// Accumulate folds the active pixels of src into s for every tile of t
// (all tiles when t is nil). Colors, heat map and named channels are
// averaged by sample count, or closest-depth filtered when the source
// channel asks for it; depth keeps the minimum and weights add up. The
// source masks are ORed into the destination masks.
//
// A named channel of src in another format than a populated channel of
// s fails with ErrChannelConflict and leaves s unchanged.
func (s *FrameBufferSet) Accumulate(src *FrameBufferSet, t *tile.Table) error {
	if !s.geom.SameSize(src.geom) {
		return s.sizeError(src.geom)
	}
	ps, err := s.pairs(src, false)
	if err != nil {
		return err
	}
	s.ForTiles(t, func(tileIdx int) {
		for _, p := range ps {
			p.accumulate(tileIdx)
		}
	})
	return nil
}

// Copy replaces the pixels of s with the active pixels of src for every
// tile of t (all tiles when t is nil). Values and sample counts are copied
// without weighting and the source masks are ORed into the destination.
// Format conflicts are handled as in Accumulate.
func (s *FrameBufferSet) Copy(src *FrameBufferSet, t *tile.Table) error {
	if !s.geom.SameSize(src.geom) {
		return s.sizeError(src.geom)
	}
	ps, err := s.pairs(src, false)
	if err != nil {
		return err
	}
	s.copyPairs(ps, t)
	return nil
}

func (s *FrameBufferSet) copyPairs(ps []pair, t *tile.Table) {
	s.ForTiles(t, func(tileIdx int) {
		for _, p := range ps {
			p.copy(tileIdx)
		}
	})
}

func (p pair) accumulate(tileIdx int) {
	srcMask := p.src.mask.TileMask(tileIdx)
	if srcMask == 0 {
		return
	}
	dst, src := p.dst.values.Tile(tileIdx), p.src.values.Tile(tileIdx)

	switch p.dst.kind {
	case KindPixelInfo:
		// Pixels without a depth yet take the incoming one.
		fresh := srcMask &^ p.dst.mask.TileMask(tileIdx)
		accum.ReplaceValues(dst.Float1(), fresh, src.Float1())
		accum.MinDepth(dst.Float1(), srcMask&^fresh, src.Float1())
	case KindWeight:
		accum.AddWeight(dst.Float1(), srcMask, src.Float1())
	default:
		dn, sn := tileSlice(p.dst.samples, tileIdx), tileSlice(p.src.samples, tileIdx)
		closest := p.src.ClosestFilter && p.dst.kind == KindNamed
		switch dst.Format() {
		case pixel.FormatFloat1:
			if closest {
				accum.Closest1(dst.Float1(), dn, srcMask, src.Float1(), sn)
			} else {
				accum.Weighted1(dst.Float1(), dn, srcMask, src.Float1(), sn)
			}
		case pixel.FormatFloat2:
			if closest {
				accum.Closest2(dst.Float2(), dn, srcMask, src.Float2(), sn)
			} else {
				accum.Weighted2(dst.Float2(), dn, srcMask, src.Float2(), sn)
			}
		case pixel.FormatFloat3:
			if closest {
				accum.Closest3(dst.Float3(), dn, srcMask, src.Float3(), sn)
			} else {
				accum.Weighted3(dst.Float3(), dn, srcMask, src.Float3(), sn)
			}
		case pixel.FormatFloat4:
			if closest {
				accum.Closest4(dst.Float4(), dn, srcMask, src.Float4(), sn)
			} else {
				accum.Weighted4(dst.Float4(), dn, srcMask, src.Float4(), sn)
			}
		}
	}
	p.dst.mask.OrTile(tileIdx, srcMask)
}

func (p pair) copy(tileIdx int) {
	srcMask := p.src.mask.TileMask(tileIdx)
	if srcMask == 0 {
		return
	}
	dst, src := p.dst.values.Tile(tileIdx), p.src.values.Tile(tileIdx)

	if p.src.samples == nil {
		accum.ReplaceValues(dst.Float1(), srcMask, src.Float1())
		p.dst.mask.OrTile(tileIdx, srcMask)
		return
	}
	dn, sn := tileSlice(p.dst.samples, tileIdx), tileSlice(p.src.samples, tileIdx)
	switch dst.Format() {
	case pixel.FormatFloat1:
		accum.Replace(dst.Float1(), dn, srcMask, src.Float1(), sn)
	case pixel.FormatFloat2:
		accum.Replace(dst.Float2(), dn, srcMask, src.Float2(), sn)
	case pixel.FormatFloat3:
		accum.Replace(dst.Float3(), dn, srcMask, src.Float3(), sn)
	case pixel.FormatFloat4:
		accum.Replace(dst.Float4(), dn, srcMask, src.Float4(), sn)
	}
	p.dst.mask.OrTile(tileIdx, srcMask)
}

// diff copies the changed active pixels of one tile from src into dst and
// returns the mask of copied pixels.
func (p pair) diff(d snapshot.Differ, tileIdx int) uint64 {
	srcMask := p.src.mask.TileMask(tileIdx)
	dstMask := p.dst.mask.TileMask(tileIdx)
	dst, src := p.dst.values.Tile(tileIdx), p.src.values.Tile(tileIdx)

	var out uint64
	if p.src.samples == nil {
		out = d.Float1Masked(dst.Float1(), dstMask, src.Float1(), srcMask)
	} else {
		dn, sn := tileSlice(p.dst.samples, tileIdx), tileSlice(p.src.samples, tileIdx)
		switch dst.Format() {
		case pixel.FormatFloat1:
			out = d.Float1NumSample(dst.Float1(), dn, dstMask, src.Float1(), sn, srcMask)
		case pixel.FormatFloat2:
			out = d.Float2NumSample(dst.Float2(), dn, dstMask, src.Float2(), sn, srcMask)
		case pixel.FormatFloat3:
			out = d.Float3NumSample(dst.Float3(), dn, dstMask, src.Float3(), sn, srcMask)
		case pixel.FormatFloat4:
			out = d.Float4NumSample(dst.Float4(), dn, dstMask, src.Float4(), sn, srcMask)
		}
	}
	p.dst.mask.OrTile(tileIdx, out)
	return out
}
