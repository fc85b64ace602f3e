// Package accum folds an incoming tile fragment into a running tile.
//
// Every function takes one tile of destination and source data (64
// entries each) plus the source active mask, and touches only the pixels
// whose mask bit is set, in tile.Crawl order. Merging the mask itself is
// left to the caller, which ORs srcMask into its destination mask.
//
// Merge rules:
//
//   - Weighted: sample count weighted average, counts are summed.
//   - Closest: keep the value with the smaller depth (last component),
//     counts are summed. A destination without samples adopts the source.
//   - MinDepth: keep the smaller depth, no counts.
//   - AddWeight: sum weights.
//   - Replace: copy source over destination without weighting.
package accum

import (
	"golang.org/x/image/math/f32"

	"github.com/gogpu/tilesync/tile"
)

// Weighted1 averages scalar values weighted by their sample counts.
func Weighted1(dst []float32, dstN []uint32, srcMask uint64, src []float32, srcN []uint32) {
	each(dst, dstN, srcMask, src, srcN, func(d, s *float32, dn, sn uint32) {
		if dn+sn == 0 {
			*d = 0
			return
		}
		*d = blend(*d, *s, dn, sn)
	})
}

// Weighted2 averages 2 component values weighted by their sample counts.
func Weighted2(dst []f32.Vec2, dstN []uint32, srcMask uint64, src []f32.Vec2, srcN []uint32) {
	each(dst, dstN, srcMask, src, srcN, func(d, s *f32.Vec2, dn, sn uint32) {
		if dn+sn == 0 {
			*d = f32.Vec2{}
			return
		}
		for c := range d {
			d[c] = blend(d[c], s[c], dn, sn)
		}
	})
}

// Weighted3 averages 3 component values weighted by their sample counts.
func Weighted3(dst []f32.Vec3, dstN []uint32, srcMask uint64, src []f32.Vec3, srcN []uint32) {
	each(dst, dstN, srcMask, src, srcN, func(d, s *f32.Vec3, dn, sn uint32) {
		if dn+sn == 0 {
			*d = f32.Vec3{}
			return
		}
		for c := range d {
			d[c] = blend(d[c], s[c], dn, sn)
		}
	})
}

// Weighted4 averages colors weighted by their sample counts.
func Weighted4(dst []f32.Vec4, dstN []uint32, srcMask uint64, src []f32.Vec4, srcN []uint32) {
	each(dst, dstN, srcMask, src, srcN, func(d, s *f32.Vec4, dn, sn uint32) {
		if dn+sn == 0 {
			*d = f32.Vec4{}
			return
		}
		for c := range d {
			d[c] = blend(d[c], s[c], dn, sn)
		}
	})
}

// Closest1 keeps the smaller scalar, treating the value as its own depth.
func Closest1(dst []float32, dstN []uint32, srcMask uint64, src []float32, srcN []uint32) {
	each(dst, dstN, srcMask, src, srcN, func(d, s *float32, dn, sn uint32) {
		if closer(dn, sn, *s, *d) {
			*d = *s
		}
	})
}

// Closest2 keeps the value whose second component is smaller.
func Closest2(dst []f32.Vec2, dstN []uint32, srcMask uint64, src []f32.Vec2, srcN []uint32) {
	each(dst, dstN, srcMask, src, srcN, func(d, s *f32.Vec2, dn, sn uint32) {
		if closer(dn, sn, s[1], d[1]) {
			*d = *s
		}
	})
}

// Closest3 keeps the value whose third component is smaller.
func Closest3(dst []f32.Vec3, dstN []uint32, srcMask uint64, src []f32.Vec3, srcN []uint32) {
	each(dst, dstN, srcMask, src, srcN, func(d, s *f32.Vec3, dn, sn uint32) {
		if closer(dn, sn, s[2], d[2]) {
			*d = *s
		}
	})
}

// Closest4 keeps the value whose fourth component is smaller.
func Closest4(dst []f32.Vec4, dstN []uint32, srcMask uint64, src []f32.Vec4, srcN []uint32) {
	each(dst, dstN, srcMask, src, srcN, func(d, s *f32.Vec4, dn, sn uint32) {
		if closer(dn, sn, s[3], d[3]) {
			*d = *s
		}
	})
}

// MinDepth keeps the smaller depth per pixel.
func MinDepth(dst []float32, srcMask uint64, src []float32) {
	tile.Crawl(srcMask, func(pix int) {
		if src[pix] < dst[pix] {
			dst[pix] = src[pix]
		}
	})
}

// AddWeight sums per pixel weights.
func AddWeight(dst []float32, srcMask uint64, src []float32) {
	tile.Crawl(srcMask, func(pix int) {
		dst[pix] += src[pix]
	})
}

// Replace copies values and sample counts of the active source pixels.
func Replace[T any](dst []T, dstN []uint32, srcMask uint64, src []T, srcN []uint32) {
	tile.Crawl(srcMask, func(pix int) {
		dst[pix] = src[pix]
		dstN[pix] = srcN[pix]
	})
}

// ReplaceValues copies the active source pixels of a buffer without
// sample counts.
func ReplaceValues[T any](dst []T, srcMask uint64, src []T) {
	tile.Crawl(srcMask, func(pix int) {
		dst[pix] = src[pix]
	})
}

func each[T any](dst []T, dstN []uint32, srcMask uint64, src []T, srcN []uint32, merge func(d, s *T, dn, sn uint32)) {
	tile.Crawl(srcMask, func(pix int) {
		merge(&dst[pix], &src[pix], dstN[pix], srcN[pix])
		dstN[pix] += srcN[pix]
	})
}

func blend(d, s float32, dn, sn uint32) float32 {
	return (d*float32(dn) + s*float32(sn)) / float32(dn+sn)
}

// closer reports whether the source value should replace the destination
// under the closest filter.
func closer(dn, sn uint32, srcDepth, dstDepth float32) bool {
	if dn+sn == 0 {
		return false
	}
	return dn == 0 || srcDepth < dstDepth
}
