package snapshot

import (
	"math"

	"golang.org/x/image/math/f32"

	"github.com/gogpu/tilesync/tile"
)

// Reference is the straightforward Differ: one explicit predicate per
// pixel, walking only the set bits of the source mask for mask gated
// kernels.
type Reference struct{}

// Name implements Differ.
func (Reference) Name() string { return ReferenceName }

func (Reference) Float1Weight(dst, dstW, src, srcW []float32) uint64 {
	return weightGated(dst, dstW, src, srcW, same1)
}

func (Reference) Float2Weight(dst []f32.Vec2, dstW []float32, src []f32.Vec2, srcW []float32) uint64 {
	return weightGated(dst, dstW, src, srcW, same2)
}

func (Reference) Float3Weight(dst []f32.Vec3, dstW []float32, src []f32.Vec3, srcW []float32) uint64 {
	return weightGated(dst, dstW, src, srcW, same3)
}

func (Reference) Float4Weight(dst []f32.Vec4, dstW []float32, src []f32.Vec4, srcW []float32) uint64 {
	return weightGated(dst, dstW, src, srcW, same4)
}

func (Reference) Uint64Weight(dst []uint64, dstW []uint32, src []uint64, srcW []uint32) uint64 {
	var mask uint64
	for i := range tile.Pixels {
		if srcW[i] == 0 {
			continue
		}
		if dst[i] == src[i] && dstW[i] == srcW[i] {
			continue
		}
		dst[i] = src[i]
		dstW[i] = srcW[i]
		mask |= 1 << i
	}
	return mask
}

func (Reference) Float1NumSample(dst []float32, dstN []uint32, dstMask uint64, src []float32, srcN []uint32, srcMask uint64) uint64 {
	return maskGated(dst, dstN, dstMask, src, srcN, srcMask, same1)
}

func (Reference) Float2NumSample(dst []f32.Vec2, dstN []uint32, dstMask uint64, src []f32.Vec2, srcN []uint32, srcMask uint64) uint64 {
	return maskGated(dst, dstN, dstMask, src, srcN, srcMask, same2)
}

func (Reference) Float3NumSample(dst []f32.Vec3, dstN []uint32, dstMask uint64, src []f32.Vec3, srcN []uint32, srcMask uint64) uint64 {
	return maskGated(dst, dstN, dstMask, src, srcN, srcMask, same3)
}

func (Reference) Float4NumSample(dst []f32.Vec4, dstN []uint32, dstMask uint64, src []f32.Vec4, srcN []uint32, srcMask uint64) uint64 {
	return maskGated(dst, dstN, dstMask, src, srcN, srcMask, same4)
}

func (Reference) Float1Masked(dst []float32, dstMask uint64, src []float32, srcMask uint64) uint64 {
	if srcMask == 0 {
		return 0
	}
	var out uint64
	tile.Crawl(srcMask, func(pix int) {
		bit := uint64(1) << pix
		if dstMask&bit != 0 && same1(&dst[pix], &src[pix]) {
			return
		}
		dst[pix] = src[pix]
		out |= bit
	})
	return out
}

// weightGated copies every pixel with a non-zero source weight whose value
// or weight bits changed.
func weightGated[T any](dst []T, dstW []float32, src []T, srcW []float32, same func(a, b *T) bool) uint64 {
	var mask uint64
	for i := range tile.Pixels {
		w := srcW[i]
		if w == 0 {
			continue
		}
		if same(&dst[i], &src[i]) && math.Float32bits(dstW[i]) == math.Float32bits(w) {
			continue
		}
		dst[i] = src[i]
		dstW[i] = w
		mask |= 1 << i
	}
	return mask
}

// maskGated copies every pixel set in srcMask whose value or sample count
// changed, or that is not yet active in dstMask.
func maskGated[T any](dst []T, dstN []uint32, dstMask uint64, src []T, srcN []uint32, srcMask uint64, same func(a, b *T) bool) uint64 {
	if srcMask == 0 {
		return 0
	}
	var out uint64
	tile.Crawl(srcMask, func(pix int) {
		bit := uint64(1) << pix
		if dstMask&bit != 0 && dstN[pix] == srcN[pix] && same(&dst[pix], &src[pix]) {
			return
		}
		dst[pix] = src[pix]
		dstN[pix] = srcN[pix]
		out |= bit
	})
	return out
}

func sameBits(a, b float32) bool {
	return math.Float32bits(a) == math.Float32bits(b)
}

func same1(a, b *float32) bool { return sameBits(*a, *b) }

func same2(a, b *f32.Vec2) bool {
	return sameBits(a[0], b[0]) && sameBits(a[1], b[1])
}

func same3(a, b *f32.Vec3) bool {
	return sameBits(a[0], b[0]) && sameBits(a[1], b[1]) && sameBits(a[2], b[2])
}

func same4(a, b *f32.Vec4) bool {
	return sameBits(a[0], b[0]) && sameBits(a[1], b[1]) &&
		sameBits(a[2], b[2]) && sameBits(a[3], b[3])
}
