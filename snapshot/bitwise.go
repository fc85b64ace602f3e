package snapshot

import (
	"math"

	"golang.org/x/image/math/f32"

	"github.com/gogpu/tilesync/tile"
)

// Bitwise is a Differ whose activity test has no data dependent branch.
// Component differences are XOR-folded into one word and turned into a
// 0/1 flag with (v | -v) >> 31. Only the copy of an active pixel branches.
type Bitwise struct{}

// Name implements Differ.
func (Bitwise) Name() string { return BitwiseName }

func (Bitwise) Float1Weight(dst, dstW, src, srcW []float32) uint64 {
	return weightGatedBits(dst, dstW, src, srcW, xor1)
}

func (Bitwise) Float2Weight(dst []f32.Vec2, dstW []float32, src []f32.Vec2, srcW []float32) uint64 {
	return weightGatedBits(dst, dstW, src, srcW, xor2)
}

func (Bitwise) Float3Weight(dst []f32.Vec3, dstW []float32, src []f32.Vec3, srcW []float32) uint64 {
	return weightGatedBits(dst, dstW, src, srcW, xor3)
}

func (Bitwise) Float4Weight(dst []f32.Vec4, dstW []float32, src []f32.Vec4, srcW []float32) uint64 {
	return weightGatedBits(dst, dstW, src, srcW, xor4)
}

func (Bitwise) Uint64Weight(dst []uint64, dstW []uint32, src []uint64, srcW []uint32) uint64 {
	_, _, _, _ = dst[tile.Pixels-1], dstW[tile.Pixels-1], src[tile.Pixels-1], srcW[tile.Pixels-1]

	var mask uint64
	for i := range tile.Pixels {
		d := dst[i] ^ src[i]
		diff := uint32(d) | uint32(d>>32) | (dstW[i] ^ srcW[i])
		bit := nonZero(diff) & nonZero(srcW[i])
		mask |= uint64(bit) << i
		if bit != 0 {
			dst[i] = src[i]
			dstW[i] = srcW[i]
		}
	}
	return mask
}

func (Bitwise) Float1NumSample(dst []float32, dstN []uint32, dstMask uint64, src []float32, srcN []uint32, srcMask uint64) uint64 {
	return maskGatedBits(dst, dstN, dstMask, src, srcN, srcMask, xor1)
}

func (Bitwise) Float2NumSample(dst []f32.Vec2, dstN []uint32, dstMask uint64, src []f32.Vec2, srcN []uint32, srcMask uint64) uint64 {
	return maskGatedBits(dst, dstN, dstMask, src, srcN, srcMask, xor2)
}

func (Bitwise) Float3NumSample(dst []f32.Vec3, dstN []uint32, dstMask uint64, src []f32.Vec3, srcN []uint32, srcMask uint64) uint64 {
	return maskGatedBits(dst, dstN, dstMask, src, srcN, srcMask, xor3)
}

func (Bitwise) Float4NumSample(dst []f32.Vec4, dstN []uint32, dstMask uint64, src []f32.Vec4, srcN []uint32, srcMask uint64) uint64 {
	return maskGatedBits(dst, dstN, dstMask, src, srcN, srcMask, xor4)
}

func (Bitwise) Float1Masked(dst []float32, dstMask uint64, src []float32, srcMask uint64) uint64 {
	if srcMask == 0 {
		return 0
	}
	_, _ = dst[tile.Pixels-1], src[tile.Pixels-1]

	var out uint64
	for i := range tile.Pixels {
		set := uint32(srcMask>>i) & 1
		fresh := uint32(^dstMask>>i) & 1
		bit := set & (nonZero(xor1(&dst[i], &src[i])) | fresh)
		out |= uint64(bit) << i
		if bit != 0 {
			dst[i] = src[i]
		}
	}
	return out
}

func weightGatedBits[T any](dst []T, dstW []float32, src []T, srcW []float32, xor func(a, b *T) uint32) uint64 {
	_, _, _, _ = dst[tile.Pixels-1], dstW[tile.Pixels-1], src[tile.Pixels-1], srcW[tile.Pixels-1]

	var mask uint64
	for i := range tile.Pixels {
		sw := math.Float32bits(srcW[i])
		diff := xor(&dst[i], &src[i]) | (sw ^ math.Float32bits(dstW[i]))
		// sw<<1 drops the sign so -0 counts as a zero weight
		bit := nonZero(diff) & nonZero(sw<<1)
		mask |= uint64(bit) << i
		if bit != 0 {
			dst[i] = src[i]
			dstW[i] = srcW[i]
		}
	}
	return mask
}

func maskGatedBits[T any](dst []T, dstN []uint32, dstMask uint64, src []T, srcN []uint32, srcMask uint64, xor func(a, b *T) uint32) uint64 {
	if srcMask == 0 {
		return 0
	}
	_, _, _, _ = dst[tile.Pixels-1], dstN[tile.Pixels-1], src[tile.Pixels-1], srcN[tile.Pixels-1]

	var out uint64
	for i := range tile.Pixels {
		set := uint32(srcMask>>i) & 1
		fresh := uint32(^dstMask>>i) & 1
		diff := xor(&dst[i], &src[i]) | (dstN[i] ^ srcN[i])
		bit := set & (nonZero(diff) | fresh)
		out |= uint64(bit) << i
		if bit != 0 {
			dst[i] = src[i]
			dstN[i] = srcN[i]
		}
	}
	return out
}

// nonZero returns 1 if v != 0 and 0 otherwise.
func nonZero(v uint32) uint32 {
	return (v | -v) >> 31
}

func xorBits(a, b float32) uint32 {
	return math.Float32bits(a) ^ math.Float32bits(b)
}

func xor1(a, b *float32) uint32 { return xorBits(*a, *b) }

func xor2(a, b *f32.Vec2) uint32 {
	return xorBits(a[0], b[0]) | xorBits(a[1], b[1])
}

func xor3(a, b *f32.Vec3) uint32 {
	return xorBits(a[0], b[0]) | xorBits(a[1], b[1]) | xorBits(a[2], b[2])
}

func xor4(a, b *f32.Vec4) uint32 {
	return xorBits(a[0], b[0]) | xorBits(a[1], b[1]) |
		xorBits(a[2], b[2]) | xorBits(a[3], b[3])
}
