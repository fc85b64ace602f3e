// Package snapshot detects which pixels of a tile changed since the last
// snapshot and copies exactly those pixels into the snapshot buffers.
//
// Two gating policies are provided:
//
//   - Weight gated (the *Weight kernels): a pixel is reported when its
//     source weight is non-zero and its raw value bits or raw weight bits
//     differ from the destination. Used on rendering nodes where the
//     weight buffer decides validity.
//   - Mask gated (the *NumSample and *Masked kernels): a pixel is reported
//     when its source mask bit is set and either its value, its sample
//     count, or the destination mask bit differs. A pixel that becomes
//     active for the first time is always reported.
//
// Every kernel works on one tile: all slices hold exactly tile.Pixels
// entries and the returned mask has one bit per pixel copied by the call.
// Values are compared on their raw bit patterns, so -0 and +0 differ and
// two NaNs are equal only when their payloads are identical.
//
// Two interchangeable strategies implement Differ: Reference, a plain
// per-pixel predicate, and Bitwise, which folds the comparison into
// XOR/negate arithmetic. They produce identical results.
package snapshot

import (
	"errors"
	"fmt"
	"sort"

	"github.com/gogpu/gpucontext"
	"golang.org/x/image/math/f32"
)

// Differ computes per-tile snapshot deltas.
type Differ interface {
	// Name returns the registry name of the strategy.
	Name() string

	Float1Weight(dst, dstW, src, srcW []float32) uint64
	Float2Weight(dst []f32.Vec2, dstW []float32, src []f32.Vec2, srcW []float32) uint64
	Float3Weight(dst []f32.Vec3, dstW []float32, src []f32.Vec3, srcW []float32) uint64
	Float4Weight(dst []f32.Vec4, dstW []float32, src []f32.Vec4, srcW []float32) uint64

	// Uint64Weight diffs integer coded values such as heat map ticks
	// gated by an integer sample count.
	Uint64Weight(dst []uint64, dstW []uint32, src []uint64, srcW []uint32) uint64

	Float1NumSample(dst []float32, dstN []uint32, dstMask uint64, src []float32, srcN []uint32, srcMask uint64) uint64
	Float2NumSample(dst []f32.Vec2, dstN []uint32, dstMask uint64, src []f32.Vec2, srcN []uint32, srcMask uint64) uint64
	Float3NumSample(dst []f32.Vec3, dstN []uint32, dstMask uint64, src []f32.Vec3, srcN []uint32, srcMask uint64) uint64
	Float4NumSample(dst []f32.Vec4, dstN []uint32, dstMask uint64, src []f32.Vec4, srcN []uint32, srcMask uint64) uint64

	// Float1Masked diffs a scalar buffer without sample counts, such as
	// depth or accumulated weight.
	Float1Masked(dst []float32, dstMask uint64, src []float32, srcMask uint64) uint64
}

// Strategy names.
const (
	ReferenceName = "reference"
	BitwiseName   = "bitwise"
)

// ErrUnknownStrategy is returned by Get for names that were never registered.
var ErrUnknownStrategy = errors.New("snapshot: unknown strategy")

var strategies = gpucontext.NewRegistry[Differ](
	gpucontext.WithPriority(ReferenceName, BitwiseName),
)

func init() {
	strategies.Register(ReferenceName, func() Differ { return Reference{} })
	strategies.Register(BitwiseName, func() Differ { return Bitwise{} })
}

// Register adds a strategy under name, replacing any previous one.
// Register panics if factory is nil.
func Register(name string, factory func() Differ) {
	if factory == nil {
		panic("snapshot: Register factory is nil")
	}
	strategies.Register(name, factory)
}

// Unregister removes a strategy. Built-in strategies can be removed too,
// which is mainly useful in tests.
func Unregister(name string) {
	strategies.Unregister(name)
}

// Get returns the strategy registered under name.
func Get(name string) (Differ, error) {
	if !strategies.Has(name) {
		return nil, fmt.Errorf("%w %q", ErrUnknownStrategy, name)
	}
	return strategies.Get(name), nil
}

// Default returns the preferred strategy, Reference unless it was
// unregistered.
func Default() Differ {
	return strategies.Best()
}

// Available returns the registered strategy names in sorted order.
func Available() []string {
	names := strategies.Available()
	sort.Strings(names)
	return names
}
