package tilesync

import (
	"fmt"
	"time"

	"golang.org/x/image/math/f32"

	"github.com/gogpu/tilesync/pixel"
	"github.com/gogpu/tilesync/snapshot"
	"github.com/gogpu/tilesync/tile"
	"github.com/gogpu/tilesync/wire"
)

// Frame is the render node view of an image: a running average color with
// its accumulated sample weight, an optional heat map of render time, and
// auxiliary float outputs that share the color's weight.
//
// A node keeps two frames: the one it renders into and the state it last
// sent. SnapshotWeighted moves what changed from the first into the second
// and EncodeDelta turns that change into a message for the merge tier.
// The message carries the running state of the changed pixels, so the
// merge tier takes it with FrameBufferSet.MergeFrom.
type Frame struct {
	geom tile.Geometry
	eng  engine

	color  pixel.Buffer // Float4
	weight pixel.Buffer // Float1

	heatMap       []uint64 // render time in nanoseconds
	heatMapWeight []uint32

	aux map[string]*pixel.Buffer

	// seconds is scratch for heat map encoding.
	seconds pixel.Buffer
}

// NewFrame creates a frame for a width x height image.
func NewFrame(width, height int, opts ...Option) *Frame {
	f := &Frame{
		geom: tile.NewGeometry(width, height),
		eng:  newEngine(opts),
		aux:  make(map[string]*pixel.Buffer),
	}
	f.color.Setup(pixel.FormatFloat4, f.geom.PixelCount())
	f.weight.Setup(pixel.FormatFloat1, f.geom.PixelCount())
	return f
}

// Close releases the worker pool created by WithWorkers.
func (f *Frame) Close() { f.eng.close() }

// Geometry returns the tile layout.
func (f *Frame) Geometry() tile.Geometry { return f.geom }

// Color returns the Float4 color buffer.
func (f *Frame) Color() *pixel.Buffer { return &f.color }

// Weight returns the Float1 sample weight buffer.
func (f *Frame) Weight() *pixel.Buffer { return &f.weight }

// HeatMap returns the render time and sample count buffers, or nil until
// EnableHeatMap is called.
func (f *Frame) HeatMap() (ticks []uint64, weight []uint32) {
	return f.heatMap, f.heatMapWeight
}

// EnableHeatMap allocates the heat map buffers.
func (f *Frame) EnableHeatMap() {
	n := f.geom.PixelCount()
	if len(f.heatMap) != n {
		f.heatMap = make([]uint64, n)
		f.heatMapWeight = make([]uint32, n)
	}
}

// Aux returns the auxiliary output called name, creating it with the
// given float format on first use. Fixed channel names are reserved.
func (f *Frame) Aux(name string, format pixel.Format) *pixel.Buffer {
	name = wire.NormalizeName(name)
	if kindByName(name) != KindNamed {
		panic(fmt.Sprintf("tilesync: aux output name %q is reserved", name))
	}
	if !format.IsFloat() {
		panic(fmt.Sprintf("tilesync: aux output %q needs a float format, got %v", name, format))
	}
	b := f.aux[name]
	if b == nil {
		b = new(pixel.Buffer)
		f.aux[name] = b
	}
	b.Setup(format, f.geom.PixelCount())
	return b
}

// Setup resizes the frame, reallocating zeroed storage when the size
// changes. It reports whether it did.
func (f *Frame) Setup(width, height int) bool {
	g := tile.NewGeometry(width, height)
	if g.SameSize(f.geom) {
		return false
	}
	f.geom = g
	n := g.PixelCount()
	f.color.Setup(pixel.FormatFloat4, n)
	f.weight.Setup(pixel.FormatFloat1, n)
	if f.heatMap != nil {
		f.heatMap = nil
		f.EnableHeatMap()
	}
	for _, b := range f.aux {
		b.Setup(b.Format(), n)
	}
	return true
}

// Reset zeroes every buffer.
func (f *Frame) Reset() {
	f.color.Clear()
	f.weight.Clear()
	clear(f.heatMap)
	clear(f.heatMapWeight)
	for _, b := range f.aux {
		b.Clear()
	}
}

// AddSample folds one sample of color c and weight w into pixel (x, y),
// keeping the color a weighted average.
func (f *Frame) AddSample(x, y int, c f32.Vec4, w float32) {
	i := f.geom.LinearToTiled(x, y)
	color, weight := f.color.Float4(), f.weight.Float1()
	total := weight[i] + w
	if total == 0 {
		return
	}
	for k := range c {
		color[i][k] = (color[i][k]*weight[i] + c[k]*w) / total
	}
	weight[i] = total
}

// AddTime adds render time d to the heat map at pixel (x, y).
func (f *Frame) AddTime(x, y int, d time.Duration) {
	i := f.geom.LinearToTiled(x, y)
	f.heatMap[i] += uint64(d)
	f.heatMapWeight[i]++
}

// SnapshotWeighted brings prev up to date with f and records in out which
// pixels changed. A pixel changes when its weight in f is non-zero and its
// color or weight differs from prev; auxiliary outputs are compared the
// same way against the weight prev had before this snapshot.
func (f *Frame) SnapshotWeighted(prev *Frame, out *DeltaMasks, coarse bool) error {
	if !f.geom.SameSize(prev.geom) {
		return fmt.Errorf("%w: %dx%d vs %dx%d", ErrSizeMismatch,
			f.geom.Width(), f.geom.Height(), prev.geom.Width(), prev.geom.Height())
	}

	names := []string{NameBeauty}
	heat := f.heatMap != nil
	if heat {
		prev.EnableHeatMap()
		names = append(names, NameHeatMap)
	}
	type auxPair struct {
		name     string
		src, dst *pixel.Buffer
		delta    *tile.Mask
	}
	var aux []auxPair
	for name, b := range f.aux {
		aux = append(aux, auxPair{name: name, src: b, dst: prev.Aux(name, b.Format())})
		names = append(names, name)
	}
	out.begin(f.geom, coarse, names)
	beauty := out.masks[NameBeauty]
	for i := range aux {
		aux[i].delta = out.masks[aux[i].name]
	}
	var heatDelta *tile.Mask
	if heat {
		heatDelta = out.masks[NameHeatMap]
	}

	d := f.eng.differ
	f.eng.forTiles(f.geom.Tiles(), nil, func(tileIdx int) {
		srcW := f.weight.Tile(tileIdx)
		dstW := prev.weight.Tile(tileIdx)

		// Every aux diff sees the weight prev had before this snapshot.
		var before [tile.Pixels]float32
		copy(before[:], dstW.Float1())
		for _, a := range aux {
			w := before
			a.delta.SetTileMask(tileIdx, diffWeighted(d, a.dst.Tile(tileIdx), w[:], a.src.Tile(tileIdx), srcW.Float1()))
		}

		dc, sc := prev.color.Tile(tileIdx), f.color.Tile(tileIdx)
		beauty.SetTileMask(tileIdx, d.Float4Weight(dc.Float4(), dstW.Float1(), sc.Float4(), srcW.Float1()))

		if heat {
			heatDelta.SetTileMask(tileIdx, d.Uint64Weight(
				tileSlice(prev.heatMap, tileIdx), tileSlice(prev.heatMapWeight, tileIdx),
				tileSlice(f.heatMap, tileIdx), tileSlice(f.heatMapWeight, tileIdx)))
		}
	})

	if r := f.eng.recorder; r != nil {
		r.Record(beauty, coarse)
	}
	Logger().Debug("tilesync: weighted snapshot",
		"strategy", d.Name(), "pixels", out.ActivePixels(), "coarse", coarse)
	return nil
}

func diffWeighted(d snapshot.Differ, dst pixel.Buffer, dstW []float32, src pixel.Buffer, srcW []float32) uint64 {
	switch dst.Format() {
	case pixel.FormatFloat1:
		return d.Float1Weight(dst.Float1(), dstW, src.Float1(), srcW)
	case pixel.FormatFloat2:
		return d.Float2Weight(dst.Float2(), dstW, src.Float2(), srcW)
	case pixel.FormatFloat3:
		return d.Float3Weight(dst.Float3(), dstW, src.Float3(), srcW)
	case pixel.FormatFloat4:
		return d.Float4Weight(dst.Float4(), dstW, src.Float4(), srcW)
	}
	return 0
}

// EncodeDelta appends a message for the merge tier holding the pixels in
// masks, read from f. The color goes out as Beauty with a Weight entry
// covering the union of all changed pixels; auxiliary outputs go out as
// FloatN entries without sample counts and the heat map as mean seconds
// per sample.
func (f *Frame) EncodeDelta(masks *DeltaMasks, dst []byte, opts ...wire.EncoderOption) ([]byte, error) {
	if !f.geom.SameSize(masks.geom) {
		return dst, fmt.Errorf("%w: delta masks are %dx%d", ErrSizeMismatch,
			masks.geom.Width(), masks.geom.Height())
	}
	all := append([]wire.EncoderOption{wire.WithCoarsePass(masks.coarse), wire.WithLogger(Logger())}, opts...)
	enc := wire.NewEncoder(all...)

	weighted := tile.NewMask(f.geom.Width(), f.geom.Height())
	if m := masks.Mask(NameBeauty); m != nil {
		if err := enc.Add(&wire.Entry{
			Name:            NameBeauty,
			Type:            wire.TypeBeauty,
			Mask:            m,
			Values:          f.color,
			Precision:       wire.PrecisionRuntime,
			CoarsePrecision: wire.H16,
			FinePrecision:   wire.F32,
		}); err != nil {
			return dst, err
		}
		_ = weighted.Or(m)
	}

	for _, name := range masks.Names() {
		b := f.aux[name]
		if b == nil {
			continue
		}
		m := masks.Mask(name)
		if err := enc.Add(&wire.Entry{
			Name:      name,
			Type:      wire.FloatType(b.Format().Components(), false),
			Mask:      m,
			Values:    *b,
			Precision: wire.F32,
		}); err != nil {
			return dst, err
		}
		_ = weighted.Or(m)
	}

	if !weighted.IsEmpty() {
		if err := enc.Add(&wire.Entry{Name: NameWeight, Type: wire.TypeWeight, Mask: weighted, Values: f.weight}); err != nil {
			return dst, err
		}
	}

	if m := masks.Mask(NameHeatMap); m != nil && f.heatMap != nil {
		f.seconds.Setup(pixel.FormatFloat1, f.geom.PixelCount())
		sec := f.seconds.Float1()
		m.CrawlPixels(func(i int) {
			sec[i] = float32(time.Duration(f.heatMap[i]).Seconds() / float64(max(f.heatMapWeight[i], 1)))
		})
		if err := enc.Add(&wire.Entry{
			Name:      NameHeatMap,
			Type:      wire.TypeHeatMapWithNumSample,
			Mask:      m,
			Values:    f.seconds,
			NumSample: f.heatMapWeight,
		}); err != nil {
			return dst, err
		}
	}
	return enc.Encode(dst)
}
